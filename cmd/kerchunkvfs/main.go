// Command kerchunkvfs exposes the Kerchunk virtual filesystem core as a
// standalone CLI: converting a JSON reference manifest to the Parquet cache
// format, and inspecting entries through the same open/stat/readdir surface
// GDAL's VSI layer would use.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OSGeo/gdal-sub043/internal/cache"
	"github.com/OSGeo/gdal-sub043/internal/config"
	"github.com/OSGeo/gdal-sub043/internal/jsonref"
	"github.com/OSGeo/gdal-sub043/internal/logging"
	"github.com/OSGeo/gdal-sub043/internal/parquetref"
	"github.com/OSGeo/gdal-sub043/internal/refs"
	"github.com/OSGeo/gdal-sub043/internal/transport"
	"github.com/OSGeo/gdal-sub043/internal/vfs"
)

func main() {
	// reading configuration shall be the very first action because it also configures the logger
	conf := config.Get()

	root := &cobra.Command{
		Use:   "kerchunkvfs",
		Short: "Inspect and convert Kerchunk JSON reference manifests",
	}
	root.AddCommand(newConvertCommand(conf))
	root.AddCommand(newInspectCommand(conf))

	if err := root.Execute(); err != nil {
		logging.Log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newConvertCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "convert-json-to-parquet <src.json> <dst-dir>",
		Short: "Convert a Kerchunk JSON reference manifest into a Parquet reference store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			ctx := cmd.Context()

			info, err := os.Stat(src)
			if err != nil {
				return fmt.Errorf("%w: %v", refs.ErrBadManifest, err)
			}

			loader := &jsonref.Loader{}
			rf, err := loader.ParseFile(ctx, src, info.Size(), nil)
			if err != nil {
				return err
			}

			w := parquetref.Writer{Progress: func(ratio float64) bool {
				logging.Log.Info("converting", zap.Float64("progress", ratio))
				return true
			}}
			if err := w.Convert(rf, dst); err != nil {
				return err
			}
			logging.Log.Info("wrote Parquet reference store", zap.String("dir", dst))
			return nil
		},
	}
}

func newInspectCommand(conf *config.Config) *cobra.Command {
	var maxFiles int
	var statOnly bool

	cmd := &cobra.Command{
		Use:   "inspect <vfs-path>",
		Short: "Open, stat, or list a /vsikerchunk_*/ virtual path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), conf, args[0], maxFiles, statOnly)
		},
	}
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "cap readdir results (0 = unbounded)")
	cmd.Flags().BoolVar(&statOnly, "stat", false, "stat the path instead of reading it")
	return cmd
}

func runInspect(ctx context.Context, conf *config.Config, path string, maxFiles int, statOnly bool) error {
	mgr, err := cache.NewManager(conf.RefFileCacheSize, conf.ParquetFileCacheSize)
	if err != nil {
		return err
	}
	defer mgr.Shutdown()

	resolver := refs.UriResolver{AllowRemoteToAccessLocal: conf.AllowRemoteToAccessLocal}
	dispatcher := transport.NewDispatcher(&transport.LocalReader{})
	if conf.AWSRegion != "" {
		s3Reader, err := transport.NewS3Reader(ctx, conf.AWSRegion)
		if err != nil {
			return err
		}
		dispatcher.Register("s3", s3Reader)
	}

	parquetVfs := &vfs.ParquetRefVfs{
		Cache:     mgr,
		Resolver:  resolver,
		Transport: dispatcher,
		MaxFiles:  maxFiles,
	}
	jsonVfs := &vfs.JsonRefVfs{
		Loader: &jsonref.Loader{
			Cache:    mgr,
			CacheDir: conf.CacheDir,
			UseCache: conf.UseCache,
			LockOptions: cache.LockOptions{
				VerboseWaitInterval: time.Duration(conf.VerboseWaitSeconds) * time.Second,
				StalledLockDelay:    time.Duration(conf.StalledLockSeconds) * time.Second,
			},
		},
		Resolver:  resolver,
		Transport: dispatcher,
		Parquet:   parquetVfs,
		UseCache:  conf.UseCache,
	}

	var chosen interface {
		Open(context.Context, string) (vfs.FileHandle, error)
		Stat(context.Context, string) (vfs.StatInfo, error)
		Readdir(context.Context, string, int) ([]string, error)
	}
	switch {
	case hasPrefix(path, vfs.PrefixParquetRef):
		chosen = parquetVfs
	case hasPrefix(path, vfs.PrefixJSONRef), hasPrefix(path, vfs.PrefixJSONRefCached):
		chosen = jsonVfs
	default:
		return fmt.Errorf("%w: unrecognized VSI prefix in %q", refs.ErrBadPath, path)
	}

	rest := stripPrefix(path)
	if statOnly {
		info, err := chosen.Stat(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Printf("dir=%t size=%d\n", info.IsDir, info.Size)
		return nil
	}

	info, err := chosen.Stat(ctx, rest)
	if err != nil {
		return err
	}
	if info.IsDir {
		names, err := chosen.Readdir(ctx, rest, maxFiles)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	h, err := chosen.Open(ctx, rest)
	if err != nil {
		return err
	}
	defer h.Close()
	_, err = copyToStdout(h)
	return err
}

func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

func stripPrefix(path string) string {
	for _, p := range []string{vfs.PrefixJSONRef, vfs.PrefixJSONRefCached, vfs.PrefixParquetRef} {
		if hasPrefix(path, p) {
			return path[len(p):]
		}
	}
	return path
}

func copyToStdout(h vfs.FileHandle) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := h.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}
