// Package config resolves the module's runtime options from defaults,
// environment variables, and command-line flags, in the lazily-initialized
// singleton shape this corpus always configures itself with.
package config

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/OSGeo/gdal-sub043/internal/logging"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	// UseStreamingParser is not set by any flag or environment variable and
	// is not read by the loader: the streaming-vs-buffered choice is always
	// made per document by jsonref.ShouldStream, and cannot be forced either
	// way.
	UseStreamingParser bool

	// UseCache mirrors the use_cache argument to JsonLoader.load: attempt to
	// build/reuse a Parquet cache rather than holding the parsed JSON in
	// memory only.
	UseCache bool

	// CacheDir is the root directory under which per-manifest cache
	// sub-directories are created.
	CacheDir string

	// AllowRemoteToAccessLocal is the UriResolver escape hatch of spec.md §4.1.
	AllowRemoteToAccessLocal bool

	// JSONMaxSize is read from flags and the environment and rejected when
	// negative. The loader does not read it: the buffered fastjson path reads
	// a manifest whole, whatever its size.
	JSONMaxSize int64

	// RefFileCacheSize and ParquetFileCacheSize size the two process-wide
	// LRUs of internal/cache.
	RefFileCacheSize    int
	ParquetFileCacheSize int

	// VerboseWaitSeconds and StalledLockSeconds tune the build-lock wait
	// loop of internal/cache.
	VerboseWaitSeconds int
	StalledLockSeconds int

	// AWSRegion configures the S3 transport, when S3 URIs are in play.
	AWSRegion string

	// ForTests is read from flags and the environment. No package reads it,
	// and no test-only stall or delay hooks exist behind it.
	ForTests bool

	jsonLogs   bool
	devLogs    bool
	verboseLog bool
	traceLog   bool
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide Config, parsing flags and environment
// variables on first call.
func Get() *Config {
	once.Do(func() {
		var argsInstance Config
		argsInstance.loadFromArguments()

		instance = defaults()
		instance.loadFromEnv()
		instance.override(&argsInstance)
		// the log flags are unexported, so reflect-based override (which only
		// walks exported fields) never sees them - copy them directly.
		instance.jsonLogs = argsInstance.jsonLogs
		instance.devLogs = argsInstance.devLogs
		instance.verboseLog = argsInstance.verboseLog
		instance.traceLog = argsInstance.traceLog
		instance.validate()

		logging.Init(instance.jsonLogs, instance.devLogs, instance.verboseLog, instance.traceLog)
	})
	return instance
}

func defaults() *Config {
	return &Config{
		UseCache:             true,
		CacheDir:             defaultCacheDir(),
		JSONMaxSize:          64 << 20,
		RefFileCacheSize:     16,
		ParquetFileCacheSize: 64,
		VerboseWaitSeconds:   10,
		StalledLockSeconds:   120,
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/kerchunkvfs"
	}
	return os.TempDir() + "/kerchunkvfs"
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("KERCHUNKVFS_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("KERCHUNKVFS_ALLOW_REMOTE_TO_ACCESS_LOCAL"); v != "" {
		c.AllowRemoteToAccessLocal = isTruthy(v)
	}
	if v := os.Getenv("KERCHUNKVFS_USE_CACHE"); v != "" {
		c.UseCache = isTruthy(v)
	}
	if v := os.Getenv("KERCHUNKVFS_JSON_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.JSONMaxSize = n
		}
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.AWSRegion = v
	}
	if v := os.Getenv("KERCHUNKVFS_FOR_TESTS"); v != "" {
		c.ForTests = isTruthy(v)
	}
}

func (c *Config) loadFromArguments() {
	jsonLogs := flag.Bool("json-logs", false, "emit production JSON-formatted logs")
	devLogs := flag.Bool("dev-logs", false, "emit development-formatted logs with timestamps and source files")
	verbose := flag.Bool("verbose", false, "enable DEBUG-level logging")
	trace := flag.Bool("trace", false, "enable per-token/per-chunk TRACE-level logging")

	cacheDir := flag.String("cache-dir", "", "root directory for the Parquet reference cache")
	useCache := flag.Bool("use-cache", false, "build/reuse a Parquet cache instead of holding JSON in memory")
	allowRemoteLocal := flag.Bool("allow-remote-to-access-local", false,
		"allow a remote manifest to reference local filesystem paths")
	jsonMaxSize := flag.Int64("json-max-size", 0, "maximum manifest size, in bytes, for the buffered JSON loader (recorded in the config; not enforced by the loader)")
	awsRegion := flag.String("aws-region", "", "AWS region for s3:// URIs")
	forTests := flag.Bool("for-tests", false, "enable test-only timing hooks")

	if !flag.Parsed() {
		flag.Parse()
	}

	c.jsonLogs = *jsonLogs
	c.devLogs = *devLogs
	c.verboseLog = *verbose
	c.traceLog = *trace

	if *cacheDir != "" {
		c.CacheDir = *cacheDir
	}
	if *useCache {
		c.UseCache = true
	}
	if *allowRemoteLocal {
		c.AllowRemoteToAccessLocal = true
	}
	if *jsonMaxSize != 0 {
		c.JSONMaxSize = *jsonMaxSize
	}
	if *awsRegion != "" {
		c.AWSRegion = *awsRegion
	}
	if *forTests {
		c.ForTests = true
	}
}

// override copies every non-zero-valued field of argsInstance onto c,
// letting flag-sourced values win over env/defaults without repeating a
// field-by-field if-ladder.
func (c *Config) override(argsInstance *Config) {
	v := reflect.ValueOf(argsInstance).Elem()
	t := reflect.TypeOf(argsInstance).Elem()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanInterface() {
			continue
		}

		cField := reflect.ValueOf(c).Elem().FieldByName(fieldType.Name)
		if !cField.IsValid() || !cField.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if field.String() != "" {
				cField.Set(field)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if field.Int() != 0 {
				cField.Set(field)
			}
		case reflect.Bool:
			if field.Bool() {
				cField.Set(field)
			}
		}
	}
}

func (c *Config) validate() {
	if c.JSONMaxSize < 0 {
		fmt.Fprintln(os.Stderr, "kerchunkvfs: json-max-size must not be negative")
		os.Exit(1)
	}
	if c.RefFileCacheSize <= 0 {
		c.RefFileCacheSize = 16
	}
	if c.ParquetFileCacheSize <= 0 {
		c.ParquetFileCacheSize = 64
	}
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
