package refs

import (
	"fmt"
	"path"
	"strings"
)

// schemePrefixes lists the opaque transport prefixes recognized by the
// underlying RangeReader layer (spec.md §4.1 "already names a scheme
// recognized by the underlying VFS layer"). Anything with one of these
// prefixes is returned unchanged by Resolve.
var schemePrefixes = []string{
	"http://", "https://", "s3://", "gs://", "az://", "/vsicurl/", "/vsis3/", "/vsigs/",
}

// UriResolver rewrites a reference manifest's URI against the manifest's own
// root dirname, and enforces the local-access policy of spec.md §4.1.
type UriResolver struct {
	// AllowRemoteToAccessLocal mirrors the ALLOW_REMOTE_TO_ACCESS_LOCAL
	// configuration flag.
	AllowRemoteToAccessLocal bool
}

// Resolve rewrites uri against rootDirname. rootDirname is itself either a
// local path or a recognized remote scheme; isRemoteRoot reports which.
func (r UriResolver) Resolve(uri, rootDirname string) (string, error) {
	if hasRecognizedScheme(uri) {
		return uri, nil
	}

	if !path.IsAbs(uri) && !isWindowsAbs(uri) {
		return joinDirname(rootDirname, uri), nil
	}

	// uri is an absolute local-filesystem path.
	if isRemoteRoot(rootDirname) && !r.AllowRemoteToAccessLocal {
		return "", fmt.Errorf("%w: manifest at %q references local path %q",
			ErrAccessDenied, rootDirname, uri)
	}
	return uri, nil
}

func hasRecognizedScheme(uri string) bool {
	for _, p := range schemePrefixes {
		if strings.HasPrefix(uri, p) {
			return true
		}
	}
	return strings.Contains(uri, "://")
}

func isRemoteRoot(rootDirname string) bool {
	return hasRecognizedScheme(rootDirname)
}

func isWindowsAbs(p string) bool {
	// "C:\..." or "C:/..." - reject relative-path joining for these even on
	// a Unix build host, since the manifest may travel cross-platform.
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func joinDirname(rootDirname, uri string) string {
	if hasRecognizedScheme(rootDirname) {
		// keep remote-root joins simple and slash-based regardless of host OS
		return strings.TrimRight(rootDirname, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	return path.Join(rootDirname, uri)
}
