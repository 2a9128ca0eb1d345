package refs

import "errors"

// Error kinds from the reference store's error handling design. Call sites wrap
// one of these with fmt.Errorf("...: %w", ErrX) so callers can errors.Is against
// a stable sentinel while still getting a descriptive message.
var (
	// ErrBadPath is returned when a VFS path cannot be split into a store
	// locator and an inner key.
	ErrBadPath = errors.New("bad vfs path")

	// ErrBadManifest is returned by the JSON parser and its validators for any
	// structurally invalid reference manifest.
	ErrBadManifest = errors.New("bad reference manifest")

	// ErrUnsupportedFeature is returned for "templates", "gen", or an
	// unsupported "version" value.
	ErrUnsupportedFeature = errors.New("unsupported kerchunk feature")

	// ErrBadBase64 is returned when a "base64:"-prefixed inline value fails to
	// decode.
	ErrBadBase64 = errors.New("invalid base64 inline value")

	// ErrBadRefArray is returned when a referenced entry's array value has an
	// arity or element type other than 1 or 3 well-typed elements.
	ErrBadRefArray = errors.New("invalid reference array")

	// ErrArrayTooLarge is returned when a .zarray's total chunk count would
	// overflow 64 bits, or its dimensionality exceeds 32.
	ErrArrayTooLarge = errors.New("zarr array too large to index")

	// ErrBlobTooLarge is returned when an inline value exceeds the maximum
	// size the Parquet binary column can hold.
	ErrBlobTooLarge = errors.New("inline value too large for a parquet cell")

	// ErrAccessDenied is returned by UriResolver when a remote manifest points
	// at a local path without ALLOW_REMOTE_TO_ACCESS_LOCAL.
	ErrAccessDenied = errors.New("access denied: remote manifest referencing local path")

	// ErrCacheBuildFailed wraps any failure while converting JSON to Parquet
	// or committing the result.
	ErrCacheBuildFailed = errors.New("cache build failed")

	// ErrCancelled is returned distinctly from other failures when a progress
	// callback requests cancellation.
	ErrCancelled = errors.New("operation cancelled")
)
