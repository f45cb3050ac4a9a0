package auth

import "strings"

// Signature is the canonical (METHOD, path) pair used as the lookup key into
// the permission store. The path component is a normalized route template
// (e.g. /api/orden/:id), not a concrete request path, so one resource row
// governs every request to a parameterized endpoint.
type Signature struct {
	Method string
	Path   string
}

// NewSignature builds a signature from an HTTP method and a raw path,
// upper-casing the method and normalizing the path.
func NewSignature(method, path string) Signature {
	return Signature{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Path:   NormalizePath(path),
	}
}

func (s Signature) String() string {
	return s.Method + " " + s.Path
}

// NormalizePath canonicalizes a request path or route template:
// a single leading slash, runs of consecutive slashes collapsed into one,
// and exactly one trailing slash stripped unless the path is the root.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}
