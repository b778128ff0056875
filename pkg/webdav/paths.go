package webdav

import (
	"net/url"
	"path"
	"strings"
)

// NormalizePath collapses repeated slashes and trims leading and trailing
// ones. Every path the client hands out or compares goes through it, so
// "/a//b/" and "a/b" name the same resource.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return strings.Trim(p, "/")
}

// JoinPath joins path elements and normalises the result
func JoinPath(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e = NormalizePath(e); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// EncodePath percent-encodes each segment of p independently
func EncodePath(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// RelativeTo returns p relative to root, and false when p is not inside root.
// Both arguments are normalised first; the root itself yields "".
func RelativeTo(root, p string) (string, bool) {
	root = NormalizePath(root)
	p = NormalizePath(p)
	if root == "" {
		return p, true
	}
	if p == root {
		return "", true
	}
	if strings.HasPrefix(p, root+"/") {
		return p[len(root)+1:], true
	}
	return "", false
}

// Segments returns the cumulative prefixes of p: "a/b/c" yields a, a/b, a/b/c
func Segments(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := make([]string, len(parts))
	for i := range parts {
		out[i] = strings.Join(parts[:i+1], "/")
	}
	return out
}

// Parent returns the normalised parent collection of p ("" for top-level entries)
func Parent(p string) string {
	dir := path.Dir(NormalizePath(p))
	if dir == "." {
		return ""
	}
	return dir
}
