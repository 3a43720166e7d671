// Package pathutil implements C1, the Path Normalizer: path arithmetic that
// never touches the filesystem, plus FileExists, the one helper that does.
package pathutil

import (
	"os"
	"strings"
)

// Normalize collapses repeated separators, resolves "." and ".." lexically,
// and converts backslashes to forward slashes. It never touches the
// filesystem, so a ".." that would walk above the root of a relative path is
// permitted and produces a leading-".." result (matching path/filepath.Clean
// semantics, but with backslash normalization folded in first).
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	isAbs := strings.HasPrefix(p, "/")
	trailingSlash := len(p) > 1 && strings.HasSuffix(p, "/")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
				continue
			}
			if isAbs {
				// ".." above an absolute root is discarded.
				continue
			}
			out = append(out, "..")
		default:
			out = append(out, seg)
		}
	}

	result := strings.Join(out, "/")
	if isAbs {
		result = "/" + result
	}
	if result == "" {
		if isAbs {
			return "/"
		}
		return "."
	}
	if trailingSlash && !strings.HasSuffix(result, "/") {
		result += "/"
	}
	return result
}

// IsAbsolute reports whether p starts with "/" or with a drive letter
// followed by ":" (host-style drives, e.g. "C:/project").
func IsAbsolute(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return true
	}
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}

// MakeAbsolute prepends base to p, unless p is already absolute.
func MakeAbsolute(p, base string) string {
	if IsAbsolute(p) {
		return Normalize(p)
	}
	if p == "" {
		return Normalize(base)
	}
	return Normalize(base + "/" + p)
}

// RelativeTo returns the suffix of p after root, if p begins with root
// (after normalization); otherwise it returns p unchanged (normalized).
func RelativeTo(p, root string) string {
	np := Normalize(p)
	nroot := Normalize(root)
	nroot = strings.TrimSuffix(nroot, "/")

	if nroot == "" || nroot == "." {
		return strings.TrimPrefix(np, "/")
	}
	if np == nroot {
		return ""
	}
	if strings.HasPrefix(np, nroot+"/") {
		return strings.TrimPrefix(np, nroot+"/")
	}
	return np
}

// Join normalizes the concatenation of elems with "/" separators, the way
// filepath.Join does but without ever touching the OS path separator.
func Join(elems ...string) string {
	return Normalize(strings.Join(elems, "/"))
}

// Dir returns the normalized directory portion of p (everything before the
// last "/"), or "." if p has no directory component.
func Dir(p string) string {
	np := Normalize(p)
	idx := strings.LastIndex(np, "/")
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return np[:idx]
}

// FileExists is the one filesystem-touching helper in this package; C3 and
// C5 use it (normally through an injectable function value so tests can
// avoid real I/O) to check candidate paths built by normalize/join.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ToSlash converts backslashes to forward slashes without otherwise
// altering the path; useful for PSR-4/PSR-0 candidate paths built from
// namespace segments before they are passed to Normalize.
func ToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
