package recursion

import (
	"strings"
	"unicode/utf8"
)

// MaxNestedPathLength is the longest path sanitize accepts, per spec §4.4.
const MaxNestedPathLength = 4096

// Sanitize applies the spec §4.4 rules to a nested-archive member path, in
// order, returning ok=false if any rule rejects it:
//
//  1. non-empty, length 1..4096
//  2. not absolute (must not begin with / or \)
//  3. not a Windows drive-letter path ([A-Za-z]:[\\/]...)
//  4. valid UTF-8
//  5. backslashes replaced with forward slashes
//  6. a path whose first component is ".." is rejected; every other ".."
//     component is stripped, and a leading ".." surviving is rejected
//  7. non-empty result
func Sanitize(path string) (string, bool) {
	if len(path) == 0 || len(path) > MaxNestedPathLength {
		return "", false
	}
	if isAbsolute(path) {
		return "", false
	}
	if isWindowsAbsolute(path) {
		return "", false
	}
	if !utf8.ValidString(path) {
		return "", false
	}

	normalized := strings.ReplaceAll(path, "\\", "/")
	if normalized == ".." || strings.HasPrefix(normalized, "../") {
		return "", false
	}

	stripped, ok := stripDotDot(normalized)
	if !ok {
		return "", false
	}
	if stripped == "" {
		return "", false
	}
	return stripped, true
}

func isAbsolute(path string) bool {
	if path == "" {
		return false
	}
	return path[0] == '/' || path[0] == '\\'
}

func isWindowsAbsolute(path string) bool {
	if len(path) < 3 {
		return false
	}
	c := path[0]
	isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	return isAlpha && path[1] == ':' && (path[2] == '\\' || path[2] == '/')
}

// stripDotDot removes every ".." path component (matching ".." followed by
// "/", "\\", or end-of-string). If a leading ".." survives the strip, the
// path is rejected outright — it would otherwise still climb above the
// nested archive's root.
func stripDotDot(path string) (string, bool) {
	var b strings.Builder
	b.Grow(len(path))

	i := 0
	for i < len(path) {
		if path[i] == '.' && i+1 < len(path) && path[i+1] == '.' &&
			(i+2 == len(path) || path[i+2] == '/' || path[i+2] == '\\') {
			i += 2
			if i < len(path) && (path[i] == '/' || path[i] == '\\') {
				i++
			}
			continue
		}
		b.WriteByte(path[i])
		i++
	}

	result := b.String()
	if strings.HasPrefix(result, "..") &&
		(len(result) == 2 || result[2] == '/') {
		return "", false
	}
	return result, true
}
