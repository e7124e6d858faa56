package decoder

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// partPattern matches old- and new-style multi-part names:
// "name.part01.rar", "name.part1.rar".
var partPattern = regexp.MustCompile(`(?i)^(.*?)([_.-]?)part(\d+)(\.rar)$`)

// IsArchivePath reports whether path names a RAR archive volume (by
// extension only — content is never sniffed here).
func IsArchivePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".rar") {
		return true
	}
	base := filepath.Base(lower)
	// old-style ".rNN" continuation volumes, e.g. "archive.r00".
	if len(base) > 4 && base[len(base)-4] == '.' && base[len(base)-3] == 'r' {
		if _, err := parseTwoDigits(base[len(base)-2:]); err == nil {
			return true
		}
	}
	return false
}

func parseTwoDigits(s string) (int, error) {
	var n int
	if len(s) != 2 {
		return 0, fmt.Errorf("not two digits: %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// DiscoverVolumes enumerates the on-disk sibling volumes of a multi-volume
// RAR given its first volume's path, trying the ".partNN.rar" pattern
// first, then falling back to legacy ".r00", ".r01", ... continuation
// naming. Adapted from
// other_examples/ef5c2cd0_javi11-rarlist__rar_list.go.go's
// DiscoverVolumesFS, generalized to use os.Stat directly since the
// coordinator always operates against the real filesystem (no injected
// FileSystem abstraction is needed here).
func DiscoverVolumes(first string) ([]string, error) {
	base := filepath.Base(first)
	dir := filepath.Dir(first)

	if m := partPattern.FindStringSubmatch(base); m != nil {
		prefix, sep, num, suffix := m[1], m[2], m[3], m[4]
		width := len(num)
		var vols []string
		for i := 1; i < 10000; i++ {
			name := fmt.Sprintf("%s%spart%0*d%s", prefix, sep, width, i, suffix)
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err != nil {
				if i == 1 {
					return nil, fmt.Errorf("first volume not found: %s", p)
				}
				break
			}
			vols = append(vols, p)
		}
		return vols, nil
	}

	if strings.HasSuffix(strings.ToLower(base), ".rar") {
		if _, err := os.Stat(first); err != nil {
			return nil, err
		}
		vols := []string{first}
		prefix := strings.TrimSuffix(first, filepath.Ext(first))
		for i := 0; i < 1000; i++ {
			p := fmt.Sprintf("%s.r%02d", prefix, i)
			if _, err := os.Stat(p); err != nil {
				break
			}
			vols = append(vols, p)
		}
		return vols, nil
	}

	return []string{first}, nil
}
