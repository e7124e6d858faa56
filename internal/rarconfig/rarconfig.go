// Package rarconfig loads and serves the per-archive ".rarconfig"
// override file: seek-length, save-eof, password, and member-rename
// aliases, scoped per archive path section (spec §4.3).
package rarconfig

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/rfs"
	"github.com/nunogt/rar2fs/internal/rlog"
)

// entry holds the parsed overrides for one archive path (one "[path]"
// section), mirroring original_source/src/rarconfig.c's config_entry.
type entry struct {
	seekLength    int
	hasSeekLength bool
	saveEOF       bool
	hasSaveEOF    bool
	password      string
	hasPassword   bool
	aliases       map[string]string // member file name -> alias
}

// Store is the process-wide, lazily-initialized config store. Mirrors the
// C original's single global hash table guarded by a mutex; Go expresses
// that as one struct instance instead of a package-level global, so tests
// can hold independent stores.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	loaded  bool
}

// New returns an empty, not-yet-loaded Store.
func New() *Store {
	return &Store{}
}

// Init lazily loads the config file: cfg if non-empty, else
// "<source>/.rarconfig". A missing file is not an error — it just leaves
// the store empty, matching rarconfig_init's silent fopen failure.
func (s *Store) Init(source, cfg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	path := cfg
	if path == "" {
		path = filepath.Join(source, ".rarconfig")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			s.entries = map[string]*entry{}
			return nil
		}
		return rfs.New(rfs.KindIO, errors.Wrapf(err, "open config %q", path))
	}
	defer f.Close()

	entries, err := parse(f)
	if err != nil {
		return err
	}
	s.entries = entries
	s.loaded = true
	rlog.Debugf(path, "rarconfig: loaded %d section(s)", len(s.entries))
	return nil
}

// GetSeekLength returns the seek-length override for archivePath and
// whether one was set.
func (s *Store) GetSeekLength(archivePath string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[archivePath]
	if e == nil || !e.hasSeekLength {
		return -1, false
	}
	return e.seekLength, true
}

// GetSaveEOF returns the save-eof override for archivePath and whether one
// was set.
func (s *Store) GetSaveEOF(archivePath string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[archivePath]
	if e == nil || !e.hasSaveEOF {
		return false, false
	}
	return e.saveEOF, true
}

// GetPassword returns the password override for archivePath as a byte
// string, and whether one was set.
func (s *Store) GetPassword(archivePath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[archivePath]
	if e == nil || !e.hasPassword {
		return "", false
	}
	return e.password, true
}

// GetPasswordWide is the wide-character accessor from spec §6's external
// interface table. Go strings are always UTF-8, so — per SPEC_FULL.md's
// configuration store section — this is a pass-through alias of GetPassword
// rather than a distinct wchar_t-backed representation.
func (s *Store) GetPasswordWide(archivePath string) (string, bool) {
	return s.GetPassword(archivePath)
}

// GetAlias returns the alias registered for file under archivePath, if
// any.
func (s *Store) GetAlias(archivePath, file string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[archivePath]
	if e == nil {
		return "", false
	}
	alias, ok := e.aliases[file]
	return alias, ok
}

// SetAlias registers file -> alias under archivePath at runtime, after
// validating both names with checkPaths (same directory depth, same
// parent, both absolute — mirrors __check_paths). Returns
// rfs.KindInvalidPath if validation fails.
func (s *Store) SetAlias(archivePath, file, alias string) error {
	if !checkPaths(file, alias) {
		return rfs.New(rfs.KindInvalidPath, errors.Errorf("alias %q -> %q crosses directories", file, alias))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[archivePath]
	if e == nil {
		e = &entry{}
		if s.entries == nil {
			s.entries = map[string]*entry{}
		}
		s.entries[archivePath] = e
	}
	if e.aliases == nil {
		e.aliases = map[string]string{}
	}
	e.aliases[file] = alias
	return nil
}

// Destroy releases the store's state so Init can be called again.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.loaded = false
}

// parse reads an INI-like file: "[archive path]" section headers followed
// by "key = value" lines, "#" or "!" leading a comment. Mirrors
// find_next_parent/find_next_child's sscanf-based scan, re-expressed as a
// single linear bufio.Scanner pass instead of repeated fseek/rescan.
func parse(f *os.File) (map[string]*entry, error) {
	entries := map[string]*entry{}
	var cur *entry

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			name, ok := parseSection(line)
			if !ok {
				continue
			}
			cur = &entry{}
			entries[name] = cur
			continue
		}
		if cur == nil {
			continue
		}
		key, value, ok := parseKeyValue(line)
		if !ok {
			continue
		}
		applyKey(cur, key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, rfs.New(rfs.KindIO, errors.Wrap(err, "scan config"))
	}
	return entries, nil
}

// parseSection extracts the section name from a "[ name ]" line.
func parseSection(line string) (string, bool) {
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return "", false
	}
	name := strings.TrimSpace(line[1:end])
	if name == "" {
		return "", false
	}
	return name, true
}

// parseKeyValue splits "key = value", trimming surrounding whitespace off
// the key, matching the original's "%[^#!=]=%[^\n]" sscanf pattern (stop
// at the first comment leader or '=').
func parseKeyValue(line string) (key, value string, ok bool) {
	for i, r := range line {
		if r == '#' || r == '!' {
			return "", "", false
		}
		if r == '=' {
			key = strings.TrimSpace(line[:i])
			value = strings.TrimSpace(line[i+1:])
			if key == "" {
				return "", "", false
			}
			return key, value, true
		}
	}
	return "", "", false
}

func applyKey(e *entry, key, value string) {
	switch strings.ToLower(key) {
	case "save-eof":
		switch strings.ToLower(value) {
		case "true":
			e.saveEOF, e.hasSaveEOF = true, true
		case "false":
			e.saveEOF, e.hasSaveEOF = false, true
		}
	case "seek-length":
		// Base 0 lets strconv pick the radix from the literal's prefix
		// (0x.../0.../decimal), matching strtoul(value, NULL, 0) in
		// __entry_set_seek_length.
		if n, err := strconv.ParseInt(value, 0, 64); err == nil {
			e.seekLength, e.hasSeekLength = int(n), true
		}
	case "password":
		if pw, ok := unquote(value); ok {
			e.password, e.hasPassword = pw, true
		}
	case "alias":
		file, alias, ok := parseAliasPair(value)
		if ok && checkPaths(file, alias) {
			if e.aliases == nil {
				e.aliases = map[string]string{}
			}
			e.aliases[file] = alias
		}
	}
}

// unquote extracts the content between the first pair of double quotes,
// matching __entry_set_password's strchr('"')/strrchr('"') pattern.
func unquote(s string) (string, bool) {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, '"')
	if end <= start {
		return "", false
	}
	return s[start+1 : end], true
}

// parseAliasPair parses `"file","alias"`, mirroring
// __entry_set_alias's sscanf(" \"%[^\"]%*[^,]%*[^\"]\" %[^\"]").
func parseAliasPair(value string) (file, alias string, ok bool) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	file, fok := unquote(parts[0])
	alias, aok := unquote(parts[1])
	if !fok || !aok {
		return "", "", false
	}
	return file, alias, true
}

// checkPaths mirrors __check_paths: both must be absolute, at least two
// characters, same directory depth, and the same immediate parent
// directory — i.e. aliasing only renames a basename within its own
// directory, never moves an entry across directories.
func checkPaths(a, b string) bool {
	if !strings.HasPrefix(a, "/") || !strings.HasPrefix(b, "/") {
		return false
	}
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	if dirLevels(a) != dirLevels(b) {
		return false
	}
	return filepath.Dir(a) == filepath.Dir(b)
}

// dirLevels counts how many dirname() applications it takes to reach "/",
// starting from path itself — mirroring __dirlevels's loop exactly (it
// seeds tmp with path, not dirname(path)).
func dirLevels(path string) int {
	count := 0
	for cur := path; cur != "/"; cur = filepath.Dir(cur) {
		count++
	}
	return count
}
