package rarconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigParseScenario is spec §8 scenario 2, verbatim.
func TestConfigParseScenario(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".rarconfig")
	content := "[ /x.rar ]\n" +
		"password = \"pw\"\n" +
		"seek-length = 3\n" +
		"save-eof = TRUE\n" +
		"alias = \"/x.rar/a.ext\",\"/x.rar/b.ext\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	s := New()
	require.NoError(t, s.Init(dir, cfgPath))

	pw, ok := s.GetPassword("/x.rar")
	require.True(t, ok)
	assert.Equal(t, "pw", pw)

	sl, ok := s.GetSeekLength("/x.rar")
	require.True(t, ok)
	assert.Equal(t, 3, sl)

	se, ok := s.GetSaveEOF("/x.rar")
	require.True(t, ok)
	assert.True(t, se)

	alias, ok := s.GetAlias("/x.rar", "/x.rar/a.ext")
	require.True(t, ok)
	assert.Equal(t, "/x.rar/b.ext", alias)
}

func TestCommentLeadersHashAndBang(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, ".rarconfig")
	content := "# a leading comment\n" +
		"[ /y.rar ]\n" +
		"! another style of comment\n" +
		"seek-length = 7\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	s := New()
	require.NoError(t, s.Init(dir, cfgPath))

	sl, ok := s.GetSeekLength("/y.rar")
	require.True(t, ok)
	assert.Equal(t, 7, sl)
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := New()
	assert.NoError(t, s.Init(dir, ""))
	_, ok := s.GetSeekLength("/anything")
	assert.False(t, ok)
}

func TestDefaultConfigPathIsSourceDotRarconfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rarconfig"),
		[]byte("[ /z.rar ]\nsave-eof = false\n"), 0o600))

	s := New()
	require.NoError(t, s.Init(dir, ""))
	se, ok := s.GetSaveEOF("/z.rar")
	require.True(t, ok)
	assert.False(t, se)
}

func TestSetAliasRejectsCrossDirectoryRename(t *testing.T) {
	s := New()
	require.NoError(t, s.Init(t.TempDir(), ""))

	err := s.SetAlias("/x.rar", "/x.rar/a.ext", "/other/b.ext")
	assert.Error(t, err)

	err = s.SetAlias("/x.rar", "/x.rar/a.ext", "/x.rar/b.ext")
	assert.NoError(t, err)
	alias, ok := s.GetAlias("/x.rar", "/x.rar/a.ext")
	require.True(t, ok)
	assert.Equal(t, "/x.rar/b.ext", alias)
}

func TestInitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rarconfig"),
		[]byte("[ /a.rar ]\nseek-length = 1\n"), 0o600))

	s := New()
	require.NoError(t, s.Init(dir, ""))
	require.NoError(t, s.Init(dir, "ignored-on-second-call"))

	sl, ok := s.GetSeekLength("/a.rar")
	require.True(t, ok)
	assert.Equal(t, 1, sl)
}
