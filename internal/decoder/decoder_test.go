package decoder

import (
	"testing"
	"time"

	"github.com/javi11/rardecode"
	"github.com/stretchr/testify/assert"
)

func TestFromFileHeaderProjectsFields(t *testing.T) {
	mt := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	fh := &rardecode.FileHeader{
		Name:             "a/b.txt",
		UnPackedSize:     1234,
		PackedSize:       1000,
		Offset:           64,
		Encrypted:        true,
		ModificationTime: mt,
		VolumeNumber:     2,
		PartNumber:       1,
		TotalParts:       3,
	}

	m := fromFileHeader(fh)
	assert.Equal(t, "a/b.txt", m.Name)
	assert.Equal(t, int64(1234), m.Size)
	assert.Equal(t, int64(1000), m.PackedSize)
	assert.Equal(t, int64(64), m.Offset)
	assert.True(t, m.Encrypted)
	assert.Equal(t, mt.Unix(), m.ModTime)
	assert.Equal(t, 2, m.VolumeNumber)
	assert.Equal(t, 3, m.TotalParts)
}

func TestFromFileHeaderZeroModTime(t *testing.T) {
	fh := &rardecode.FileHeader{Name: "x"}
	m := fromFileHeader(fh)
	assert.Zero(t, m.ModTime)
}

func TestOptionsForEmptyPasswordIsNil(t *testing.T) {
	assert.Nil(t, optionsFor(""))
	assert.Len(t, optionsFor("secret"), 1)
}

func TestWrapOpenErrUnwraps(t *testing.T) {
	base := assert.AnError
	wrapped := wrapOpenErr("/a.rar", base)
	assert.Contains(t, wrapped.Error(), "/a.rar")

	type unwrapper interface{ Unwrap() error }
	u, ok := wrapped.(unwrapper)
	assert.True(t, ok)
	assert.Equal(t, base, u.Unwrap())
}
