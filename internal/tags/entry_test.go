package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagDirCanonicalizesOrderAndDuplicates(t *testing.T) {
	a := NewTagDir("b", "a", "c", "a")
	b := NewTagDir("c", "b", "a")

	d1, v1 := a.Discriminant()
	d2, v2 := b.Discriminant()

	assert.Equal(t, d1, d2)
	assert.Equal(t, v1, v2)
	assert.Equal(t, "a/b/c", v1)
}

func TestRootTagDirIsEmptyData(t *testing.T) {
	root := NewTagDir()
	assert.True(t, root.IsRoot())

	_, data := root.Discriminant()
	assert.Equal(t, "", data)
}

func TestFromRowRoundTripsTagDir(t *testing.T) {
	orig := NewTagDir("music", "flac")
	disc, data := orig.Discriminant()

	got, err := FromRow(disc, data)
	require.NoError(t, err)
	assert.Equal(t, orig.Tags(), got.Tags())
	assert.True(t, got.IsTagDir())
}

func TestFromRowRoundTripsFile(t *testing.T) {
	orig := NewFile("song.flac")
	disc, data := orig.Discriminant()

	got, err := FromRow(disc, data)
	require.NoError(t, err)
	assert.True(t, got.IsFile())
	assert.Equal(t, "song.flac", got.Name())
}

func TestFromRowRejectsUnknownDiscriminant(t *testing.T) {
	_, err := FromRow("bogus", "x")
	require.Error(t, err)
}

func TestFromRowDiscardsEmptyTagComponents(t *testing.T) {
	// A data string with leading/trailing/duplicated slashes should still
	// decode to the same tag set split("/") would otherwise pollute with
	// empty strings.
	got, err := FromRow(DiscriminantTagDir, "/a//b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Tags())
}

func TestWithTagConjoinsAndStaysCanonical(t *testing.T) {
	base := NewTagDir("b")
	got := base.WithTag("a")
	assert.Equal(t, []string{"a", "b"}, got.Tags())
	assert.True(t, got.HasTag("a"))
	assert.True(t, got.HasTag("b"))
	assert.False(t, got.HasTag("c"))
}
