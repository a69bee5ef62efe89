package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafce25/tagsfs/internal/kind"
	"github.com/cafce25/tagsfs/internal/tags"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInodeOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := tags.NewTagDir("music", "flac")
	first, err := s.InodeOrCreate(ctx, entry)
	require.NoError(t, err)

	second, err := s.InodeOrCreate(ctx, entry)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEntryRoundTripsThroughInode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry := tags.NewFile("song.flac")
	ino, err := s.CreateInode(ctx, entry)
	require.NoError(t, err)

	got, err := s.Entry(ctx, ino)
	require.NoError(t, err)
	assert.True(t, got.IsFile())
	assert.Equal(t, "song.flac", got.Name())
}

func TestInodeReturnsUnknownInodeKind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Inode(ctx, tags.NewFile("nope.flac"))
	require.Error(t, err)
	assert.Equal(t, kind.UnknownInode, kind.Of(err))
}

func TestAddAndRemoveTagsFromFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddTagsToFile(ctx, []string{"music", "flac"}, "song.flac"))

	got, err := s.FileTags(ctx, "song.flac")
	require.NoError(t, err)
	assert.Equal(t, []string{"flac", "music"}, got)

	// Re-adding an already-attached tag is a no-op, not an error.
	require.NoError(t, s.AddTagsToFile(ctx, []string{"music"}, "song.flac"))
	got, err = s.FileTags(ctx, "song.flac")
	require.NoError(t, err)
	assert.Equal(t, []string{"flac", "music"}, got)

	require.NoError(t, s.RemoveTagsFromFile(ctx, []string{"flac"}, "song.flac"))
	got, err = s.FileTags(ctx, "song.flac")
	require.NoError(t, err)
	assert.Equal(t, []string{"music"}, got)
}

func TestDeleteTagsCascadesToFileTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddTagsToFile(ctx, []string{"music"}, "song.flac"))
	require.NoError(t, s.DeleteTags(ctx, []string{"music"}))

	got, err := s.FileTags(ctx, "song.flac")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubTagsExcludesOnlyTheGivenSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddTagsToFile(ctx, []string{"music", "flac"}, "a.flac"))
	require.NoError(t, s.AddTagsToFile(ctx, []string{"music", "mp3"}, "b.mp3"))

	sub, err := s.SubTags(ctx, []string{"music"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"flac", "mp3"}, sub)

	// music and flac are both excluded; mp3 remains even though it
	// doesn't co-occur with flac on any single file: sub_tags returns
	// every other tag in the vocabulary, not just tags implied by the
	// current projection's files (spec.md §3 invariant 4 / §9).
	sub, err = s.SubTags(ctx, []string{"music", "flac"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mp3"}, sub)
}

func TestSubTagsIncludesTagsWithNoFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateTag(ctx, "red"))

	sub, err := s.SubTags(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"red"}, sub)
}

func TestConfigRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetConfig(ctx, "source", "/srv/tagsfs/source"))
	got, err := s.Config(ctx, "source")
	require.NoError(t, err)
	assert.Equal(t, "/srv/tagsfs/source", got)

	require.NoError(t, s.SetConfig(ctx, "source", "/srv/tagsfs/source2"))
	got, err = s.Config(ctx, "source")
	require.NoError(t, err)
	assert.Equal(t, "/srv/tagsfs/source2", got)
}
