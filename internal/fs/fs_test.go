package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafce25/tagsfs/internal/index"
)

func newTestFS(t *testing.T) (*FileSystem, string) {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	require.NoError(t, os.Mkdir(source, 0o755))

	idx, err := index.Open(context.Background(), filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	fsys := New(idx, source, nil)
	require.NoError(t, fsys.Init(&fuseops.InitOp{}))
	return fsys, source
}

func writeBackingFile(t *testing.T, source, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(source, name), data, 0o644))
}

func mkdir(t *testing.T, fsys *FileSystem, parent fuseops.InodeID, name string) fuseops.InodeID {
	t.Helper()
	op := &fuseops.MkDirOp{Parent: parent, Name: name}
	require.NoError(t, fsys.MkDir(op))
	return op.Entry.Child
}

func createFile(t *testing.T, fsys *FileSystem, parent fuseops.InodeID, name string) fuseops.InodeID {
	t.Helper()
	op := &fuseops.CreateFileOp{Parent: parent, Name: name, Mode: 0o644}
	require.NoError(t, fsys.CreateFile(op))
	return op.Entry.Child
}

func TestInitAssignsRootInode(t *testing.T) {
	fsys, _ := newTestFS(t)
	require.NoError(t, fsys.Init(&fuseops.InitOp{}))
}

func TestMkDirThenLookUpInodeResolvesImmediatelyWithNoFiles(t *testing.T) {
	fsys, _ := newTestFS(t)

	// A tag created by MkDir is a candidate sub-tag of the root, and so
	// resolvable by LookUpInode, even before any file carries it:
	// sub_tags enumerates the whole tag vocabulary, not just tags
	// co-occurring on some file (spec.md §3 invariant 4 / §9).
	music := mkdir(t, fsys, fuseops.RootInodeID, "music")

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "music"}
	require.NoError(t, fsys.LookUpInode(lookup))
	assert.Equal(t, music, lookup.Entry.Child)
}

func TestCreateFileThenLookUpInodeVisibleUnderItsTags(t *testing.T) {
	fsys, _ := newTestFS(t)

	music := mkdir(t, fsys, fuseops.RootInodeID, "music")
	song := createFile(t, fsys, music, "song.flac")

	lookup := &fuseops.LookUpInodeOp{Parent: music, Name: "song.flac"}
	require.NoError(t, fsys.LookUpInode(lookup))
	assert.Equal(t, song, lookup.Entry.Child)

	rootLookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "song.flac"}
	require.NoError(t, fsys.LookUpInode(rootLookup))
}

func TestCreateFileTwiceFailsWithExists(t *testing.T) {
	fsys, _ := newTestFS(t)

	createFile(t, fsys, fuseops.RootInodeID, "song.flac")
	err := fsys.CreateFile(&fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "song.flac", Mode: 0o644})
	require.Error(t, err)
}

func TestLookUpInodeHidesUntaggedFileUnderTagDir(t *testing.T) {
	fsys, source := newTestFS(t)

	writeBackingFile(t, source, "hidden.txt", []byte("x"))
	music := mkdir(t, fsys, fuseops.RootInodeID, "music")

	err := fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: music, Name: "hidden.txt"})
	require.Error(t, err)
}

func TestWriteThenReadFileRoundTrips(t *testing.T) {
	fsys, _ := newTestFS(t)

	song := createFile(t, fsys, fuseops.RootInodeID, "song.flac")

	write := &fuseops.WriteFileOp{Inode: song, Offset: 0, Data: []byte("hello")}
	require.NoError(t, fsys.WriteFile(write))

	read := &fuseops.ReadFileOp{Inode: song, Offset: 0, Size: 5}
	require.NoError(t, fsys.ReadFile(read))
	assert.Equal(t, []byte("hello"), read.Data)
}

func TestUnlinkUnderTagDetachesWithoutDeletingBackingFile(t *testing.T) {
	fsys, source := newTestFS(t)

	music := mkdir(t, fsys, fuseops.RootInodeID, "music")
	createFile(t, fsys, music, "song.flac")

	require.NoError(t, fsys.Unlink(&fuseops.UnlinkOp{Parent: music, Name: "song.flac"}))

	_, statErr := os.Stat(filepath.Join(source, "song.flac"))
	assert.NoError(t, statErr)

	err := fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: music, Name: "song.flac"})
	assert.Error(t, err)
}

func TestUnlinkAtRootDeletesBackingFile(t *testing.T) {
	fsys, source := newTestFS(t)

	createFile(t, fsys, fuseops.RootInodeID, "song.flac")
	require.NoError(t, fsys.Unlink(&fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "song.flac"}))

	_, statErr := os.Stat(filepath.Join(source, "song.flac"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRmDirDeletesTagGlobally(t *testing.T) {
	fsys, _ := newTestFS(t)

	music := mkdir(t, fsys, fuseops.RootInodeID, "music")
	createFile(t, fsys, fuseops.RootInodeID, "song.flac")

	link := &fuseops.CreateLinkOp{Target: mustInode(t, fsys, "song.flac"), Parent: music}
	require.NoError(t, fsys.CreateLink(link))

	require.NoError(t, fsys.RmDir(&fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "music"}))

	err := fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "music"})
	assert.Error(t, err)
}

func TestReadDirListsTaggedFilesAndSubTags(t *testing.T) {
	fsys, _ := newTestFS(t)

	music := mkdir(t, fsys, fuseops.RootInodeID, "music")
	flac := mkdir(t, fsys, fuseops.RootInodeID, "flac")

	song := createFile(t, fsys, music, "song.flac")
	link := &fuseops.CreateLinkOp{Target: song, Parent: flac}
	require.NoError(t, fsys.CreateLink(link))

	read := &fuseops.ReadDirOp{Inode: music, Offset: 0, Size: 4096}
	require.NoError(t, fsys.ReadDir(read))
	assert.NotEmpty(t, read.Data)
}

func TestSetInodeAttributesRejectsTagDir(t *testing.T) {
	fsys, _ := newTestFS(t)

	err := fsys.SetInodeAttributes(&fuseops.SetInodeAttributesOp{Inode: fuseops.RootInodeID})
	assert.Error(t, err)
}

func TestRenameAppliesSymmetricTagDifference(t *testing.T) {
	fsys, _ := newTestFS(t)

	music := mkdir(t, fsys, fuseops.RootInodeID, "music")
	flac := mkdir(t, fsys, fuseops.RootInodeID, "flac")
	createFile(t, fsys, music, "song.flac")

	require.NoError(t, fsys.Rename(&fuseops.RenameOp{
		OldParent: music,
		OldName:   "song.flac",
		NewParent: flac,
		NewName:   "song.flac",
	}))

	// song.flac should no longer carry "music" ...
	err := fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: music, Name: "song.flac"})
	assert.Error(t, err)

	// ... but should now carry "flac".
	require.NoError(t, fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: flac, Name: "song.flac"}))
}

func TestCreateLinkAddsNewParentTags(t *testing.T) {
	fsys, _ := newTestFS(t)

	music := mkdir(t, fsys, fuseops.RootInodeID, "music")
	flac := mkdir(t, fsys, fuseops.RootInodeID, "flac")
	song := createFile(t, fsys, music, "song.flac")

	link := &fuseops.CreateLinkOp{Target: song, Parent: flac}
	require.NoError(t, fsys.CreateLink(link))

	// Now visible under both music and flac.
	require.NoError(t, fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: music, Name: "song.flac"}))
	require.NoError(t, fsys.LookUpInode(&fuseops.LookUpInodeOp{Parent: flac, Name: "song.flac"}))
}

func TestStatFSReturnsConstantShape(t *testing.T) {
	fsys, _ := newTestFS(t)

	op := &fuseops.StatFSOp{}
	require.NoError(t, fsys.StatFS(op))
	assert.Equal(t, uint32(512), op.BlockSize)
	assert.Equal(t, uint64(0), op.Blocks)
}

func mustInode(t *testing.T, fsys *FileSystem, name string) fuseops.InodeID {
	t.Helper()
	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: name}
	require.NoError(t, fsys.LookUpInode(lookup))
	return lookup.Entry.Child
}
