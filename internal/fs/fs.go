// Package fs implements tagsfs's FUSE surface: the fuseutil.FileSystem
// that translates kernel operations into reads and writes against the
// Entry model (internal/tags) and the relational Index (internal/index),
// against a flat backing "source" directory holding the real file bytes.
//
// Grounded on gcsfuse's fs/fs.go fileSystem for the idiomatic shape of a
// Go fuseutil.FileSystem: a struct embedding
// fuseutil.NotImplementedFileSystem, methods of the form
// (op *fuseops.XxxOp) (err error) with no context parameter of their
// own (fuseutil.NewFileSystemServer's dispatch loop calls op.Respond(err)
// once the method returns), and on original_source/src/filesystem.rs's
// TagsFs for every operation's tag-set semantics.
package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/cafce25/tagsfs/internal/index"
	"github.com/cafce25/tagsfs/internal/kind"
	"github.com/cafce25/tagsfs/internal/logger"
	"github.com/cafce25/tagsfs/internal/metrics"
	"github.com/cafce25/tagsfs/internal/tags"
)

// FileSystem is tagsfs's fuseutil.FileSystem implementation. The zero
// value is not usable; construct with New.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	idx     *index.Store
	source  string
	metrics *metrics.Registry
}

// New builds a FileSystem rooted at source (the flat directory holding
// backing files), backed by idx. reg may be nil.
func New(idx *index.Store, source string, reg *metrics.Registry) *FileSystem {
	return &FileSystem{idx: idx, source: source, metrics: reg}
}

func (fs *FileSystem) observe(op string, start time.Time, err error) {
	fs.metrics.Observe(op, time.Since(start).Seconds(), err)
	if err != nil {
		logger.Debugf("%s: %v", op, err)
	}
}

// background stands in for op.Context() throughout: tagsfs's operations
// are local sqlite/file-descriptor calls with nothing worth cancelling
// mid-flight, and using op.Context() directly would tie every method to
// a live kernel request, making them impossible to exercise with the
// bare op literals internal/fs's tests construct. See DESIGN.md.
func background() context.Context { return context.Background() }

func isSuperset(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// difference returns the elements of a not present in b.
func difference(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	return out
}

// Init resolves the root tag directory (the empty tag set) through
// InodeOrCreate and fails with EIO unless its inode id is
// fuseops.RootInodeID. On a fresh Index the root row is created here, as
// the first inode, so an unseeded Index does not make Init fail.
func (fs *FileSystem) Init(op *fuseops.InitOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("Init", start, err) }()
	logger.Tracef("init")

	ino, ierr := fs.idx.InodeOrCreate(background(), tags.NewTagDir())
	if ierr != nil {
		return errnoFor(ierr)
	}
	if fuseops.InodeID(ino) != fuseops.RootInodeID {
		logger.Errorf("root tag dir resolved to inode %d, want %d", ino, fuseops.RootInodeID)
		return fuse.EIO
	}
	return nil
}

// LookUpInode resolves name under parent (a TagDir) either as a backing
// file, visible only when parent's tags are a subset of the file's tags,
// or as a known tag to conjoin into a child TagDir.
func (fs *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("LookUpInode", start, err) }()
	logger.Tracef("lookup %d %q", op.Parent, op.Name)

	ctx := background()
	parent, err := fs.idx.Entry(ctx, uint64(op.Parent))
	if err != nil {
		return errnoFor(err)
	}
	if !parent.IsTagDir() {
		return syscall.EINVAL
	}
	parentTags := parent.Tags()

	path := filepath.Join(fs.source, op.Name)
	if fi, statErr := os.Stat(path); statErr == nil && fi.Mode().IsRegular() {
		fileTags, ferr := fs.idx.FileTags(ctx, op.Name)
		if ferr != nil {
			return errnoFor(ferr)
		}
		if !isSuperset(fileTags, parentTags) {
			return fuse.ENOENT
		}
		ino, ierr := fs.idx.InodeOrCreate(ctx, tags.NewFile(op.Name))
		if ierr != nil {
			return errnoFor(ierr)
		}
		attrs, aerr := statAttrs(path)
		if aerr != nil {
			return errnoFor(aerr)
		}
		op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
		return nil
	}

	sub, serr := fs.idx.SubTags(ctx, parentTags)
	if serr != nil {
		return errnoFor(serr)
	}
	for _, t := range sub {
		if t != op.Name {
			continue
		}
		child := parent.WithTag(t)
		ino, ierr := fs.idx.InodeOrCreate(ctx, child)
		if ierr != nil {
			return errnoFor(ierr)
		}
		attrs, aerr := statAttrs(fs.source)
		if aerr != nil {
			return errnoFor(aerr)
		}
		op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
		return nil
	}
	return fuse.ENOENT
}

// GetInodeAttributes stats the backing file for a File entry, or the
// source directory itself (substituting ino) for a TagDir entry.
func (fs *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("GetInodeAttributes", start, err) }()
	logger.Tracef("getattr(%d)", op.Inode)

	entry, err := fs.idx.Entry(background(), uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	path := fs.source
	if entry.IsFile() {
		path = filepath.Join(fs.source, entry.Name())
	}
	attrs, aerr := statAttrs(path)
	if aerr != nil {
		return errnoFor(aerr)
	}
	op.Attributes = attrs
	return nil
}

// SetInodeAttributes applies chmod/truncate/utimes to a File entry's
// backing file. TagDir entries reject setattr with EINVAL, as in the
// original. The library's SetInodeAttributesOp carries no uid/gid
// fields, so chown (present in original_source's setattr) has no
// reachable equivalent here; see DESIGN.md.
func (fs *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("SetInodeAttributes", start, err) }()
	logger.Tracef("setattr(%d)", op.Inode)

	entry, err := fs.idx.Entry(background(), uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	if !entry.IsFile() {
		return syscall.EINVAL
	}
	path := filepath.Join(fs.source, entry.Name())
	if saErr := applySetAttr(path, op); saErr != nil {
		return errnoFor(saErr)
	}
	attrs, aerr := statAttrs(path)
	if aerr != nil {
		return errnoFor(aerr)
	}
	op.Attributes = attrs
	return nil
}

// ForgetInode is a no-op: the Index is the inode table, and entries
// persist across forget the same way the original never evicts rows.
func (fs *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	return nil
}

// MkDir creates a new tag in the global vocabulary, ignoring parent:
// tags aren't nested, so "mkdir" anywhere just brings a tag into
// existence. Unlike the original (which reused a raw tag_id as the
// reply's inode, per a TODO in filesystem.rs acknowledging the shortcut),
// this resolves a real inode via InodeOrCreate so the returned
// ChildInodeEntry is consistent with later lookups of the same name.
func (fs *FileSystem) MkDir(op *fuseops.MkDirOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("MkDir", start, err) }()
	logger.Tracef("mkdir(parent: %d, name: %q)", op.Parent, op.Name)

	ctx := background()
	if cerr := fs.idx.CreateTag(ctx, op.Name); cerr != nil {
		return errnoFor(cerr)
	}
	ino, ierr := fs.idx.InodeOrCreate(ctx, tags.NewTagDir(op.Name))
	if ierr != nil {
		return errnoFor(ierr)
	}
	attrs, aerr := statAttrs(fs.source)
	if aerr != nil {
		return errnoFor(aerr)
	}
	op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
	return nil
}

// CreateFile creates a backing file under the flat source directory and
// attaches parent's tags to it. Existence is checked before any Index
// mutation, mirroring the original's is_file()-then-creat ordering, so a
// racing create never leaves a half-tagged file behind.
func (fs *FileSystem) CreateFile(op *fuseops.CreateFileOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("CreateFile", start, err) }()
	logger.Tracef("create(parent: %d, name: %q)", op.Parent, op.Name)

	ctx := background()
	parent, perr := fs.idx.Entry(ctx, uint64(op.Parent))
	if perr != nil {
		return errnoFor(perr)
	}
	if !parent.IsTagDir() {
		return syscall.EINVAL
	}

	path := filepath.Join(fs.source, op.Name)
	if _, statErr := os.Stat(path); statErr == nil {
		return syscall.EEXIST
	}

	f, openErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, op.Mode)
	if openErr != nil {
		if os.IsExist(openErr) {
			return syscall.EEXIST
		}
		return errnoFor(kind.Wrap(kind.SyscallFailure, openErr))
	}
	f.Close()

	ino, ierr := fs.idx.InodeOrCreate(ctx, tags.NewFile(op.Name))
	if ierr != nil {
		return errnoFor(ierr)
	}
	if aerr := fs.idx.AddTagsToFile(ctx, parent.Tags(), op.Name); aerr != nil {
		return errnoFor(aerr)
	}

	attrs, aerr := statAttrs(path)
	if aerr != nil {
		return errnoFor(aerr)
	}
	op.Entry = fuseops.ChildInodeEntry{Child: fuseops.InodeID(ino), Attributes: attrs}
	op.Handle = 0
	return nil
}

// CreateSymlink is unsupported: tagsfs's backing store has no notion of a
// symlink distinct from a tagged file, so the original rejects it with
// EPERM rather than ENOSYS.
func (fs *FileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) error {
	return syscall.EPERM
}

// RmDir deletes the tag named by name from the global vocabulary,
// cascading to every file that carried it. parent is ignored, mirroring
// MkDir's non-scoped tag semantics.
func (fs *FileSystem) RmDir(op *fuseops.RmDirOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("RmDir", start, err) }()
	logger.Tracef("rmdir(parent: %d, name: %q)", op.Parent, op.Name)
	if derr := fs.idx.DeleteTags(background(), []string{op.Name}); derr != nil {
		return errnoFor(derr)
	}
	return nil
}

// Unlink removes name from parent: deleting the backing file outright if
// parent is the root (empty tag set), or otherwise just detaching
// parent's tags from it so it survives under any tag combination that
// still matches.
func (fs *FileSystem) Unlink(op *fuseops.UnlinkOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("Unlink", start, err) }()
	logger.Tracef("unlink(parent: %d, name: %q)", op.Parent, op.Name)

	ctx := background()
	parent, perr := fs.idx.Entry(ctx, uint64(op.Parent))
	if perr != nil {
		return errnoFor(perr)
	}
	if !parent.IsTagDir() {
		return syscall.EINVAL
	}
	if parent.IsRoot() {
		if rmErr := os.Remove(filepath.Join(fs.source, op.Name)); rmErr != nil {
			return errnoFor(kind.Wrap(kind.SyscallFailure, rmErr))
		}
		return nil
	}
	if rerr := fs.idx.RemoveTagsFromFile(ctx, parent.Tags(), op.Name); rerr != nil {
		return errnoFor(rerr)
	}
	return nil
}

// Rename treats a move between two tag directories as a retagging: the
// file loses every tag present only in oldParent and gains every tag
// present only in newParent. newName is ignored, as in the original
// (tags identify membership, not a display name).
func (fs *FileSystem) Rename(op *fuseops.RenameOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("Rename", start, err) }()
	logger.Tracef("rename(old_parent: %d, old_name: %q, new_parent: %d)", op.OldParent, op.OldName, op.NewParent)

	ctx := background()
	oldParent, err := fs.idx.Entry(ctx, uint64(op.OldParent))
	if err != nil {
		return errnoFor(err)
	}
	newParent, err := fs.idx.Entry(ctx, uint64(op.NewParent))
	if err != nil {
		return errnoFor(err)
	}
	if !oldParent.IsTagDir() || !newParent.IsTagDir() {
		return syscall.EINVAL
	}

	toRemove := difference(oldParent.Tags(), newParent.Tags())
	toAdd := difference(newParent.Tags(), oldParent.Tags())
	if rerr := fs.idx.RemoveTagsFromFile(ctx, toRemove, op.OldName); rerr != nil {
		return errnoFor(rerr)
	}
	if aerr := fs.idx.AddTagsToFile(ctx, toAdd, op.OldName); aerr != nil {
		return errnoFor(aerr)
	}
	return nil
}

// CreateLink implements tagsfs's hardlink operation as "add newparent's
// tags to an existing file": target must already be a File, parent must
// be a TagDir. op.Name is ignored, matching Rename's NewName.
func (fs *FileSystem) CreateLink(op *fuseops.CreateLinkOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("CreateLink", start, err) }()
	logger.Tracef("link(target: %d, parent: %d)", op.Target, op.Parent)

	ctx := background()
	entry, eerr := fs.idx.Entry(ctx, uint64(op.Target))
	if eerr != nil {
		return errnoFor(eerr)
	}
	if !entry.IsFile() {
		return syscall.EINVAL
	}
	newParent, perr := fs.idx.Entry(ctx, uint64(op.Parent))
	if perr != nil {
		return errnoFor(perr)
	}
	if !newParent.IsTagDir() {
		return syscall.EINVAL
	}
	if aerr := fs.idx.AddTagsToFile(ctx, newParent.Tags(), entry.Name()); aerr != nil {
		return errnoFor(aerr)
	}
	attrs, aerr := statAttrs(filepath.Join(fs.source, entry.Name()))
	if aerr != nil {
		return errnoFor(aerr)
	}
	op.Entry = fuseops.ChildInodeEntry{Child: op.Target, Attributes: attrs}
	return nil
}

// OpenDir and OpenFile are trivial: tagsfs never holds a handle open
// across calls (ReadDir/ReadFile/WriteFile reopen the backing path each
// time), so every handle is 0, matching the original.
func (fs *FileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	entry, err := fs.idx.Entry(background(), uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	if !entry.IsTagDir() {
		return syscall.EINVAL
	}
	op.Handle = 0
	return nil
}

// ReadDir lists a TagDir's children in two phases against a single
// cumulative offset: first every backing file whose tags are a superset
// of the directory's tags, then every sub-tag as a singleton TagDir
// (e.g. under /music/flac, the "mp3" entry resolves to tag dir {mp3},
// not {music,flac,mp3}) -- a quirk of the original preserved faithfully
// rather than "fixed", since it is cd-compatible: entering any listed
// name re-resolves it through LookUpInode, which does conjoin properly.
func (fs *FileSystem) ReadDir(op *fuseops.ReadDirOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("ReadDir", start, err) }()
	logger.Tracef("readdir %d %d", op.Inode, op.Offset)

	ctx := background()
	entry, eerr := fs.idx.Entry(ctx, uint64(op.Inode))
	if eerr != nil {
		return errnoFor(eerr)
	}
	if !entry.IsTagDir() {
		return syscall.EINVAL
	}
	parentTags := entry.Tags()

	dirents, rerr := os.ReadDir(fs.source)
	if rerr != nil {
		return errnoFor(kind.Wrap(kind.StorageFailure, rerr))
	}

	buf := make([]byte, op.Size)
	n := 0
	var cur fuseops.DirOffset

	for _, de := range dirents {
		cur++
		if cur <= op.Offset {
			continue
		}
		if de.IsDir() {
			continue
		}
		fileTags, ferr := fs.idx.FileTags(ctx, de.Name())
		if ferr != nil {
			return errnoFor(ferr)
		}
		if !isSuperset(fileTags, parentTags) {
			continue
		}
		ino, ierr := fs.idx.InodeOrCreate(ctx, tags.NewFile(de.Name()))
		if ierr != nil {
			return errnoFor(ierr)
		}
		wrote := fuseutil.WriteDirent(buf[n:], fuseutil.Dirent{
			Offset: cur,
			Inode:  fuseops.InodeID(ino),
			Name:   de.Name(),
			Type:   fuseutil.DT_File,
		})
		if wrote == 0 {
			break
		}
		n += wrote
	}

	sub, serr := fs.idx.SubTags(ctx, parentTags)
	if serr != nil {
		return errnoFor(serr)
	}
	for _, tag := range sub {
		cur++
		if cur <= op.Offset {
			continue
		}
		ino, ierr := fs.idx.InodeOrCreate(ctx, tags.NewTagDir(tag))
		if ierr != nil {
			return errnoFor(ierr)
		}
		wrote := fuseutil.WriteDirent(buf[n:], fuseutil.Dirent{
			Offset: cur,
			Inode:  fuseops.InodeID(ino),
			Name:   tag,
			Type:   fuseutil.DT_Directory,
		})
		if wrote == 0 {
			break
		}
		n += wrote
	}

	op.Data = buf[:n]
	return nil
}

// ReleaseDirHandle is a no-op: there is no handle table to release from.
func (fs *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

// OpenFile only validates that inode is a File; the actual read/write
// paths reopen the backing file themselves.
func (fs *FileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	entry, err := fs.idx.Entry(background(), uint64(op.Inode))
	if err != nil {
		return errnoFor(err)
	}
	if !entry.IsFile() {
		return syscall.EINVAL
	}
	op.Handle = 0
	return nil
}

// ReadFile reads from the backing file at the given offset. Reading a
// TagDir returns ENODATA, matching the original's libc ENODATA and §7's
// error table (the other type-mismatch cases all map to EINVAL instead).
func (fs *FileSystem) ReadFile(op *fuseops.ReadFileOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("ReadFile", start, err) }()
	logger.Tracef("read %d", op.Inode)

	entry, eerr := fs.idx.Entry(background(), uint64(op.Inode))
	if eerr != nil {
		return errnoFor(eerr)
	}
	if !entry.IsFile() {
		return syscall.ENODATA
	}
	f, openErr := os.Open(filepath.Join(fs.source, entry.Name()))
	if openErr != nil {
		return errnoFor(kind.Wrap(kind.BackingAbsent, openErr))
	}
	defer f.Close()

	buf := make([]byte, op.Size)
	n, readErr := f.ReadAt(buf, op.Offset)
	if readErr != nil && readErr != io.EOF {
		return errnoFor(kind.Wrap(kind.SyscallFailure, readErr))
	}
	op.Data = buf[:n]
	return nil
}

// WriteFile writes op.Data at op.Offset into the backing file. Writing to
// a TagDir is rejected with EINVAL.
func (fs *FileSystem) WriteFile(op *fuseops.WriteFileOp) (err error) {
	start := time.Now()
	defer func() { fs.observe("WriteFile", start, err) }()
	logger.Tracef("write %d %d", op.Inode, len(op.Data))

	entry, eerr := fs.idx.Entry(background(), uint64(op.Inode))
	if eerr != nil {
		return errnoFor(eerr)
	}
	if !entry.IsFile() {
		return syscall.EINVAL
	}
	f, openErr := os.OpenFile(filepath.Join(fs.source, entry.Name()), os.O_WRONLY, 0)
	if openErr != nil {
		return errnoFor(kind.Wrap(kind.BackingAbsent, openErr))
	}
	defer f.Close()

	if _, werr := f.WriteAt(op.Data, op.Offset); werr != nil {
		return errnoFor(kind.Wrap(kind.SyscallFailure, werr))
	}
	return nil
}

// SyncFile and FlushFile have nothing to do: every write lands directly
// in the backing file via WriteAt, with no buffering layer to flush.
func (fs *FileSystem) SyncFile(op *fuseops.SyncFileOp) error {
	return nil
}

func (fs *FileSystem) FlushFile(op *fuseops.FlushFileOp) error {
	return nil
}

// ReleaseFileHandle is a no-op, mirroring ReleaseDirHandle.
func (fs *FileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

// StatFS reports a filesystem with no meaningful block/inode accounting,
// matching the original's constant statfs reply: zero usage counters and a
// 512-byte block size. It sets no maximum name length.
func (fs *FileSystem) StatFS(op *fuseops.StatFSOp) error {
	op.BlockSize = 512
	op.Blocks = 0
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.Inodes = 0
	op.InodesFree = 0
	return nil
}
