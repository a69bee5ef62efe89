package fs

import (
	"errors"
	"syscall"

	"github.com/jacobsa/fuse"

	"github.com/cafce25/tagsfs/internal/kind"
)

// errnoFor maps a kind-wrapped error to the errno the kernel should see
// (a fuse.Exxx constant where the package defines one, a syscall.Exxx
// value otherwise), one case per kind.Kind. Operations that need an errno the kind table doesn't cover
// (ENODATA on reading a tag directory, EPERM on symlink) return it
// directly rather than going through here.
func errnoFor(err error) error {
	if err == nil {
		return nil
	}
	switch kind.Of(err) {
	case kind.NotATagDir, kind.NotAFile:
		return syscall.EINVAL
	case kind.UnknownInode, kind.BackingAbsent:
		return fuse.ENOENT
	case kind.InvalidDiscriminant, kind.StorageFailure:
		return syscall.ENODEV
	case kind.AlreadyExists:
		return syscall.EEXIST
	case kind.Unsupported:
		return fuse.ENOSYS
	case kind.SyscallFailure:
		var errno syscall.Errno
		if errors.As(err, &errno) {
			return errno
		}
		return fuse.EIO
	default:
		return fuse.EIO
	}
}
