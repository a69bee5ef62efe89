package fs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sys/unix"

	"github.com/cafce25/tagsfs/internal/kind"
)

// statAttrs stats path and converts the result to fuseops.InodeAttributes.
// Used for both File entries (stat of the backing file) and TagDir entries
// (stat of the source directory itself, substituting the caller's inode
// id), mirroring file_attr_of_file's reuse of a single stat call for both
// variants.
func statAttrs(path string) (fuseops.InodeAttributes, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fuseops.InodeAttributes{}, kind.Wrap(kind.SyscallFailure, err)
	}

	return fuseops.InodeAttributes{
		Size:   uint64(st.Size),
		Nlink:  uint64(st.Nlink),
		Mode:   os.FileMode(st.Mode) & os.ModePerm | modeTypeBits(st.Mode),
		Atime:  time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime:  time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime:  time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Crtime: time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Uid:    st.Uid,
		Gid:    st.Gid,
	}, nil
}

func modeTypeBits(raw uint32) os.FileMode {
	switch raw & unix.S_IFMT {
	case unix.S_IFDIR:
		return os.ModeDir
	case unix.S_IFLNK:
		return os.ModeSymlink
	default:
		return 0
	}
}

// applySetAttr mutates the backing file at path per the fields actually
// supplied in op, matching setattr's "only touch what was requested"
// semantics; ctime/crtime/flags are accepted but ignored, as in the
// original (there is no Go-reachable equivalent to chflags here).
func applySetAttr(path string, op *fuseops.SetInodeAttributesOp) error {
	if op.Mode != nil {
		if err := os.Chmod(path, *op.Mode); err != nil {
			return kind.Wrap(kind.SyscallFailure, err)
		}
	}
	if op.Size != nil {
		if err := os.Truncate(path, int64(*op.Size)); err != nil {
			return kind.Wrap(kind.SyscallFailure, err)
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		cur, err := statAttrs(path)
		if err != nil {
			return err
		}
		atime := cur.Atime
		if op.Atime != nil {
			atime = *op.Atime
		}
		mtime := cur.Mtime
		if op.Mtime != nil {
			mtime = *op.Mtime
		}
		times := []unix.Timeval{
			unix.NsecToTimeval(atime.UnixNano()),
			unix.NsecToTimeval(mtime.UnixNano()),
		}
		if err := unix.Utimes(path, times); err != nil {
			return kind.Wrap(kind.SyscallFailure, err)
		}
	}
	return nil
}
