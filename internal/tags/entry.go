// Package tags defines the Entry model backing every inode in tagsfs: a
// directory standing for a set of tags, or a file standing for a backing
// filename. Grounded on original_source/src/filesystem.rs's Entry enum
// (Entry::Tags(BTreeSet<String>) / Entry::File(OsString)) and its
// discrimimant_data canonicalization.
package tags

import (
	"sort"
	"strings"

	"github.com/cafce25/tagsfs/internal/kind"
)

// Discriminants stored in the inodes table's discriminant column.
const (
	DiscriminantTagDir = "tags"
	DiscriminantFile   = "file"
)

// Entry is the tagged-variant type every inode resolves to: either a
// TagDir naming the set of tags conjoined to reach it, or a File naming a
// backing filename. The zero Entry is the root TagDir (the same as
// NewTagDir()); use NewTagDir or NewFile to build entries.
type Entry struct {
	isFile bool
	tags   []string // sorted, deduplicated; empty means the root tag dir
	name   string   // valid only when isFile
}

// NewTagDir builds a TagDir entry from an unordered, possibly-duplicated
// tag set, canonicalizing it to sorted, deduplicated order.
func NewTagDir(tagSet ...string) Entry {
	seen := make(map[string]struct{}, len(tagSet))
	out := make([]string, 0, len(tagSet))
	for _, t := range tagSet {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return Entry{tags: out}
}

// NewFile builds a File entry for the given backing filename.
func NewFile(name string) Entry {
	return Entry{isFile: true, name: name}
}

// IsFile reports whether the entry is a File variant.
func (e Entry) IsFile() bool { return e.isFile }

// IsTagDir reports whether the entry is a TagDir variant.
func (e Entry) IsTagDir() bool { return !e.isFile }

// IsRoot reports whether the entry is the root tag directory (empty tag
// set).
func (e Entry) IsRoot() bool { return !e.isFile && len(e.tags) == 0 }

// Tags returns the entry's tag set. Callers must not mutate the returned
// slice; it aliases the Entry's internal storage.
func (e Entry) Tags() []string { return e.tags }

// Name returns the entry's backing filename. Valid only when IsFile.
func (e Entry) Name() string { return e.name }

// HasTag reports whether t is a member of the entry's tag set.
func (e Entry) HasTag(t string) bool {
	for _, x := range e.tags {
		if x == t {
			return true
		}
	}
	return false
}

// WithTag returns a new TagDir entry with t conjoined to the receiver's tag
// set. The receiver must be a TagDir.
func (e Entry) WithTag(t string) Entry {
	return NewTagDir(append(append([]string{}, e.tags...), t)...)
}

// Discriminant returns the discriminant/data pair used to look the entry
// up in, or persist it to, the inodes table.
func (e Entry) Discriminant() (discriminant, data string) {
	if e.isFile {
		return DiscriminantFile, e.name
	}
	return DiscriminantTagDir, strings.Join(e.tags, "/")
}

// FromRow reconstructs an Entry from an inodes row's discriminant and data
// columns, mirroring TagsFsDb::entry's row decoding.
func FromRow(discriminant, data string) (Entry, error) {
	switch discriminant {
	case DiscriminantTagDir:
		parts := strings.Split(data, "/")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				out = append(out, p)
			}
		}
		return NewTagDir(out...), nil
	case DiscriminantFile:
		return NewFile(data), nil
	default:
		return Entry{}, kind.Wrap(kind.InvalidDiscriminant, errInvalidDiscriminant(discriminant))
	}
}

type errInvalidDiscriminant string

func (e errInvalidDiscriminant) Error() string {
	return "invalid entry discriminant: " + string(e)
}
