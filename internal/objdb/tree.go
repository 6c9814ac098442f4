package objdb

import (
	"bytes"
	"fmt"
	"sort"
)

// Mode is the type of a tree entry, mirroring the three kinds the archive
// codec itself understands (regular, executable, symlink) plus Tree for
// nesting.
type Mode int

const (
	ModeBlob Mode = iota
	ModeExec
	ModeLink
	ModeTree
)

func (m Mode) String() string {
	switch m {
	case ModeBlob:
		return "blob"
	case ModeExec:
		return "exec"
	case ModeLink:
		return "link"
	case ModeTree:
		return "tree"
	default:
		return "unknown"
	}
}

func parseMode(s string) (Mode, error) {
	switch s {
	case "blob":
		return ModeBlob, nil
	case "exec":
		return ModeExec, nil
	case "link":
		return ModeLink, nil
	case "tree":
		return ModeTree, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// TreeEntry is one named child of a Tree, in the teacher's treebuilder
// tradition of (name, id, mode) triples.
type TreeEntry struct {
	Name string
	ID   ID
	Mode Mode
}

// Tree is a directory node: a sorted list of named entries. Entries are
// always persisted sorted by raw byte name, the same ordering the archive
// codec requires of NAR directory entries, so a tree built here can be
// re-encoded without an extra sort pass.
type Tree struct {
	Entries []TreeEntry
}

// canonicalTreeBytes renders a Tree into its hashable, storable form:
// one line per entry, "<mode> <idhex> <name>\n", sorted by name.
func canonicalTreeBytes(t *Tree) []byte {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s %s %s\n", e.Mode, e.ID, e.Name)
	}
	return buf.Bytes()
}

func parseTreeBytes(data []byte) (*Tree, error) {
	t := &Tree{}
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		parts := bytes.SplitN(line, []byte(" "), 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: malformed tree entry %q", ErrCorrupt, line)
		}
		mode, err := parseMode(string(parts[0]))
		if err != nil {
			return nil, err
		}
		id, err := ParseID(string(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		t.Entries = append(t.Entries, TreeEntry{
			Name: string(parts[2]),
			ID:   id,
			Mode: mode,
		})
	}
	return t, nil
}

func (t *Tree) lookup(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// withInserted returns a new Tree with name inserted or replaced, the
// value-semantics equivalent of the teacher's treebuilder.insert, which
// reads the previous tree, mutates a builder and writes a new tree rather
// than mutating in place.
func (t *Tree) withInserted(name string, id ID, mode Mode) *Tree {
	next := &Tree{}
	replaced := false
	for _, e := range t.Entries {
		if e.Name == name {
			next.Entries = append(next.Entries, TreeEntry{Name: name, ID: id, Mode: mode})
			replaced = true
			continue
		}
		next.Entries = append(next.Entries, e)
	}
	if !replaced {
		next.Entries = append(next.Entries, TreeEntry{Name: name, ID: id, Mode: mode})
	}
	return next
}
