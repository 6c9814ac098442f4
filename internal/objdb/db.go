package objdb

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// DB is the object database wrapper described by the store layer above
// it: content-addressed blob/tree/commit storage plus a reference
// namespace, combined behind one handle the way the teacher's
// store.Manager combines a bbolt handle with reference counting and a
// cas.CAS combines hashing with file storage. A single DB owns both the
// blob store and the ref store for one repository path.
type DB struct {
	mu    sync.RWMutex
	blobs *blobStore
	refs  *refStore
	codec *blobCodec
}

// Options configures Open.
type Options struct {
	// CompressBlobs enables zstd compression of blob payloads at rest.
	CompressBlobs bool
}

// Open opens (creating if necessary) the object database rooted at dir.
func Open(dir string, opts Options) (*DB, error) {
	blobs, err := newBlobStore(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, err
	}
	refs, err := openRefStore(filepath.Join(dir, "refs.db"))
	if err != nil {
		return nil, err
	}
	return &DB{
		blobs: blobs,
		refs:  refs,
		codec: newBlobCodec(opts.CompressBlobs),
	}, nil
}

// Close releases the underlying reference store handle.
func (db *DB) Close() error {
	return db.refs.close()
}

// PutBlob stores raw file content and returns its content address. The
// returned ID is always the hash of the plaintext, regardless of whether
// compression is enabled, so narinfo keys and dependency references stay
// stable if compression is toggled.
func (db *DB) PutBlob(data []byte) (ID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id := Sum(data)
	compressed, err := db.codec.compress(data)
	if err != nil {
		return id, err
	}
	if _, err := db.blobs.putWithID(id, compressed); err != nil {
		return id, err
	}
	return id, nil
}

// GetBlob retrieves and decompresses blob content, verifying it against
// id.
func (db *DB) GetBlob(id ID) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	raw, err := db.blobs.get(id)
	if err != nil {
		return nil, err
	}
	data, err := db.codec.decompress(raw)
	if err != nil {
		return nil, err
	}
	if Sum(data) != id {
		return nil, fmt.Errorf("%w: blob %s", ErrCorrupt, id)
	}
	return data, nil
}

// HasObject reports whether any object (blob, tree or commit) with id is
// present, without reading or verifying its content.
func (db *DB) HasObject(id ID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.blobs.has(id)
}

// GetRawObject returns an object's bytes exactly as stored — compressed
// for blobs, canonical plaintext for trees/commits — for peer transfer.
// A receiving peer stores these bytes verbatim under the same id via
// FetchRefs, so raw storage format must round-trip without this process
// interpreting it.
func (db *DB) GetRawObject(id ID) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.blobs.get(id)
}

// BuildTree stores a Tree and returns its id. Trees are never compressed:
// they are small and read on every traversal step.
func (db *DB) BuildTree(t *Tree) (ID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.blobs.put(canonicalTreeBytes(t))
}

// GetTree retrieves a Tree by id.
func (db *DB) GetTree(id ID) (*Tree, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	data, err := db.blobs.get(id)
	if err != nil {
		return nil, err
	}
	if Sum(data) != id {
		return nil, fmt.Errorf("%w: tree %s", ErrCorrupt, id)
	}
	return parseTreeBytes(data)
}

// LookupTreeEntry returns the entry named name within the tree id, or
// ErrNotFound.
func (db *DB) LookupTreeEntry(treeID ID, name string) (TreeEntry, error) {
	t, err := db.GetTree(treeID)
	if err != nil {
		return TreeEntry{}, err
	}
	e, ok := t.lookup(name)
	if !ok {
		return TreeEntry{}, fmt.Errorf("%w: entry %q", ErrNotFound, name)
	}
	return e, nil
}

// ListTreeEntries returns every entry of tree id, sorted by name.
func (db *DB) ListTreeEntries(treeID ID) ([]TreeEntry, error) {
	t, err := db.GetTree(treeID)
	if err != nil {
		return nil, err
	}
	return t.Entries, nil
}

// InsertIntoTree reads baseTree (ID{} for an empty tree), inserts or
// replaces the named entry, and writes the resulting tree, returning its
// id. This is the value-oriented equivalent of the teacher's
// repository.go update_tree / treebuilder.insert.
func (db *DB) InsertIntoTree(baseTree ID, name string, id ID, mode Mode) (ID, error) {
	var base *Tree
	if baseTree.IsZero() {
		base = &Tree{}
	} else {
		t, err := db.GetTree(baseTree)
		if err != nil {
			return ID{}, err
		}
		base = t
	}
	next := base.withInserted(name, id, mode)
	return db.BuildTree(next)
}

// Commit stores a Commit object with the given tree, parents and
// message, stamping Time at call time, and returns its id.
func (db *DB) Commit(tree ID, parents []ID, message string) (ID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c := &Commit{
		Tree:    tree,
		Parents: parents,
		Time:    time.Now().UTC(),
		Message: message,
	}
	return db.blobs.put(canonicalCommitBytes(c))
}

// GetCommit retrieves a Commit by id.
func (db *DB) GetCommit(id ID) (*Commit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	data, err := db.blobs.get(id)
	if err != nil {
		return nil, err
	}
	if Sum(data) != id {
		return nil, fmt.Errorf("%w: commit %s", ErrCorrupt, id)
	}
	return parseCommitBytes(data)
}

// ResolveRef follows name (including through symbolic indirection) to a
// terminal object id.
func (db *DB) ResolveRef(name string) (ID, error) {
	return db.refs.resolve(name)
}

// RawRef returns name's stored value exactly as written — "obj:<hex>" for
// a direct reference or "ref:<name>" for a symbolic one — without
// following symbolic indirection. Used by the peer wire protocol, which
// must preserve the symbolic-vs-direct distinction rather than always
// serving a flattened, resolved object id.
func (db *DB) RawRef(name string) (string, bool, error) {
	return db.refs.rawGet(name)
}

// SetRef points name directly at an object id.
func (db *DB) SetRef(name string, id ID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.refs.setObject(name, id)
}

// SetSymbolicRef points name at another reference name, to be resolved
// transitively by ResolveRef.
func (db *DB) SetSymbolicRef(name, target string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.refs.setSymbolic(name, target)
}

// RefExists reports whether name has any value set (direct or symbolic).
func (db *DB) RefExists(name string) (bool, error) {
	return db.refs.exists(name)
}

// GlobRefs lists every reference name matching a shell-style glob.
func (db *DB) GlobRefs(pattern string) ([]string, error) {
	return db.refs.glob(pattern)
}
