package objdb

import (
	"fmt"
	"path"
	"strings"

	"go.etcd.io/bbolt"
)

// refBucket is the single bbolt bucket holding every reference. The
// teacher's store/kv.go keeps one bucket per concern (key-to-hash,
// git-to-hash, config); references here are simpler, so one bucket
// suffices, but the bucket-per-concern-with-explicit-creation idiom and
// the Open/Close lifecycle are carried over directly.
var refBucket = []byte("refs")

const symbolicPrefix = "ref:"
const objectPrefix = "obj:"

type refStore struct {
	db *bbolt.DB
}

func openRefStore(path string) (*refStore, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("objdb: open ref store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(refBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("objdb: init ref bucket: %w", err)
	}
	return &refStore{db: db}, nil
}

func (r *refStore) close() error {
	return r.db.Close()
}

func (r *refStore) setObject(name string, id ID) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(refBucket).Put([]byte(name), []byte(objectPrefix+id.String()))
	})
}

func (r *refStore) setSymbolic(name, target string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(refBucket).Put([]byte(name), []byte(symbolicPrefix+target))
	})
}

func (r *refStore) rawGet(name string) (string, bool, error) {
	var value string
	var ok bool
	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(refBucket).Get([]byte(name))
		if v != nil {
			value = string(v)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

// resolve follows symbolic references to their terminal object id.
// Invariant 2 of the reference layout (symbolic references resolve
// transitively) is enforced here with a bounded hop count to guard
// against an accidental reference cycle.
func (r *refStore) resolve(name string) (ID, error) {
	const maxHops = 32
	current := name
	for hop := 0; hop < maxHops; hop++ {
		value, ok, err := r.rawGet(current)
		if err != nil {
			return ID{}, err
		}
		if !ok {
			return ID{}, fmt.Errorf("%w: ref %q", ErrNotFound, name)
		}
		switch {
		case strings.HasPrefix(value, objectPrefix):
			return ParseID(strings.TrimPrefix(value, objectPrefix))
		case strings.HasPrefix(value, symbolicPrefix):
			current = strings.TrimPrefix(value, symbolicPrefix)
		default:
			return ID{}, fmt.Errorf("%w: malformed ref value for %q", ErrCorrupt, current)
		}
	}
	return ID{}, fmt.Errorf("objdb: symbolic reference cycle resolving %q", name)
}

func (r *refStore) exists(name string) (bool, error) {
	_, ok, err := r.rawGet(name)
	return ok, err
}

// glob lists every reference name matching a shell-style glob, e.g.
// "refs/*/result". Matching is done with path.Match per path segment
// joined back with "/", mirroring the semantics git's for-each-ref glob
// support and the reference-layout invariant that package namespaces are
// enumerable without a prior index.
func (r *refStore) glob(pattern string) ([]string, error) {
	var names []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(refBucket).ForEach(func(k, _ []byte) error {
			name := string(k)
			matched, err := path.Match(pattern, name)
			if err != nil {
				return err
			}
			if matched {
				names = append(names, name)
			}
			return nil
		})
	})
	return names, err
}
