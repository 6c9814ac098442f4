package objdb

import (
	"fmt"
	"os"
	"path/filepath"
)

// blobStore is the sharded, content-addressed byte store backing every
// object kind (blob/tree/commit payloads alike are just bytes keyed by
// their ID). Layout and write-to-temp-then-rename discipline mirror the
// teacher's file-backed CAS: a 2-character fan-out directory keeps any
// single directory from holding more entries than common filesystems
// like to stat quickly.
type blobStore struct {
	root string
}

func newBlobStore(root string) (*blobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objdb: create blob root: %w", err)
	}
	return &blobStore{root: root}, nil
}

func (s *blobStore) path(id ID) string {
	hexID := id.String()
	return filepath.Join(s.root, hexID[:2], hexID[2:])
}

func (s *blobStore) has(id ID) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

func (s *blobStore) put(data []byte) (ID, error) {
	return s.putWithID(Sum(data), data)
}

// putWithID stores data under an explicitly computed id rather than
// hashing data itself. It exists so compressed blob bytes can be stored
// under the content hash of their *plaintext*, which is the id the rest
// of the object database (and narinfo keys) refer to.
func (s *blobStore) putWithID(id ID, data []byte) (ID, error) {
	dst := s.path(id)
	if _, err := os.Stat(dst); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return id, fmt.Errorf("objdb: create shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return id, fmt.Errorf("objdb: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return id, fmt.Errorf("objdb: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return id, fmt.Errorf("objdb: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return id, fmt.Errorf("objdb: rename into place: %w", err)
	}
	return id, nil
}

// get returns the raw (possibly compressed) bytes stored under id,
// without verifying them against id — blob payloads are stored
// compressed, so the caller is responsible for verifying against the
// plaintext after decompression. See DB.GetBlob / DB.getVerified.
func (s *blobStore) get(id ID) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objdb: read object %s: %w", id, err)
	}
	return data, nil
}
