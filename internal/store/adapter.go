package store

import (
	"github.com/relaycache/relaycache/internal/archive"
	"github.com/relaycache/relaycache/internal/objdb"
)

// dbAdapter implements archive.Sink and archive.Source over an
// objdb.DB, translating between archive's storage-agnostic hex-string
// ids/modes and objdb's own ID/Mode types. Kept small and private:
// nothing outside Store needs direct archive<->objdb plumbing.
type dbAdapter struct {
	db *objdb.DB
}

func (a dbAdapter) PutBlob(data []byte) (string, error) {
	id, err := a.db.PutBlob(data)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (a dbAdapter) PutSymlink(target string) (string, error) {
	id, err := a.db.PutBlob([]byte(target))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (a dbAdapter) BuildTree(entries []archive.Entry) (string, error) {
	t := &objdb.Tree{}
	for _, e := range entries {
		id, err := objdb.ParseID(e.ID)
		if err != nil {
			return "", err
		}
		t.Entries = append(t.Entries, objdb.TreeEntry{Name: e.Name, ID: id, Mode: fromArchiveMode(e.Mode)})
	}
	id, err := a.db.BuildTree(t)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (a dbAdapter) GetBlob(id string) ([]byte, error) {
	objID, err := objdb.ParseID(id)
	if err != nil {
		return nil, err
	}
	return a.db.GetBlob(objID)
}

func (a dbAdapter) GetSymlinkTarget(id string) (string, error) {
	data, err := a.GetBlob(id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a dbAdapter) GetTreeEntries(id string) ([]archive.Entry, error) {
	objID, err := objdb.ParseID(id)
	if err != nil {
		return nil, err
	}
	entries, err := a.db.ListTreeEntries(objID)
	if err != nil {
		return nil, err
	}
	out := make([]archive.Entry, len(entries))
	for i, e := range entries {
		out[i] = archive.Entry{Name: e.Name, ID: e.ID.String(), Mode: toArchiveMode(e.Mode)}
	}
	return out, nil
}

func fromArchiveMode(m archive.Mode) objdb.Mode {
	switch m {
	case archive.ModeExec:
		return objdb.ModeExec
	case archive.ModeLink:
		return objdb.ModeLink
	case archive.ModeTree:
		return objdb.ModeTree
	default:
		return objdb.ModeBlob
	}
}

func toArchiveMode(m objdb.Mode) archive.Mode {
	switch m {
	case objdb.ModeExec:
		return archive.ModeExec
	case objdb.ModeLink:
		return archive.ModeLink
	case objdb.ModeTree:
		return archive.ModeTree
	default:
		return archive.ModeBlob
	}
}
