package objdb

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, compress bool) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir, Options{CompressBlobs: compress})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetBlobUncompressed(t *testing.T) {
	db := openTestDB(t, false)
	id, err := db.PutBlob([]byte("package contents"))
	require.NoError(t, err)
	require.Equal(t, Sum([]byte("package contents")), id)

	got, err := db.GetBlob(id)
	require.NoError(t, err)
	require.Equal(t, "package contents", string(got))
}

func TestPutGetBlobCompressedIDStable(t *testing.T) {
	plain := openTestDB(t, false)
	compressed := openTestDB(t, true)

	data := []byte("the id of a blob is the hash of its plaintext, not its on-disk bytes")
	plainID, err := plain.PutBlob(data)
	require.NoError(t, err)
	compressedID, err := compressed.PutBlob(data)
	require.NoError(t, err)

	require.Equal(t, plainID, compressedID, "compression must not change a blob's content address")

	got, err := compressed.GetBlob(compressedID)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestGetBlobDetectsCorruption(t *testing.T) {
	db := openTestDB(t, false)
	id, err := db.PutBlob([]byte("original"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(db.blobs.path(id), []byte("tampered"), 0o644))

	_, err = db.GetBlob(id)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestTreeInsertLookupAndListSorted(t *testing.T) {
	db := openTestDB(t, false)
	blobID, err := db.PutBlob([]byte("x"))
	require.NoError(t, err)

	treeID, err := db.InsertIntoTree(ID{}, "banana", blobID, ModeBlob)
	require.NoError(t, err)
	treeID, err = db.InsertIntoTree(treeID, "apple", blobID, ModeExec)
	require.NoError(t, err)

	entries, err := db.ListTreeEntries(treeID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "apple", entries[0].Name)
	require.Equal(t, "banana", entries[1].Name)

	entry, err := db.LookupTreeEntry(treeID, "apple")
	require.NoError(t, err)
	require.Equal(t, ModeExec, entry.Mode)

	_, err = db.LookupTreeEntry(treeID, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsertIntoTreeReplacesExistingEntry(t *testing.T) {
	db := openTestDB(t, false)
	firstID, err := db.PutBlob([]byte("v1"))
	require.NoError(t, err)
	secondID, err := db.PutBlob([]byte("v2"))
	require.NoError(t, err)

	treeID, err := db.InsertIntoTree(ID{}, "file", firstID, ModeBlob)
	require.NoError(t, err)
	treeID, err = db.InsertIntoTree(treeID, "file", secondID, ModeBlob)
	require.NoError(t, err)

	entries, err := db.ListTreeEntries(treeID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, secondID, entries[0].ID)
}

func TestCommitEncodeParseRoundTrip(t *testing.T) {
	db := openTestDB(t, false)
	blobID, err := db.PutBlob([]byte("x"))
	require.NoError(t, err)
	treeID, err := db.InsertIntoTree(ID{}, "f", blobID, ModeBlob)
	require.NoError(t, err)

	parentID, err := db.Commit(treeID, nil, "dependency")
	require.NoError(t, err)
	commitID, err := db.Commit(treeID, []ID{parentID}, "root package")
	require.NoError(t, err)

	commit, err := db.GetCommit(commitID)
	require.NoError(t, err)
	require.Equal(t, treeID, commit.Tree)
	require.Equal(t, []ID{parentID}, commit.Parents)
	require.Equal(t, "root package", commit.Message)
	require.WithinDuration(t, time.Now().UTC(), commit.Time, time.Minute)
}

func TestRefSetResolveAndSymbolicChain(t *testing.T) {
	db := openTestDB(t, false)
	blobID, err := db.PutBlob([]byte("x"))
	require.NoError(t, err)
	commitID, err := db.Commit(blobID, nil, "m")
	require.NoError(t, err)

	require.NoError(t, db.SetRef("refs/abc/result", commitID))
	require.NoError(t, db.SetSymbolicRef("refs/abc/deps/xyz/result", "refs/xyz/result"))
	require.NoError(t, db.SetRef("refs/xyz/result", commitID))

	resolved, err := db.ResolveRef("refs/abc/deps/xyz/result")
	require.NoError(t, err)
	require.Equal(t, commitID, resolved)

	exists, err := db.RefExists("refs/abc/result")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = db.ResolveRef("refs/missing/result")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGlobRefsMatchesResultRefsOnly(t *testing.T) {
	db := openTestDB(t, false)
	blobID, err := db.PutBlob([]byte("x"))
	require.NoError(t, err)
	commitID, err := db.Commit(blobID, nil, "m")
	require.NoError(t, err)

	require.NoError(t, db.SetRef("refs/aaa/result", commitID))
	require.NoError(t, db.SetRef("refs/aaa/narinfo", commitID))
	require.NoError(t, db.SetRef("refs/bbb/result", commitID))

	names, err := db.GlobRefs("refs/*/result")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"refs/aaa/result", "refs/bbb/result"}, names)
}

func TestRefStoreDetectsSymbolicCycle(t *testing.T) {
	db := openTestDB(t, false)
	require.NoError(t, db.SetSymbolicRef("refs/a", "refs/b"))
	require.NoError(t, db.SetSymbolicRef("refs/b", "refs/a"))

	_, err := db.ResolveRef("refs/a")
	require.Error(t, err)
}
