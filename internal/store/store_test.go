package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaycache/relaycache/internal/daemon"
	"github.com/relaycache/relaycache/internal/objdb"
	"github.com/relaycache/relaycache/internal/pkgpath"
)

func openTestStore(t *testing.T, cfg Config) (*objdb.DB, *Store) {
	t.Helper()
	db, err := objdb.Open(t.TempDir(), objdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := New(db, cfg, nil, zerolog.Nop())
	return db, s
}

func TestRefLayoutHelpers(t *testing.T) {
	require.Equal(t, "refs/abc/result", resultRef("abc"))
	require.Equal(t, "refs/abc/narinfo", narinfoRef("abc"))
	require.Equal(t, "refs/abc/deps/xyz/result", depResultRef("abc", "xyz"))
	require.Equal(t, "refs/abc/deps/xyz/narinfo", depNarinfoRef("abc", "xyz"))
}

func TestHashFromResultRefFixesGlobBug(t *testing.T) {
	hash, ok := hashFromResultRef("refs/abc123/result")
	require.True(t, ok)
	require.Equal(t, "abc123", hash)

	_, ok = hashFromResultRef("refs/abc123/narinfo")
	require.False(t, ok, "only *_/result_ refs name a package hash")

	_, ok = hashFromResultRef("refs/abc/deps/xyz/result")
	require.False(t, ok, "a dependency indirection is not itself a package's result ref")
}

func TestCommitPackageAndListPackages(t *testing.T) {
	_, s := openTestStore(t, Config{})

	tree, err := s.db.InsertIntoTree(objdb.ID{}, "f", mustBlob(t, s, "content"), objdb.ModeBlob)
	require.NoError(t, err)

	depTree, err := s.db.InsertIntoTree(objdb.ID{}, "f", mustBlob(t, s, "dep content"), objdb.ModeBlob)
	require.NoError(t, err)
	depCommit, err := s.CommitPackage("dep-hash", "dep", depTree, nil, nil)
	require.NoError(t, err)

	rootCommit, err := s.CommitPackage("root-hash", "root", tree, []string{"dep-hash"}, []objdb.ID{depCommit})
	require.NoError(t, err)

	exists, err := s.Exists("root-hash")
	require.NoError(t, err)
	require.True(t, exists)

	gotCommit, ok, err := s.GetCommit("root-hash")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rootCommit, gotCommit)

	resolvedDepResult, err := s.db.ResolveRef(depResultRef("root-hash", "dep-hash"))
	require.NoError(t, err)
	require.Equal(t, depCommit, resolvedDepResult)

	hashes, err := s.ListPackages()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dep-hash", "root-hash"}, hashes)
}

func TestPutAndGetMetadata(t *testing.T) {
	_, s := openTestStore(t, Config{})
	storePath := mustPkgPath(t, "/nix/store/"+validStoreHash+"-pkg")
	info := pkgpath.New(storePath, "abc123", 10, pkgpath.Path{}, nil)

	require.NoError(t, s.PutNarinfo("abc123", info))

	got, ok, err := s.GetMetadata("abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.StorePath.Equal(storePath))

	_, ok, err = s.GetMetadata("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHealthCheckReportsDaemonFailure(t *testing.T) {
	_, s := openTestStore(t, Config{Builders: []string{"build-box"}})
	s.dialer = func(ctx context.Context) (daemon.Daemon, error) {
		return nil, errors.New("dial failed")
	}
	require.False(t, s.HealthCheck(context.Background()))
}

const validStoreHash = "0123456789abcdfghijklmnpqrsvwxyz"

func mustPkgPath(t *testing.T, s string) pkgpath.Path {
	t.Helper()
	p, err := pkgpath.Parse(s)
	require.NoError(t, err)
	return p
}

func mustBlob(t *testing.T, s *Store, content string) objdb.ID {
	t.Helper()
	id, err := s.db.PutBlob([]byte(content))
	require.NoError(t, err)
	return id
}
