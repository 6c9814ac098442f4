package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaycache/relaycache/internal/archive"
	"github.com/relaycache/relaycache/internal/config"
	"github.com/relaycache/relaycache/internal/daemon"
	"github.com/relaycache/relaycache/internal/objdb"
	"github.com/relaycache/relaycache/internal/pkgpath"
	"github.com/relaycache/relaycache/internal/server"
	"github.com/relaycache/relaycache/internal/store"
)

// narSink is a minimal archive.Sink used only to produce well-formed NAR
// bytes for fakeDaemon fixtures; it never needs to be read back.
type narSink struct{}

func (narSink) PutBlob(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
func (narSink) PutSymlink(target string) (string, error) {
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:]), nil
}
func (narSink) BuildTree(entries []archive.Entry) (string, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Name)
		buf.WriteString(e.ID)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func narBytesForSingleFile(content string) []byte {
	id, _ := narSink{}.PutBlob([]byte(content))
	var buf bytes.Buffer
	if err := archive.Encode(&buf, fileSource{id: id, content: content}, id, archive.ModeBlob); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

type fileSource struct {
	id      string
	content string
}

func (s fileSource) GetBlob(id string) ([]byte, error)          { return []byte(s.content), nil }
func (s fileSource) GetSymlinkTarget(id string) (string, error) { return "", nil }
func (s fileSource) GetTreeEntries(id string) ([]archive.Entry, error) {
	return nil, nil
}

type fakePackage struct {
	path       string
	nar        []byte
	narSize    uint64
	references []string
}

type fakeDaemon struct {
	packages map[string]fakePackage
	closed   bool
}

func (d *fakeDaemon) PathExists(ctx context.Context, storePath string) (bool, error) {
	_, ok := d.packages[storePath]
	return ok, nil
}

func (d *fakeDaemon) QueryPathInfo(ctx context.Context, storePath string) (daemon.PathInfo, error) {
	p, ok := d.packages[storePath]
	if !ok {
		return daemon.PathInfo{}, daemon.ErrPathNotFound
	}
	return daemon.PathInfo{NarSize: p.narSize, References: p.references}, nil
}

func (d *fakeDaemon) NarFromPath(ctx context.Context, storePath string) (io.ReadCloser, error) {
	p, ok := d.packages[storePath]
	if !ok {
		return nil, daemon.ErrPathNotFound
	}
	return io.NopCloser(bytes.NewReader(p.nar)), nil
}

func (d *fakeDaemon) BuildPaths(ctx context.Context, storePaths []string) error { return nil }
func (d *fakeDaemon) Close() error                                             { d.closed = true; return nil }

const h1 = "0123456789abcdfghijklmnpqrsvwxyz"
const h2 = "0123456789abcdfghijklmnpqrsvwxy1"

func mustParse(t *testing.T, s string) pkgpath.Path {
	t.Helper()
	p, err := pkgpath.Parse(s)
	require.NoError(t, err)
	return p
}

func newTestEngine(t *testing.T, fd *fakeDaemon) (*store.Store, *Engine) {
	t.Helper()
	db, err := objdb.Open(t.TempDir(), objdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, store.Config{}, func(ctx context.Context) (daemon.Daemon, error) {
		return fd, nil
	}, zerolog.Nop())
	return s, New(s, zerolog.Nop())
}

func TestIngestBuildsDependencyClosureWithCorrectParentOrder(t *testing.T) {
	depPath := h2 + "-dep"
	rootPath := h1 + "-root"

	fd := &fakeDaemon{packages: map[string]fakePackage{
		"/nix/store/" + depPath: {
			path: depPath, nar: narBytesForSingleFile("dep bytes"), narSize: 9,
		},
		"/nix/store/" + rootPath: {
			path: rootPath, nar: narBytesForSingleFile("root bytes"), narSize: 10,
			references: []string{"/nix/store/" + depPath, "/nix/store/" + rootPath},
		},
	}}

	s, engine := newTestEngine(t, fd)

	result, err := engine.Ingest(context.Background(), mustParse(t, "/nix/store/"+rootPath))
	require.NoError(t, err)
	require.Equal(t, 2, result.PackagesAdded)

	depExists, err := s.Exists(h2)
	require.NoError(t, err)
	require.True(t, depExists)

	rootExists, err := s.Exists(h1)
	require.NoError(t, err)
	require.True(t, rootExists)

	rootCommit, err := s.DB().GetCommit(result.Commit)
	require.NoError(t, err)
	require.Len(t, rootCommit.Parents, 1, "root's only non-self reference is the dependency")

	depCommitID, ok, err := s.GetCommit(h2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, depCommitID, rootCommit.Parents[0])
}

func TestIngestIsIdempotent(t *testing.T) {
	depPath := h1 + "-solo"
	fd := &fakeDaemon{packages: map[string]fakePackage{
		"/nix/store/" + depPath: {path: depPath, nar: narBytesForSingleFile("solo"), narSize: 4},
	}}
	_, engine := newTestEngine(t, fd)

	first, err := engine.Ingest(context.Background(), mustParse(t, "/nix/store/"+depPath))
	require.NoError(t, err)
	require.Equal(t, 1, first.PackagesAdded)

	second, err := engine.Ingest(context.Background(), mustParse(t, "/nix/store/"+depPath))
	require.NoError(t, err)
	require.Equal(t, 0, second.PackagesAdded, "already-present package short-circuits without re-adding")
	require.Equal(t, first.Commit, second.Commit)
}

func TestIngestFailsWhenDaemonLacksPath(t *testing.T) {
	fd := &fakeDaemon{packages: map[string]fakePackage{}}
	_, engine := newTestEngine(t, fd)

	_, err := engine.Ingest(context.Background(), mustParse(t, "/nix/store/"+h1+"-missing"))
	require.Error(t, err)
}

// erroringDaemon implements daemon.Daemon and fails every call, so a test
// wiring it in as the local daemon can assert peer pull was actually what
// satisfied the ingest, not a silent daemon fallback.
type erroringDaemon struct{}

func (erroringDaemon) PathExists(ctx context.Context, storePath string) (bool, error) {
	return false, fmt.Errorf("erroringDaemon: unexpected call to PathExists(%s)", storePath)
}

func (erroringDaemon) QueryPathInfo(ctx context.Context, storePath string) (daemon.PathInfo, error) {
	return daemon.PathInfo{}, fmt.Errorf("erroringDaemon: unexpected call to QueryPathInfo(%s)", storePath)
}

func (erroringDaemon) NarFromPath(ctx context.Context, storePath string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("erroringDaemon: unexpected call to NarFromPath(%s)", storePath)
}

func (erroringDaemon) BuildPaths(ctx context.Context, storePaths []string) error {
	return fmt.Errorf("erroringDaemon: unexpected call to BuildPaths")
}

func (erroringDaemon) Close() error { return nil }

func newTestEngineWithConfig(t *testing.T, d daemon.Daemon, cfg store.Config) (*store.Store, *Engine) {
	t.Helper()
	db, err := objdb.Open(t.TempDir(), objdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, cfg, func(ctx context.Context) (daemon.Daemon, error) {
		return d, nil
	}, zerolog.Nop())
	return s, New(s, zerolog.Nop())
}

func drainArchive(t *testing.T, p *archive.Producer) []byte {
	t.Helper()
	var buf bytes.Buffer
	ctx := context.Background()
	for {
		chunk, err := p.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return buf.Bytes()
		}
		buf.Write(chunk)
	}
}

// TestIngestPullsFromPeerInsteadOfDaemon wires a second store's ingest
// engine against a live peer relaycache server (an httptest.Server
// running server.New over the first store), with its own local daemon
// set to one that errors on any call. Ingesting the same package path
// into the second store must be satisfied entirely by the peer pull
// (added_count == 0, no daemon call observed), and the pulled archive
// must byte-match what the first store served — exercising the full
// object closure (including blob/file content, not just tree/commit
// structure) the peer wire protocol transfers.
func TestIngestPullsFromPeerInsteadOfDaemon(t *testing.T) {
	depPath := h2 + "-dep"
	rootPath := h1 + "-root"

	originDaemon := &fakeDaemon{packages: map[string]fakePackage{
		"/nix/store/" + depPath: {
			path: depPath, nar: narBytesForSingleFile("dep bytes"), narSize: 9,
		},
		"/nix/store/" + rootPath: {
			path: rootPath, nar: narBytesForSingleFile("root bytes"), narSize: 10,
			references: []string{"/nix/store/" + depPath, "/nix/store/" + rootPath},
		},
	}}
	originStore, originEngine := newTestEngine(t, originDaemon)

	rootP := mustParse(t, "/nix/store/"+rootPath)
	originResult, err := originEngine.Ingest(context.Background(), rootP)
	require.NoError(t, err)
	require.Equal(t, 2, originResult.PackagesAdded)

	srv := server.New(originStore, config.CacheInfo{StoreDir: "/nix/store"}, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	peerStore, peerEngine := newTestEngineWithConfig(t, erroringDaemon{}, store.Config{Remotes: []string{ts.URL}})

	peerResult, err := peerEngine.Ingest(context.Background(), rootP)
	require.NoError(t, err)
	require.Equal(t, 0, peerResult.PackagesAdded, "peer pull should short-circuit daemon-driven ingestion")
	require.Equal(t, originResult.Commit, peerResult.Commit)

	rootInfo, ok, err := originStore.GetMetadata(h1)
	require.NoError(t, err)
	require.True(t, ok)

	originStream, ok, err := originStore.GetArchiveStream(rootInfo.Key)
	require.NoError(t, err)
	require.True(t, ok)
	peerStream, ok, err := peerStore.GetArchiveStream(rootInfo.Key)
	require.NoError(t, err)
	require.True(t, ok, "pulled closure must include the root package's own content, not just its commit/tree structure")

	require.Equal(t, drainArchive(t, originStream), drainArchive(t, peerStream))
}
