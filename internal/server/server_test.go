package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaycache/relaycache/internal/config"
	"github.com/relaycache/relaycache/internal/objdb"
	"github.com/relaycache/relaycache/internal/pkgpath"
	"github.com/relaycache/relaycache/internal/store"
)

const validHash = "0123456789abcdfghijklmnpqrsvwxyz"

func newTestServer(t *testing.T) (*Server, *store.Store, *objdb.DB) {
	t.Helper()
	db, err := objdb.Open(t.TempDir(), objdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, store.Config{}, nil, zerolog.Nop())
	cacheInfo := config.CacheInfo{StoreDir: "/nix/store", WantMassQuery: true, Priority: 50}
	srv := New(s, cacheInfo, zerolog.Nop())
	return srv, s, db
}

func TestHandleCacheInfo(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nix-cache-info", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "StoreDir: /nix/store\nWantMassQuery: 1\nPriority: 50\n", rec.Body.String())
}

func TestHandleNarinfoNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/"+validHash+".narinfo", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNarinfoFound(t *testing.T) {
	srv, s, _ := newTestServer(t)
	storePath, err := pkgpath.Parse("/nix/store/" + validHash + "-pkg")
	require.NoError(t, err)
	info := pkgpath.New(storePath, "abckey", 5, pkgpath.Path{}, nil)
	require.NoError(t, s.PutNarinfo(validHash, info))

	req := httptest.NewRequest(http.MethodGet, "/"+validHash+".narinfo", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "StorePath: "+storePath.String())
}

func TestHandleNarinfoHeadHasNoBody(t *testing.T) {
	srv, s, _ := newTestServer(t)
	storePath, err := pkgpath.Parse("/nix/store/" + validHash + "-pkg")
	require.NoError(t, err)
	info := pkgpath.New(storePath, "abckey", 5, pkgpath.Path{}, nil)
	require.NoError(t, s.PutNarinfo(validHash, info))

	req := httptest.NewRequest(http.MethodHead, "/"+validHash+".narinfo", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestHandleNarStreamsArchive(t *testing.T) {
	srv, s, _ := newTestServer(t)
	blobID, err := s.DB().PutBlob([]byte("archive payload"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/nar/"+blobID.String()+".nar", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "nix-archive-1")
}

func TestHandleNarNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nar/"+validHash+".nar", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInternalRefsGlob(t *testing.T) {
	srv, _, db := newTestServer(t)
	blobID, err := db.PutBlob([]byte("x"))
	require.NoError(t, err)
	commitID, err := db.Commit(blobID, nil, "m")
	require.NoError(t, err)
	require.NoError(t, db.SetRef("refs/"+validHash+"/result", commitID))

	req := httptest.NewRequest(http.MethodGet, "/internal/refs?glob=refs%2F*%2Fresult", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "refs/"+validHash+"/result obj:"+commitID.String())
}

func TestHandleInternalObject(t *testing.T) {
	srv, _, db := newTestServer(t)
	blobID, err := db.PutBlob([]byte("raw object bytes"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/internal/objects/"+blobID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "raw object bytes", rec.Body.String())
}

func TestHandleInternalObjectBadID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/internal/objects/not-a-hex-id", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
