// Package server implements the HTTP binary-cache surface, grounded on
// the route table in original_source/src/nix_cache_server/server.rs
// (actix-web handlers) reimplemented with github.com/gorilla/mux, the
// router distribution-distribution uses.
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/relaycache/relaycache/internal/config"
	"github.com/relaycache/relaycache/internal/metrics"
	"github.com/relaycache/relaycache/internal/objdb"
	"github.com/relaycache/relaycache/internal/store"
)

// Server wires the store layer to an HTTP mux.
type Server struct {
	store *store.Store
	cfg   config.CacheInfo
	log   zerolog.Logger
	mux   *mux.Router
}

// New builds a Server. Call Handler to get the http.Handler to serve.
func New(s *store.Store, cacheInfo config.CacheInfo, log zerolog.Logger) *Server {
	srv := &Server{store: s, cfg: cacheInfo, log: log, mux: mux.NewRouter()}
	srv.routes()
	return srv
}

// Handler returns the composed http.Handler, with logging and metrics
// middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withObservability(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/nix-cache-info", s.handleCacheInfo).Methods(http.MethodGet)
	s.mux.HandleFunc("/{hash}.narinfo", s.handleNarinfo).Methods(http.MethodGet, http.MethodHead)
	s.mux.HandleFunc("/nar/{key}.nar", s.handleNar).Methods(http.MethodGet)
	s.mux.HandleFunc("/nar/{key}.ls", s.handleNarLs).Methods(http.MethodGet)
	s.mux.HandleFunc("/internal/refs", s.handleInternalRefs).Methods(http.MethodGet)
	s.mux.HandleFunc("/internal/objects/{id}", s.handleInternalObject).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// handleCacheInfo serves GET /nix-cache-info, formatted exactly as
// CacheInfo::Display in the original: "StoreDir: ...\nWantMassQuery:
// 0|1\nPriority: ...\n".
func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	mass := "0"
	if s.cfg.WantMassQuery {
		mass = "1"
	}
	fmt.Fprintf(w, "StoreDir: %s\nWantMassQuery: %s\nPriority: %d\n", s.cfg.StoreDir, mass, s.cfg.Priority)
}

func (s *Server) handleNarinfo(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	raw, ok, err := s.store.GetRawMetadata(hash)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Entry is not in the Cache", http.StatusNotFound)
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "text/x-nix-narinfo")
	w.Write(raw)
}

func (s *Server) handleNar(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	producer, ok, err := s.store.GetArchiveStream(key)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-nix-archive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for {
		chunk, err := producer.Next(ctx)
		if err != nil {
			return // EOF (success) or a mid-stream error; either way the
			// response is already committed, matching the streaming
			// producer's "never buffer the whole archive" contract.
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
	}
}

// handleNarLs serves GET /nar/{key}.ls. The original's placeholder
// behavior simply echoes the hash; relaycache preserves that (directory
// listing without materializing one is out of scope per spec.md).
func (s *Server) handleNarLs(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, mux.Vars(r)["key"])
}

// handleInternalRefs serves the peer wire protocol's ref listing: every
// reference matching glob, one "name value" pair per line.
func (s *Server) handleInternalRefs(w http.ResponseWriter, r *http.Request) {
	glob := r.URL.Query().Get("glob")
	if glob == "" {
		http.Error(w, "missing glob", http.StatusBadRequest)
		return
	}
	names, err := s.store.DB().GlobRefs(glob)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if len(names) == 0 {
		// A single exact name lookup (used by the peer client for
		// value resolution) isn't a glob match against itself unless
		// it's already a concrete name; fall back to direct existence.
		if ok, _ := s.store.DB().RefExists(glob); ok {
			names = []string{glob}
		}
	}
	for _, name := range names {
		value, err := rawRefValue(s.store.DB(), name)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", name, value)
	}
}

func (s *Server) handleInternalObject(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := objdb.ParseID(idStr)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	if !s.store.DB().HasObject(id) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	data, err := s.store.DB().GetRawObject(id)
	if err != nil {
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// withObservability wraps next with zerolog request logging (tagging
// each request with a uuid trace id) and prometheus request metrics,
// grounded on the ambient logging/metrics stack named in SPEC_FULL.md.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := uuid.NewString()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(duration.Seconds())

		s.log.Info().
			Str("trace_id", traceID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("http request")
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// rawRefValue reports name's stored value exactly as kept locally — a
// symbolic reference is served as "ref:<target>", not flattened to the
// object it eventually resolves to, so a fetching peer's FetchRefs can
// reconstruct the same symbolic-link data model instead of always
// materializing a direct object ref.
func rawRefValue(db *objdb.DB, name string) (string, error) {
	value, ok, err := db.RawRef(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", objdb.ErrNotFound
	}
	return value, nil
}

