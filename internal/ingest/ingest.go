// Package ingest implements the closure ingestion engine: given a
// package path, recursively pull it and its full dependency closure
// into the object database, preferring a peer cache pull over a local
// daemon build. Grounded on
// original_source/src/git_store/store.rs's _add_closure /
// add_package_from_git_remotes / try_add_package.
package ingest

import (
	"container/list"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/relaycache/relaycache/internal/daemon"
	"github.com/relaycache/relaycache/internal/metrics"
	"github.com/relaycache/relaycache/internal/objdb"
	"github.com/relaycache/relaycache/internal/pkgpath"
	"github.com/relaycache/relaycache/internal/store"
)

// maxDepth bounds the dependency recursion, matching the original's
// hard-coded depth-100 bail.
const maxDepth = 100

// ErrDepthExceeded is returned when a dependency chain exceeds maxDepth.
var ErrDepthExceeded = fmt.Errorf("ingest: dependency depth limit exceeded")

// Engine runs closure ingestion against a Store.
type Engine struct {
	store       *store.Store
	log         zerolog.Logger
	group       singleflight.Group
	singleGroup singleflight.Group
}

// New builds an Engine over s.
func New(s *store.Store, log zerolog.Logger) *Engine {
	return &Engine{store: s, log: log}
}

// Result summarizes one Ingest call.
type Result struct {
	Commit       objdb.ID
	PackagesAdded int
}

// Ingest pulls storePath and its full dependency closure. Concurrent
// calls for the same package hash are collapsed via singleflight so a
// second caller observes the first's completed result instead of
// re-entering the daemon path — the original has no such guard since it
// runs single-threaded per request; this is this module's own
// concurrency-safety addition.
func (e *Engine) Ingest(ctx context.Context, p pkgpath.Path) (Result, error) {
	v, err, _ := e.group.Do(p.Hash, func() (any, error) {
		commit, added, err := e.addClosure(ctx, p, 0)
		if err != nil {
			return Result{}, err
		}
		return Result{Commit: commit, PackagesAdded: added}, nil
	})
	if err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	result := v.(Result)
	metrics.IngestTotal.WithLabelValues("ok").Inc()
	metrics.IngestPackagesAdded.Add(float64(result.PackagesAdded))
	return result, nil
}

// IngestSingle pulls p only, without also ingesting its dependency
// closure — the ingest_single counterpart to Ingest's full
// ingest_closure walk. It still prefers a peer cache pull over a local
// daemon build for the root package itself, but never recurses into
// References the way addFromPeers/addClosure do.
func (e *Engine) IngestSingle(ctx context.Context, p pkgpath.Path) (Result, error) {
	v, err, _ := e.singleGroup.Do(p.Hash, func() (any, error) {
		commit, added, err := e.addSingle(ctx, p)
		if err != nil {
			return Result{}, err
		}
		return Result{Commit: commit, PackagesAdded: added}, nil
	})
	if err != nil {
		metrics.IngestTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	result := v.(Result)
	metrics.IngestTotal.WithLabelValues("ok").Inc()
	metrics.IngestPackagesAdded.Add(float64(result.PackagesAdded))
	return result, nil
}

func (e *Engine) addSingle(ctx context.Context, p pkgpath.Path) (objdb.ID, int, error) {
	e.log.Info().Str("package", p.Name).Msg("adding package (single)")

	hash := p.Hash
	if commit, ok, err := e.store.GetCommit(hash); err != nil {
		return objdb.ID{}, 0, err
	} else if ok {
		e.log.Debug().Str("package", p.Name).Msg("package already present")
		return commit, 0, nil
	}

	for _, remote := range e.store.Remotes() {
		wrote, err := e.store.FetchFromPeer(ctx, remote, hash)
		if err != nil {
			e.log.Warn().Err(err).Str("remote", remote).Msg("peer pull failed")
			continue
		}
		if !wrote {
			continue
		}
		commit, ok, err := e.store.GetCommit(hash)
		if err != nil {
			return objdb.ID{}, 0, err
		}
		if ok {
			e.log.Debug().Str("package", p.Name).Msg("package retrieved from peer cache")
			return commit, 0, nil
		}
	}

	tree, info, err := e.addFromDaemon(ctx, p)
	if err != nil {
		return objdb.ID{}, 0, err
	}

	deps := info.GetDependencies()
	depHashes := make([]string, len(deps))
	for i, dep := range deps {
		depHashes[i] = dep.Hash
	}

	commit, err := e.store.CommitPackage(hash, p.Name, tree, depHashes, nil)
	if err != nil {
		return objdb.ID{}, 0, err
	}
	return commit, 1, nil
}

func (e *Engine) addClosure(ctx context.Context, p pkgpath.Path, depth int) (objdb.ID, int, error) {
	e.log.Info().Str("package", p.Name).Int("depth", depth).Msg("adding package")
	if depth == maxDepth {
		return objdb.ID{}, 0, ErrDepthExceeded
	}

	hash := p.Hash
	if commit, ok, err := e.store.GetCommit(hash); err != nil {
		return objdb.ID{}, 0, err
	} else if ok {
		e.log.Debug().Str("package", p.Name).Msg("package already present")
		return commit, 0, nil
	}

	if commit, ok, err := e.addFromPeers(ctx, hash); err != nil {
		return objdb.ID{}, 0, err
	} else if ok {
		e.log.Debug().Str("package", p.Name).Msg("package retrieved from peer cache")
		return commit, 0, nil
	}

	tree, info, err := e.addFromDaemon(ctx, p)
	if err != nil {
		return objdb.ID{}, 0, err
	}

	deps := info.GetDependencies()
	var parents []objdb.ID
	var depHashes []string
	totalAdded := 0
	for _, dep := range deps {
		depCommit, added, err := e.addClosure(ctx, dep, depth+1)
		if err != nil {
			return objdb.ID{}, 0, err
		}
		totalAdded += added
		parents = append(parents, depCommit)
		depHashes = append(depHashes, dep.Hash)
	}

	commit, err := e.store.CommitPackage(hash, p.Name, tree, depHashes, parents)
	if err != nil {
		return objdb.ID{}, 0, err
	}
	return commit, 1 + totalAdded, nil
}

// addFromPeers tries each configured peer cache in order; on the first
// successful pull it completes the dependency closure via a breadth-first
// walk of narinfo-derived dependency ids, fetching any whose result and
// narinfo refs are not already both present — exactly
// add_package_from_git_remotes's VecDeque/visited-set walk.
func (e *Engine) addFromPeers(ctx context.Context, hash string) (objdb.ID, bool, error) {
	var successRemote string
	wrote := false
	for _, remote := range e.store.Remotes() {
		ok, err := e.store.FetchFromPeer(ctx, remote, hash)
		if err != nil {
			e.log.Warn().Err(err).Str("remote", remote).Msg("peer pull failed")
			continue
		}
		if ok {
			successRemote = remote
			wrote = true
			break
		}
	}
	if !wrote {
		return objdb.ID{}, false, nil
	}

	visited := map[string]bool{hash: true}
	queue := list.New()
	queue.PushBack(hash)
	for queue.Len() > 0 {
		front := queue.Remove(queue.Front()).(string)
		deps, err := e.depIDs(front)
		if err != nil {
			return objdb.ID{}, false, err
		}
		for _, dep := range deps {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			resultOK, err1 := e.store.Exists(dep)
			_, narinfoOK, err2 := e.store.GetMetadata(dep)
			if err1 != nil {
				return objdb.ID{}, false, err1
			}
			if err2 != nil {
				return objdb.ID{}, false, err2
			}
			if !(resultOK && narinfoOK) {
				if _, err := e.store.FetchFromPeer(ctx, successRemote, dep); err != nil {
					return objdb.ID{}, false, err
				}
			}
			queue.PushBack(dep)
		}
	}

	commit, ok, err := e.store.GetCommit(hash)
	if err != nil {
		return objdb.ID{}, false, err
	}
	if !ok {
		return objdb.ID{}, false, fmt.Errorf("ingest: peer reported success but result ref for %s is still missing", hash)
	}
	return commit, true, nil
}

func (e *Engine) depIDs(hash string) ([]string, error) {
	info, ok, err := e.store.GetMetadata(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	deps := info.GetDependencies()
	ids := make([]string, len(deps))
	for i, d := range deps {
		ids[i] = d.Hash
	}
	return ids, nil
}

// addFromDaemon is the local fallback: check the package exists in the
// daemon's store, fetch its archive, decode it into the object database,
// and build its narinfo record from the daemon's path info. Grounded on
// try_add_package / add_narinfo.
func (e *Engine) addFromDaemon(ctx context.Context, p pkgpath.Path) (objdb.ID, pkgpath.NarInfo, error) {
	d, err := e.store.DialLocalDaemon(ctx)
	if err != nil {
		return objdb.ID{}, pkgpath.NarInfo{}, fmt.Errorf("%w: %v", store.ErrPackageUnavailable, err)
	}
	defer d.Close()

	exists, err := d.PathExists(ctx, p.String())
	if err != nil {
		return objdb.ID{}, pkgpath.NarInfo{}, err
	}
	if !exists {
		return objdb.ID{}, pkgpath.NarInfo{}, fmt.Errorf("%w: %s does not exist on daemon", store.ErrPackageUnavailable, p)
	}

	reader, err := d.NarFromPath(ctx, p.String())
	if err != nil {
		return objdb.ID{}, pkgpath.NarInfo{}, err
	}
	defer reader.Close()

	treeID, _, err := e.store.AddArchive(reader)
	if err != nil {
		return objdb.ID{}, pkgpath.NarInfo{}, err
	}

	info, err := e.buildNarinfo(ctx, d, p, treeID)
	if err != nil {
		return objdb.ID{}, pkgpath.NarInfo{}, err
	}
	if err := e.store.PutNarinfo(p.Hash, info); err != nil {
		return objdb.ID{}, pkgpath.NarInfo{}, err
	}
	return treeID, info, nil
}

// buildNarinfo mirrors add_narinfo: file_hash/file_size/compression are
// left empty/zero at ingest time (spec.md's lazy-population decision),
// and URL is left unset so NarInfo.String derives "nar/{key}.nar".
func (e *Engine) buildNarinfo(ctx context.Context, d daemon.Daemon, p pkgpath.Path, treeID objdb.ID) (pkgpath.NarInfo, error) {
	pathInfo, err := d.QueryPathInfo(ctx, p.String())
	if err != nil {
		return pkgpath.NarInfo{}, fmt.Errorf("ingest: query path info for %s: %w", p, err)
	}

	var deriver pkgpath.Path
	if pathInfo.Deriver != "" {
		deriver, err = pkgpath.Parse(pathInfo.Deriver)
		if err != nil {
			return pkgpath.NarInfo{}, err
		}
	}

	references := make([]pkgpath.Path, 0, len(pathInfo.References))
	for _, ref := range pathInfo.References {
		refPath, err := pkgpath.Parse(ref)
		if err != nil {
			return pkgpath.NarInfo{}, err
		}
		references = append(references, refPath)
	}

	return pkgpath.New(p, treeID.String(), pathInfo.NarSize, deriver, references), nil
}
