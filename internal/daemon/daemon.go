// Package daemon defines the contract relaycache uses to talk to the
// external package builder daemon (a local socket or an SSH-tunneled
// remote shell channel). The daemon itself is an out-of-scope
// collaborator — relaycache only needs to call it, never implement its
// build logic — grounded on original_source/src/nix_interface/daemon.rs's
// NixDaemon<C: AsyncStream> / DynNixDaemon.
package daemon

import (
	"context"
	"io"
)

// PathInfo is the subset of a package's daemon-reported metadata the
// ingestion engine needs to build a narinfo record.
type PathInfo struct {
	NarSize    uint64
	Deriver    string
	References []string
}

// Daemon is the package builder connection contract. LocalSocket
// implements it over a Unix socket; this package has no remote
// (SSH-tunneled) implementation.
type Daemon interface {
	// PathExists reports whether storePath is present in the daemon's
	// store.
	PathExists(ctx context.Context, storePath string) (bool, error)

	// QueryPathInfo returns the daemon's metadata for storePath, or
	// ErrPathNotFound if it does not know about it.
	QueryPathInfo(ctx context.Context, storePath string) (PathInfo, error)

	// NarFromPath streams the archive bytes for storePath.
	NarFromPath(ctx context.Context, storePath string) (io.ReadCloser, error)

	// BuildPaths asks the daemon to build storePaths, falling back to
	// substitutes only if the daemon is configured to allow it.
	BuildPaths(ctx context.Context, storePaths []string) error

	// Close releases the underlying connection.
	Close() error
}
