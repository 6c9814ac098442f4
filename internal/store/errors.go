package store

import "errors"

var (
	// ErrCorruptArchive is returned when an incoming NAR stream violates
	// the archive grammar.
	ErrCorruptArchive = errors.New("store: corrupt archive")
	// ErrCorruptMetadata is returned when a stored narinfo record fails
	// to parse.
	ErrCorruptMetadata = errors.New("store: corrupt metadata record")
	// ErrInvalidPackagePath names a package path that fails
	// pkgpath.Parse. No function in this package returns it.
	ErrInvalidPackagePath = errors.New("store: invalid package path")
	// ErrPackageUnavailable is returned when a package cannot be
	// obtained from any peer or the local daemon.
	ErrPackageUnavailable = errors.New("store: package unavailable")
)
