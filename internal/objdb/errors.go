package objdb

import "errors"

var (
	// ErrNotFound is returned when an object or reference does not exist.
	ErrNotFound = errors.New("objdb: not found")
	// ErrCorrupt is returned when stored bytes fail their content-address
	// check on read.
	ErrCorrupt = errors.New("objdb: corrupt object")
	// ErrInvalidMode is returned for a tree entry carrying an unrecognized
	// file mode.
	ErrInvalidMode = errors.New("objdb: invalid mode")
)
