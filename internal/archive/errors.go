package archive

import "errors"

// ErrCorrupt is returned for any structural violation of the archive
// grammar: bad magic, bad padding, unknown node type, truncated stream.
var ErrCorrupt = errors.New("archive: corrupt archive")
