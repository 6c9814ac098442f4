package daemon

import "errors"

// ErrPathNotFound is returned by QueryPathInfo when the daemon has no
// record of the requested store path.
var ErrPathNotFound = errors.New("daemon: path not found")
