// Package pkgpath parses content-addressed package paths and the
// narinfo metadata record format, grounded on
// original_source/src/nix_interface/path.rs (NixPath) and
// original_source/src/nix_interface/nar_info.rs (NarInfo).
package pkgpath

import (
	"fmt"
	"path"
	"strings"
)

// hashAlphabet is the restricted base-32 alphabet package hashes are
// encoded in.
const hashAlphabet = "0123456789abcdfghijklmnpqrsvwxyz"
const hashLen = 32

// Path is a parsed package path: an absolute path whose trailing
// component is "{32-char-hash}-{name}".
type Path struct {
	full string
	Hash string
	Name string
}

// Parse parses an absolute package path.
func Parse(absolute string) (Path, error) {
	base := path.Base(absolute)
	idx := strings.IndexByte(base, '-')
	if idx < 0 {
		return Path{}, fmt.Errorf("pkgpath: %q has no hash separator", absolute)
	}
	hash, name := base[:idx], base[idx+1:]
	if len(hash) != hashLen {
		return Path{}, fmt.Errorf("pkgpath: %q has a %d-character hash, want %d", absolute, len(hash), hashLen)
	}
	for _, c := range hash {
		if !strings.ContainsRune(hashAlphabet, c) {
			return Path{}, fmt.Errorf("pkgpath: %q hash contains invalid character %q", absolute, c)
		}
	}
	if name == "" {
		return Path{}, fmt.Errorf("pkgpath: %q has an empty name", absolute)
	}
	return Path{full: absolute, Hash: hash, Name: name}, nil
}

// String returns the original absolute path.
func (p Path) String() string { return p.full }

// Equal compares two paths by their full absolute form, matching the
// original's PartialEq (which compares the whole path string, not just
// the hash).
func (p Path) Equal(other Path) bool { return p.full == other.full }
