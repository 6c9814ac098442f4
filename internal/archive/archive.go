// Package archive implements the self-delimited binary archive format
// used to transfer a package's file tree as a single byte stream: an
// 8-byte little-endian length-prefixed, zero-padded-to-8-byte-boundary
// token stream, grounded on original_source/src/nar/{decode,encode}.rs.
package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the fixed header every archive begins with.
const Magic = "nix-archive-1"

const padLen = 8

// writeToken writes one length-prefixed, zero-padded token: an 8-byte
// little-endian length followed by the bytes, padded with zeroes up to
// the next multiple of 8.
func writeToken(w io.Writer, data []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	pad := (padLen - len(data)%padLen) % padLen
	if pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

// tokenBytes returns writeToken's output for data as a single buffer,
// used by the streaming producer which needs to hand out already-framed
// chunks rather than write directly to an io.Writer.
func tokenBytes(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(8 + len(data) + padLen)
	_ = writeToken(&buf, data)
	return buf.Bytes()
}

func strToken(s string) []byte { return tokenBytes([]byte(s)) }

// readToken reads one length-prefixed, zero-padded token and validates
// that every padding byte is zero, exactly as the original's read_expect
// does ("Bad archive padding" on violation).
func readToken(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: truncated token: %v", ErrCorrupt, err)
	}
	pad := (padLen - int(n)%padLen) % padLen
	if pad > 0 {
		padBuf := make([]byte, pad)
		if _, err := io.ReadFull(r, padBuf); err != nil {
			return nil, fmt.Errorf("%w: truncated padding: %v", ErrCorrupt, err)
		}
		for _, b := range padBuf {
			if b != 0 {
				return nil, fmt.Errorf("%w: bad archive padding", ErrCorrupt)
			}
		}
	}
	return data, nil
}

func expectToken(r io.Reader, want string) error {
	got, err := readToken(r)
	if err != nil {
		return err
	}
	if string(got) != want {
		return fmt.Errorf("%w: expected %q, got %q", ErrCorrupt, want, got)
	}
	return nil
}
