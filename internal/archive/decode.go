package archive

import (
	"fmt"
	"io"
	"sort"
)

// Decode reads one archive from r and materializes it into sink,
// returning the root object's id and mode. Grounded on
// original_source/src/nar/decode.rs's NarGitDecoder.parse /
// recursive_parse: read magic, then dispatch on the "type" token into
// regular/symlink/directory grammar branches.
func Decode(r io.Reader, sink Sink) (string, Mode, error) {
	if err := expectToken(r, Magic); err != nil {
		return "", 0, err
	}
	return decodeNode(r, sink)
}

func decodeNode(r io.Reader, sink Sink) (string, Mode, error) {
	if err := expectToken(r, "("); err != nil {
		return "", 0, err
	}
	if err := expectToken(r, "type"); err != nil {
		return "", 0, err
	}
	kind, err := readToken(r)
	if err != nil {
		return "", 0, err
	}

	var id string
	var mode Mode

	switch string(kind) {
	case "regular":
		id, mode, err = decodeRegular(r, sink)
		if err != nil {
			return "", 0, err
		}
		if err := expectToken(r, ")"); err != nil {
			return "", 0, err
		}
	case "symlink":
		id, mode, err = decodeSymlink(r, sink)
		if err != nil {
			return "", 0, err
		}
		if err := expectToken(r, ")"); err != nil {
			return "", 0, err
		}
	case "directory":
		// decodeDirectory's entry loop consumes the node's closing ")"
		// itself, since a ")" token is what terminates the entry loop.
		id, mode, err = decodeDirectory(r, sink)
		if err != nil {
			return "", 0, err
		}
	default:
		return "", 0, fmt.Errorf("%w: unknown node type %q", ErrCorrupt, kind)
	}
	return id, mode, nil
}

func decodeRegular(r io.Reader, sink Sink) (string, Mode, error) {
	mode := ModeBlob
	tok, err := readToken(r)
	if err != nil {
		return "", 0, err
	}
	if string(tok) == "executable" {
		mode = ModeExec
		if err := expectToken(r, ""); err != nil {
			return "", 0, err
		}
		tok, err = readToken(r)
		if err != nil {
			return "", 0, err
		}
	}
	if string(tok) != "contents" {
		return "", 0, fmt.Errorf("%w: expected \"contents\", got %q", ErrCorrupt, tok)
	}
	data, err := readToken(r)
	if err != nil {
		return "", 0, err
	}
	id, err := sink.PutBlob(data)
	if err != nil {
		return "", 0, err
	}
	return id, mode, nil
}

func decodeSymlink(r io.Reader, sink Sink) (string, Mode, error) {
	if err := expectToken(r, "target"); err != nil {
		return "", 0, err
	}
	target, err := readToken(r)
	if err != nil {
		return "", 0, err
	}
	id, err := sink.PutSymlink(string(target))
	if err != nil {
		return "", 0, err
	}
	return id, ModeLink, nil
}

func decodeDirectory(r io.Reader, sink Sink) (string, Mode, error) {
	var entries []Entry
	for {
		tok, err := readToken(r)
		if err != nil {
			return "", 0, err
		}
		switch string(tok) {
		case ")":
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
			id, err := sink.BuildTree(entries)
			if err != nil {
				return "", 0, err
			}
			return id, ModeTree, nil
		case "entry":
			entry, err := decodeDirEntry(r, sink)
			if err != nil {
				return "", 0, err
			}
			entries = append(entries, entry)
		default:
			return "", 0, fmt.Errorf("%w: unexpected directory token %q", ErrCorrupt, tok)
		}
	}
}

func decodeDirEntry(r io.Reader, sink Sink) (Entry, error) {
	if err := expectToken(r, "("); err != nil {
		return Entry{}, err
	}
	if err := expectToken(r, "name"); err != nil {
		return Entry{}, err
	}
	name, err := readToken(r)
	if err != nil {
		return Entry{}, err
	}
	if err := expectToken(r, "node"); err != nil {
		return Entry{}, err
	}
	id, mode, err := decodeNode(r, sink)
	if err != nil {
		return Entry{}, err
	}
	if err := expectToken(r, ")"); err != nil {
		return Entry{}, err
	}
	return Entry{Name: string(name), ID: id, Mode: mode}, nil
}
