package archive

import (
	"io"
	"sort"
)

// Encode writes a complete archive for the object (id, mode) to w,
// reading content from source. Grounded on
// original_source/src/nar/encode.rs's NarGitEncoder, mirroring decode.go
// exactly: same magic, same token framing, same grammar. Directory
// entries are written sorted by raw name.
func Encode(w io.Writer, source Source, id string, mode Mode) error {
	if err := writeToken(w, []byte(Magic)); err != nil {
		return err
	}
	return encodeNode(w, source, id, mode)
}

func encodeNode(w io.Writer, source Source, id string, mode Mode) error {
	if err := writeToken(w, []byte("(")); err != nil {
		return err
	}
	if err := writeToken(w, []byte("type")); err != nil {
		return err
	}

	switch mode {
	case ModeBlob, ModeExec:
		if err := encodeRegular(w, source, id, mode); err != nil {
			return err
		}
		return writeToken(w, []byte(")"))
	case ModeLink:
		if err := encodeSymlink(w, source, id); err != nil {
			return err
		}
		return writeToken(w, []byte(")"))
	case ModeTree:
		// encodeDirectory writes its own closing ")" — the directory
		// grammar's entry loop and the node's closing paren are the
		// same token, mirroring decodeDirectory.
		return encodeDirectory(w, source, id)
	default:
		return writeToken(w, []byte(")"))
	}
}

func encodeRegular(w io.Writer, source Source, id string, mode Mode) error {
	if err := writeToken(w, []byte("regular")); err != nil {
		return err
	}
	if mode == ModeExec {
		if err := writeToken(w, []byte("executable")); err != nil {
			return err
		}
		if err := writeToken(w, []byte("")); err != nil {
			return err
		}
	}
	if err := writeToken(w, []byte("contents")); err != nil {
		return err
	}
	data, err := source.GetBlob(id)
	if err != nil {
		return err
	}
	return writeToken(w, data)
}

func encodeSymlink(w io.Writer, source Source, id string) error {
	if err := writeToken(w, []byte("symlink")); err != nil {
		return err
	}
	if err := writeToken(w, []byte("target")); err != nil {
		return err
	}
	target, err := source.GetSymlinkTarget(id)
	if err != nil {
		return err
	}
	return writeToken(w, []byte(target))
}

func encodeDirectory(w io.Writer, source Source, id string) error {
	if err := writeToken(w, []byte("directory")); err != nil {
		return err
	}
	entries, err := source.GetTreeEntries(id)
	if err != nil {
		return err
	}
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, e := range sorted {
		if err := writeToken(w, []byte("entry")); err != nil {
			return err
		}
		if err := writeToken(w, []byte("(")); err != nil {
			return err
		}
		if err := writeToken(w, []byte("name")); err != nil {
			return err
		}
		if err := writeToken(w, []byte(e.Name)); err != nil {
			return err
		}
		if err := writeToken(w, []byte("node")); err != nil {
			return err
		}
		if err := encodeNode(w, source, e.ID, e.Mode); err != nil {
			return err
		}
		if err := writeToken(w, []byte(")")); err != nil {
			return err
		}
	}
	return writeToken(w, []byte(")"))
}
