package archive

import (
	"context"
	"io"
	"sort"
)

// stateKind is one frame of the explicit traversal stack, mirroring
// original_source/src/nar/encode_stream.rs's TraversalState enum
// (StartNode, ProcessTreeEntries, FinishTreeEntry, FinishNode). Using an
// explicit stack instead of recursion is what lets Next pause between
// any two chunks without blocking on a blob read or holding a lock
// across an HTTP write.
type stateKind int

const (
	stateStartNode stateKind = iota
	stateProcessTreeEntries
	stateFinishTreeEntry
	stateFinishNode
)

type frame struct {
	kind    stateKind
	id      string
	mode    Mode
	entries []Entry // remaining entries, for stateProcessTreeEntries
}

// Producer streams one archive as a sequence of byte chunks without ever
// materializing the whole thing in memory, the Go analogue of
// NarGitStream's futures::Stream implementation. Each call to Next does
// at most one unit of traversal work (one blob read, one directory
// listing, or one framing token) and returns, so a slow consumer never
// holds the producer inside a long synchronous call.
type Producer struct {
	source     Source
	stack      []frame
	pending    [][]byte
	wroteMagic bool
}

// NewProducer creates a Producer for the object (id, mode).
func NewProducer(source Source, id string, mode Mode) *Producer {
	return &Producer{
		source: source,
		stack:  []frame{{kind: stateStartNode, id: id, mode: mode}},
	}
}

// Next returns the next chunk of archive bytes, or io.EOF once the
// archive is fully produced.
func (p *Producer) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.wroteMagic {
		p.wroteMagic = true
		return tokenBytes([]byte(Magic)), nil
	}
	for len(p.pending) == 0 {
		if len(p.stack) == 0 {
			return nil, io.EOF
		}
		top := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		if err := p.step(top); err != nil {
			return nil, err
		}
	}
	chunk := p.pending[0]
	p.pending = p.pending[1:]
	return chunk, nil
}

// Reader adapts Producer to io.Reader for callers (like net/http's
// response writer path via io.Copy) that want a pull-by-bytes interface
// rather than pull-by-chunk.
func (p *Producer) Reader(ctx context.Context) io.Reader {
	return &producerReader{ctx: ctx, p: p}
}

type producerReader struct {
	ctx context.Context
	p   *Producer
	buf []byte
}

func (pr *producerReader) Read(dst []byte) (int, error) {
	for len(pr.buf) == 0 {
		chunk, err := pr.p.Next(pr.ctx)
		if err != nil {
			return 0, err
		}
		pr.buf = chunk
	}
	n := copy(dst, pr.buf)
	pr.buf = pr.buf[n:]
	return n, nil
}

func (p *Producer) emit(chunks ...[]byte) {
	p.pending = append(p.pending, chunks...)
}

func (p *Producer) step(f frame) error {
	switch f.kind {
	case stateStartNode:
		return p.stepStartNode(f)
	case stateProcessTreeEntries:
		return p.stepProcessTreeEntries(f)
	case stateFinishTreeEntry:
		p.emit(tokenBytes([]byte(")")))
		return nil
	case stateFinishNode:
		p.emit(tokenBytes([]byte(")")))
		return nil
	}
	return nil
}

func (p *Producer) stepStartNode(f frame) error {
	p.emit(tokenBytes([]byte("(")), tokenBytes([]byte("type")))

	switch f.mode {
	case ModeBlob, ModeExec:
		data, err := p.source.GetBlob(f.id)
		if err != nil {
			return err
		}
		chunks := [][]byte{tokenBytes([]byte("regular"))}
		if f.mode == ModeExec {
			chunks = append(chunks, tokenBytes([]byte("executable")), tokenBytes([]byte("")))
		}
		chunks = append(chunks, tokenBytes([]byte("contents")), tokenBytes(data))
		p.emit(chunks...)
		p.stack = append(p.stack, frame{kind: stateFinishNode})
		return nil

	case ModeLink:
		target, err := p.source.GetSymlinkTarget(f.id)
		if err != nil {
			return err
		}
		p.emit(
			tokenBytes([]byte("symlink")),
			tokenBytes([]byte("target")),
			tokenBytes([]byte(target)),
		)
		p.stack = append(p.stack, frame{kind: stateFinishNode})
		return nil

	case ModeTree:
		entries, err := p.source.GetTreeEntries(f.id)
		if err != nil {
			return err
		}
		sorted := append([]Entry(nil), entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		p.emit(tokenBytes([]byte("directory")))
		// Directory's closing paren is the node's closing paren: push
		// FinishNode beneath ProcessTreeEntries so it runs once every
		// entry (and its FinishTreeEntry) has been processed.
		p.stack = append(p.stack,
			frame{kind: stateFinishNode},
			frame{kind: stateProcessTreeEntries, entries: sorted},
		)
		return nil
	}
	return nil
}

func (p *Producer) stepProcessTreeEntries(f frame) error {
	if len(f.entries) == 0 {
		return nil
	}
	entry := f.entries[0]
	rest := f.entries[1:]

	// Push in reverse execution order: this entry's child node must run
	// before stateFinishTreeEntry, which must run before the remaining
	// entries are processed.
	p.stack = append(p.stack,
		frame{kind: stateProcessTreeEntries, entries: rest},
		frame{kind: stateFinishTreeEntry},
		frame{kind: stateStartNode, id: entry.ID, mode: entry.Mode},
	)
	p.emit(
		tokenBytes([]byte("entry")),
		tokenBytes([]byte("(")),
		tokenBytes([]byte("name")),
		tokenBytes([]byte(entry.Name)),
		tokenBytes([]byte("node")),
	)
	return nil
}
