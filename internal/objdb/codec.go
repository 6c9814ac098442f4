package objdb

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// blobCodec compresses object bytes at rest with zstd, the same library
// and the same "one shared encoder/decoder, reused across calls" pattern
// the teacher's internal/objects/object.go uses for EncodeZstdGitBlob /
// DecodeZstdGitBlob. It is only applied to blob payloads (archive file
// content), never to tree/commit/reference metadata, which stays small
// and is read far more often than written.
type blobCodec struct {
	enabled bool

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

func newBlobCodec(enabled bool) *blobCodec {
	return &blobCodec{enabled: enabled}
}

func (c *blobCodec) encoder() (*zstd.Encoder, error) {
	c.encOnce.Do(func() {
		c.enc, c.encErr = zstd.NewWriter(nil)
	})
	return c.enc, c.encErr
}

func (c *blobCodec) decoder() (*zstd.Decoder, error) {
	c.decOnce.Do(func() {
		c.dec, c.decErr = zstd.NewReader(nil)
	})
	return c.dec, c.decErr
}

func (c *blobCodec) compress(data []byte) ([]byte, error) {
	if !c.enabled {
		return data, nil
	}
	enc, err := c.encoder()
	if err != nil {
		return nil, fmt.Errorf("objdb: init zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

func (c *blobCodec) decompress(data []byte) ([]byte, error) {
	if !c.enabled {
		return data, nil
	}
	dec, err := c.decoder()
	if err != nil {
		return nil, fmt.Errorf("objdb: init zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decode: %v", ErrCorrupt, err)
	}
	return out, nil
}
