package upload

import (
	"bufio"
	"io"

	"github.com/go-faster/errors"
)

// SniffLen is the number of leading bytes a Payload can expose through Peek
// without consuming them.
const SniffLen = 3072

// ErrTooLarge is returned by a payload reader once the configured limit is
// exceeded.
var ErrTooLarge = errors.New("payload exceeds size limit")

// Payload is a single image body handed to the Adapter. It holds either a
// fixed-size buffer or a live stream; a stream is piped to the provider and
// never read in full beforehand.
type Payload struct {
	ContentType string
	Filename    string

	data   []byte
	stream *bufio.Reader

	limit    int64
	consumed int64
	overflow bool
}

// Buffer returns a payload over an already materialized body.
func Buffer(data []byte, contentType, filename string) *Payload {
	return &Payload{
		ContentType: contentType,
		Filename:    filename,
		data:        data,
	}
}

// Stream returns a payload reading from r. A nil reader yields an empty
// payload.
func Stream(r io.Reader, contentType, filename string) *Payload {
	p := &Payload{
		ContentType: contentType,
		Filename:    filename,
	}
	if r != nil {
		p.stream = bufio.NewReaderSize(r, SniffLen+1024)
	}
	return p
}

// Streaming reports whether the payload is backed by a live stream.
func (p *Payload) Streaming() bool { return p.stream != nil }

// Size returns the buffer length, or -1 for streams.
func (p *Payload) Size() int64 {
	if p.stream != nil {
		return -1
	}
	return int64(len(p.data))
}

// Bytes returns the buffered body. It is nil for streams.
func (p *Payload) Bytes() []byte { return p.data }

// Peek returns up to n leading bytes without consuming them. n is capped at
// SniffLen. A short payload is not an error.
func (p *Payload) Peek(n int) ([]byte, error) {
	n = min(n, SniffLen)
	if p.stream == nil {
		return p.data[:min(n, len(p.data))], nil
	}
	b, err := p.stream.Peek(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return b, err
	}
	return b, nil
}

// Empty reports whether the payload carries no bytes at all.
func (p *Payload) Empty() (bool, error) {
	b, err := p.Peek(1)
	if err != nil {
		return false, err
	}
	return len(b) == 0, nil
}

// SetLimit caps the number of bytes a stream may yield. Reading past the cap
// fails with ErrTooLarge. Zero disables the cap.
func (p *Payload) SetLimit(n int64) { p.limit = n }

// Exceeded reports whether a read hit the limit set by SetLimit.
func (p *Payload) Exceeded() bool { return p.overflow }

// Reader returns the stream reader honoring the limit. It must only be
// called on streaming payloads.
func (p *Payload) Reader() io.Reader { return (*limitedReader)(p) }

type limitedReader Payload

func (r *limitedReader) Read(b []byte) (int, error) {
	if r.limit > 0 {
		left := r.limit - r.consumed
		if left <= 0 {
			_, err := r.stream.Peek(1)
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			if err != nil {
				return 0, err
			}
			r.overflow = true
			return 0, ErrTooLarge
		}
		if int64(len(b)) > left {
			b = b[:left]
		}
	}
	n, err := r.stream.Read(b)
	r.consumed += int64(n)
	return n, err
}
