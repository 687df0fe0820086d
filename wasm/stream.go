package wasm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-bridge/wasm/internal/binary"
)

// ErrTooLarge is returned when a stream exceeds the configured byte limit.
var ErrTooLarge = errors.New("module exceeds size limit")

// Section is one raw section envelope as it arrived on the stream.
type Section struct {
	Data []byte
	ID   byte
}

// StreamReader validates a module section by section while it is being received.
// The header is checked before anything else is read, so a stream that is not
// a module fails on its first eight bytes.
type StreamReader struct {
	src       *teeReader
	r         *binary.Reader
	limit     int64
	lastOrder int
	header    bool
	done      bool
}

// NewStreamReader creates a StreamReader. A limit of zero or less disables the size check.
func NewStreamReader(r io.Reader, limit int64) *StreamReader {
	tee := &teeReader{r: bufio.NewReader(r)}
	return &StreamReader{
		src:   tee,
		r:     binary.NewReader(tee),
		limit: limit,
	}
}

// Next returns the next section. It returns io.EOF after the last section.
func (s *StreamReader) Next() (Section, error) {
	if s.done {
		return Section{}, io.EOF
	}
	if !s.header {
		if err := readHeader(s.r); err != nil {
			return Section{}, err
		}
		s.header = true
	}

	id, err := s.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return Section{}, io.EOF
		}
		return Section{}, s.r.WrapError("section header", err)
	}
	if id > SectionTag {
		return Section{}, fmt.Errorf("unknown section ID: 0x%02x", id)
	}
	if id != SectionCustom {
		order := sectionOrder(id)
		if order <= s.lastOrder {
			return Section{}, fmt.Errorf("section %d appears out of order", id)
		}
		s.lastOrder = order
	}

	size, err := s.r.ReadU32()
	if err != nil {
		return Section{}, s.r.WrapError("section size", err)
	}
	if s.limit > 0 && int64(s.r.Position())+int64(size) > s.limit {
		return Section{}, ErrTooLarge
	}
	data, err := s.r.ReadBytes(int(size))
	if err != nil {
		return Section{}, s.r.WrapError(sectionName(id)+" section", err)
	}
	return Section{ID: id, Data: data}, nil
}

// Bytes returns every byte consumed so far.
func (s *StreamReader) Bytes() []byte {
	return s.src.buf.Bytes()
}

// ReadStream drains r through a StreamReader and returns the complete module bytes.
// The context is checked between sections.
func ReadStream(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	sr := NewStreamReader(r, limit)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := sr.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return sr.Bytes(), nil
			}
			return nil, err
		}
	}
}

type teeReader struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func (t *teeReader) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err != nil {
		return 0, err
	}
	t.buf.WriteByte(b)
	return b, nil
}
