package tlv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

// HeaderSize is the encoded size of a tag plus its length field.
const HeaderSize = 5

// Writer collects elements and writes them in ascending tag order.
type Writer struct {
	w      io.Writer
	elems  map[Tag][]byte
	maxLen int64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterMaxValueLength overrides the largest value Flush will emit. It is
// capped at the range of the length field.
func WithWriterMaxValueLength(n int64) WriterOption {
	return func(w *Writer) { w.maxLen = min(n, math.MaxInt32) }
}

// NewWriter returns a Writer that emits to w on Flush. By default it refuses
// values longer than DefaultMaxValueLength so that everything it writes is
// readable by a default Reader.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{w: w, elems: make(map[Tag][]byte), maxLen: DefaultMaxValueLength}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Set stores a copy of value under tag, replacing any previous value.
func (w *Writer) Set(tag Tag, value []byte) {
	w.elems[tag] = append([]byte{}, value...)
}

// SetUint32 stores v as a 4-byte big-endian value.
func (w *Writer) SetUint32(tag Tag, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.elems[tag] = buf[:]
}

// Len reports the number of pending elements.
func (w *Writer) Len() int { return len(w.elems) }

// Flush writes every pending element in ascending tag order and clears the
// writer. It returns the number of bytes written.
func (w *Writer) Flush() (int64, error) {
	tags := make([]Tag, 0, len(w.elems))
	for tag := range w.elems {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	var written int64
	var hdr [HeaderSize]byte
	for _, tag := range tags {
		value := w.elems[tag]
		if int64(len(value)) > w.maxLen {
			return written, fmt.Errorf("element %s: value of %d bytes exceeds %d: %w", tag, len(value), w.maxLen, nerrors.ErrInvalidLength)
		}
		hdr[0] = byte(tag)
		binary.BigEndian.PutUint32(hdr[1:], uint32(len(value)))

		n, err := w.w.Write(hdr[:])
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write %s header: %w", tag, err)
		}
		n, err = w.w.Write(value)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write %s value: %w", tag, err)
		}
	}

	clear(w.elems)
	return written, nil
}

// Marshal encodes elems in ascending tag order.
func Marshal(elems map[Tag][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for tag, value := range elems {
		w.Set(tag, value)
	}
	if _, err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
