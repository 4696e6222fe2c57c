package tlv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

// DefaultMaxValueLength bounds a single declared element length.
const DefaultMaxValueLength = 256 << 20

// Reader decodes elements from a byte stream one at a time.
type Reader struct {
	r      io.Reader
	known  map[Tag]bool
	maxLen int64
	err    error
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxValueLength overrides the largest accepted declared length.
func WithMaxValueLength(n int64) ReaderOption {
	return func(r *Reader) { r.maxLen = n }
}

// WithKnownTags replaces the accepted tag set.
func WithKnownTags(tags ...Tag) ReaderOption {
	return func(r *Reader) {
		r.known = make(map[Tag]bool, len(tags))
		for _, t := range tags {
			r.known[t] = true
		}
	}
}

// NewReader returns a Reader over r accepting VaultTags unless configured otherwise.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{r: r, maxLen: DefaultMaxValueLength}
	WithKnownTags(VaultTags...)(rd)
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next decodes the next element. It returns io.EOF when the stream ends
// cleanly on an element boundary. After any other error the Reader is spent
// and keeps returning that error.
func (r *Reader) Next() (Element, error) {
	if r.err != nil {
		return Element{}, r.err
	}
	el, err := r.next()
	if err != nil {
		r.err = err
	}
	return el, err
}

func (r *Reader) next() (Element, error) {
	var hdr [HeaderSize]byte

	if _, err := io.ReadFull(r.r, hdr[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return Element{}, io.EOF
		}
		return Element{}, fmt.Errorf("read tag: %w", err)
	}
	tag := Tag(hdr[0])
	if !r.known[tag] {
		return Element{}, fmt.Errorf("tag 0x%02x: %w", hdr[0], nerrors.ErrUnknownTag)
	}

	if _, err := io.ReadFull(r.r, hdr[1:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Element{}, fmt.Errorf("%s length: %w", tag, nerrors.ErrUnexpectedEndOfStream)
		}
		return Element{}, fmt.Errorf("read %s length: %w", tag, err)
	}
	length := int64(int32(binary.BigEndian.Uint32(hdr[1:])))
	if length < 0 || length > r.maxLen {
		return Element{}, fmt.Errorf("%s declares %d bytes: %w", tag, length, nerrors.ErrInvalidLength)
	}

	// CopyN grows the buffer as data arrives, so a truncated stream never
	// costs an allocation of the full declared length.
	var value bytes.Buffer
	if _, err := io.CopyN(&value, r.r, length); err != nil {
		if errors.Is(err, io.EOF) {
			return Element{}, fmt.Errorf("%s value: %w", tag, nerrors.ErrUnexpectedEndOfStream)
		}
		return Element{}, fmt.Errorf("read %s value: %w", tag, err)
	}

	v := value.Bytes()
	if v == nil {
		v = []byte{}
	}
	return Element{Tag: tag, Value: v}, nil
}

// All returns the remaining elements as a lazy sequence. Iteration stops after
// the first error, which is yielded with a zero Element.
func (r *Reader) All() iter.Seq2[Element, error] {
	return func(yield func(Element, error) bool) {
		for {
			el, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Element{}, err)
				return
			}
			if !yield(el, nil) {
				return
			}
		}
	}
}

// Unmarshal decodes every element in data.
func Unmarshal(data []byte, opts ...ReaderOption) ([]Element, error) {
	var out []Element
	for el, err := range NewReader(bytes.NewReader(data), opts...).All() {
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}
