// Package tlv implements a small tag/length/value binary codec.
//
// Each element is laid out as
//
//	[tag: 1 byte][length: 4 bytes big-endian][value: length bytes]
//
// Writers emit elements in ascending tag order regardless of the order they
// were set in, so re-serializing an unchanged record is byte-identical.
// Readers yield a lazy, forward-only sequence of elements and reject unknown
// tags, truncated fields and absurd lengths before allocating for them.
//
// The codec assigns no meaning to tags beyond their byte value; callers
// supply the set of tags they accept.
package tlv
