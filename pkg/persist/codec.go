// Package persist encodes a graph into a sequence of virtual keys and
// stores them in BadgerDB.
//
// Format:
//
// Every virtual key starts with the same header, followed by a payload table
// and the payloads it announces:
//
//	header:  version, graph name, node count, edge count, deleted node count,
//	         deleted edge count, label count, relation count,
//	         multi-edge flag per relation, key count
//	table:   N, then N x (state, entity count)
//	payload: entity records of the announced state, in table order
//
// Node record: id, label count, label ids, attributes.
// Edge record: id, source id, destination id, relation id, attributes.
// Attributes:  count, then (attribute id, type tag, value) per attribute.
// Deleted-id payloads are flat lists of ids.
//
// Integers are unsigned varints, signed integers zig-zag varints, doubles and
// floats little-endian IEEE 754 bits, strings length-prefixed.
package persist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// maxVectorDim bounds the dimension accepted for a decoded vector index.
const maxVectorDim = 1 << 16

// ErrCorrupt is returned when a key cannot be decoded.
var ErrCorrupt = errors.New("corrupt graph encoding")

// writer appends encoded primitives to a buffer.
type writer struct {
	buf []byte
}

func (w *writer) uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }
func (w *writer) varint(v int64) { w.buf = binary.AppendVarint(w.buf, v) }

func (w *writer) double(f float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(f))
}

func (w *writer) float(f float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(f))
}

func (w *writer) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) boolean(b bool) {
	if b {
		w.uvarint(1)
	} else {
		w.uvarint(0)
	}
}

// reader consumes primitives from a buffer. The first error sticks; later
// reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s at offset %d", ErrCorrupt, what, r.off)
	}
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail("uvarint")
		return 0
	}
	r.off += n
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.fail("varint")
		return 0
	}
	r.off += n
	return v
}

func (r *reader) double() float64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf)-r.off < 8 {
		r.fail("double")
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return math.Float64frombits(v)
}

func (r *reader) float() float32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf)-r.off < 4 {
		r.fail("float")
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return math.Float32frombits(v)
}

func (r *reader) str() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if uint64(len(r.buf)-r.off) < n {
		r.fail("string")
		return ""
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}

func (r *reader) boolean() bool { return r.uvarint() != 0 }

// count reads a length prefix and checks it against the bytes left, so a
// corrupt length cannot trigger a huge allocation.
func (r *reader) count() int {
	n := r.uvarint()
	if r.err == nil && n > uint64(len(r.buf)-r.off) {
		r.fail("length")
		return 0
	}
	return int(n)
}
