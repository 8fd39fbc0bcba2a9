// Package pbf implements the protocol-buffer wire primitives the vector
// tile format is built from: a bounds-checked pull cursor over a byte
// buffer and append-style writers for composing messages.
package pbf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WireType identifies the encoding of one record on the wire.
type WireType uint8

const (
	WireVarint  WireType = 0
	WireFixed64 WireType = 1
	WireBytes   WireType = 2
	WireFixed32 WireType = 5
)

var (
	ErrTruncated = errors.New("mapview: truncated protobuf buffer")
	ErrVarint    = errors.New("mapview: malformed varint")
	ErrWireType  = errors.New("mapview: unsupported protobuf wire type")
)

// Reader is a pull cursor over one protobuf message. It never copies the
// buffer: nested messages are read by descending into a sub-reader
// bounded by the declared length, and byte fields alias the buffer.
type Reader struct {
	buf []byte
	pos int
	end int
}

// NewReader returns a cursor over the whole of buf.
func NewReader(buf []byte) Reader {
	return Reader{buf: buf, end: len(buf)}
}

// ReaderAt returns a cursor confined to buf[start:end], as previously
// obtained from Bounds of a Message sub-reader.
func ReaderAt(buf []byte, start, end int) Reader {
	if start < 0 {
		start = 0
	}
	if end > len(buf) {
		end = len(buf)
	}
	if start > end {
		start = end
	}
	return Reader{buf: buf, pos: start, end: end}
}

// More reports whether any bytes remain before the cursor's bound.
func (r *Reader) More() bool { return r.pos < r.end }

// Pos returns the cursor offset from the start of the underlying buffer.
func (r *Reader) Pos() int { return r.pos }

// Bounds returns the cursor's current position and its end bound.
func (r *Reader) Bounds() (start, end int) { return r.pos, r.end }

// ReadTag reads one record key, returning the field number and the wire
// type of the record that follows.
func (r *Reader) ReadTag() (field int32, wt WireType, err error) {
	key, err := r.Varint()
	if err != nil {
		return 0, 0, err
	}
	return int32(key >> 3), WireType(key & 0x7), nil
}

// Varint reads one base-128 varint.
func (r *Reader) Varint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 10; i++ {
		if r.pos >= r.end {
			return 0, ErrTruncated
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrVarint
}

// SVarint reads one zigzag-encoded signed varint.
func (r *Reader) SVarint() (int64, error) {
	v, err := r.Varint()
	if err != nil {
		return 0, err
	}
	return int64(v>>1) ^ -int64(v&1), nil
}

// Bool reads one varint-encoded boolean.
func (r *Reader) Bool() (bool, error) {
	v, err := r.Varint()
	return v != 0, err
}

// Double reads one little-endian fixed64 float.
func (r *Reader) Double() (float64, error) {
	if r.end-r.pos < 8 {
		return 0, ErrTruncated
	}
	bits := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), nil
}

// Float reads one little-endian fixed32 float.
func (r *Reader) Float() (float32, error) {
	if r.end-r.pos < 4 {
		return 0, ErrTruncated
	}
	bits := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return math.Float32frombits(bits), nil
}

// Bytes reads one length-delimited record. The returned slice aliases
// the underlying buffer.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	if uint64(r.end-r.pos) < n {
		return nil, fmt.Errorf("%w: %d byte record, %d left", ErrTruncated, n, r.end-r.pos)
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// String reads one length-delimited record as a string.
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

// Message bounds the nested length-delimited record at the cursor and
// returns a sub-reader confined to it. The parent cursor moves past the
// record.
func (r *Reader) Message() (Reader, error) {
	n, err := r.Varint()
	if err != nil {
		return Reader{}, err
	}
	if uint64(r.end-r.pos) < n {
		return Reader{}, fmt.Errorf("%w: %d byte message, %d left", ErrTruncated, n, r.end-r.pos)
	}
	start := r.pos
	r.pos += int(n)
	return Reader{buf: r.buf, pos: start, end: r.pos}, nil
}

// Skip advances past one record of the given wire type, so cursors stay
// aligned across fields they do not understand.
func (r *Reader) Skip(wt WireType) error {
	switch wt {
	case WireVarint:
		_, err := r.Varint()
		return err
	case WireFixed64:
		if r.end-r.pos < 8 {
			return ErrTruncated
		}
		r.pos += 8
		return nil
	case WireBytes:
		_, err := r.Bytes()
		return err
	case WireFixed32:
		if r.end-r.pos < 4 {
			return ErrTruncated
		}
		r.pos += 4
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrWireType, wt)
	}
}
