package pbf

import (
	"encoding/binary"
	"math"
)

// AppendTag appends one record key for field with the given wire type.
func AppendTag(buf []byte, field int32, wt WireType) []byte {
	return binary.AppendUvarint(buf, uint64(field)<<3|uint64(wt))
}

// AppendVarint appends one base-128 varint.
func AppendVarint(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

// AppendSVarint appends one zigzag-encoded signed varint.
func AppendSVarint(buf []byte, v int64) []byte {
	return binary.AppendUvarint(buf, uint64(v<<1)^uint64(v>>63))
}

// AppendBool appends one varint-encoded boolean.
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendDouble appends one little-endian fixed64 float.
func AppendDouble(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}

// AppendFloat appends one little-endian fixed32 float.
func AppendFloat(buf []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

// AppendBytes appends one length-delimited record.
func AppendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// AppendString appends one length-delimited record from a string.
func AppendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// AppendMessage appends msg as a length-delimited nested record under
// field.
func AppendMessage(buf []byte, field int32, msg []byte) []byte {
	buf = AppendTag(buf, field, WireBytes)
	return AppendBytes(buf, msg)
}
