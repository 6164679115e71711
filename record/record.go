// Package record defines the fixed-width record contract that tables store.
//
// Ouroboros never inspects field contents itself: a schema is whatever type
// implements Record, so long as Pack/Unpack round-trip exactly StaticSize
// bytes. Field and StringField are small helpers for building such types out
// of fixed-width scalars and zero-padded strings, mirroring the field
// toolkit the original engine treats as an external collaborator.
package record

import (
	"encoding/binary"
	"math"
)

// Record is a fixed-width, schema-known tuple of scalar or fixed-length
// string fields. Size is constant per table type.
type Record interface {
	// Pack appends the record's wire representation to buf and returns the
	// extended slice.
	Pack(buf []byte) []byte
	// Unpack reads the record's wire representation from the front of buf
	// and returns the remainder.
	Unpack(buf []byte) []byte
	// StaticSize is the fixed number of bytes Pack always appends.
	StaticSize() int
}

// Numeric is the set of scalar kinds Field supports.
type Numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Field is a fixed-width scalar field, little-endian on the wire.
type Field[T Numeric] struct {
	Value T
}

// Pack appends the field's little-endian bytes to buf.
func (f Field[T]) Pack(buf []byte) []byte {
	var tmp [8]byte
	n := f.size()
	switch v := any(f.Value).(type) {
	case int8:
		tmp[0] = byte(v)
	case uint8:
		tmp[0] = byte(v)
	case int16:
		binary.LittleEndian.PutUint16(tmp[:2], uint16(v))
	case uint16:
		binary.LittleEndian.PutUint16(tmp[:2], v)
	case int32:
		binary.LittleEndian.PutUint32(tmp[:4], uint32(v))
	case uint32:
		binary.LittleEndian.PutUint32(tmp[:4], v)
	case int64:
		binary.LittleEndian.PutUint64(tmp[:8], uint64(v))
	case uint64:
		binary.LittleEndian.PutUint64(tmp[:8], v)
	case float32:
		binary.LittleEndian.PutUint32(tmp[:4], math.Float32bits(v))
	case float64:
		binary.LittleEndian.PutUint64(tmp[:8], math.Float64bits(v))
	}
	return append(buf, tmp[:n]...)
}

// Unpack reads the field's little-endian bytes from the front of buf.
func (f *Field[T]) Unpack(buf []byte) []byte {
	n := f.size()
	var zero T
	switch any(zero).(type) {
	case int8:
		f.Value = T(int8(buf[0]))
	case uint8:
		f.Value = T(buf[0])
	case int16:
		f.Value = T(int16(binary.LittleEndian.Uint16(buf[:2])))
	case uint16:
		f.Value = T(binary.LittleEndian.Uint16(buf[:2]))
	case int32:
		f.Value = T(int32(binary.LittleEndian.Uint32(buf[:4])))
	case uint32:
		f.Value = T(binary.LittleEndian.Uint32(buf[:4]))
	case int64:
		f.Value = T(int64(binary.LittleEndian.Uint64(buf[:8])))
	case uint64:
		f.Value = T(binary.LittleEndian.Uint64(buf[:8]))
	case float32:
		f.Value = T(math.Float32frombits(binary.LittleEndian.Uint32(buf[:4])))
	case float64:
		f.Value = T(math.Float64frombits(binary.LittleEndian.Uint64(buf[:8])))
	}
	return buf[n:]
}

func (f Field[T]) size() int {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

// StaticSize returns the field's fixed wire size.
func (f Field[T]) StaticSize() int { return f.size() }

// StringField is a fixed-width, zero-padded string field of N bytes.
type StringField struct {
	Value string
	Width int
}

// NewStringField builds a field of the given fixed width.
func NewStringField(width int, value string) StringField {
	return StringField{Value: value, Width: width}
}

// Pack zero-pads or truncates Value to Width bytes and appends them to buf.
func (f StringField) Pack(buf []byte) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, f.Width)...)
	n := copy(buf[start:start+f.Width], f.Value)
	for i := start + n; i < start+f.Width; i++ {
		buf[i] = 0
	}
	return buf
}

// Unpack reads Width bytes from the front of buf, trimming trailing zeros.
func (f *StringField) Unpack(buf []byte) []byte {
	raw := buf[:f.Width]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	f.Value = string(raw[:end])
	return buf[f.Width:]
}

// StaticSize returns the field's fixed wire size.
func (f StringField) StaticSize() int { return f.Width }
