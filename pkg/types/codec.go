// pkg/types/codec.go
//
// Byte-level encode/decode for the four scalar kinds. All integer and float
// fields are little-endian; char fields are zero-padded to a fixed size;
// varchar fields carry an explicit 2-byte length prefix.
package types

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// CodecError reports an out-of-range value or malformed byte layout
// encountered while encoding or decoding a scalar.
type CodecError struct {
	Op     string
	Reason string
}

func (e *CodecError) Error() string {
	return "types: " + e.Op + ": " + e.Reason
}

func codecErr(op, reason string) error {
	return errors.WithStack(&CodecError{Op: op, Reason: reason})
}

// EncodeInt encodes a 4-byte signed little-endian integer.
func EncodeInt(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeInt decodes a 4-byte signed little-endian integer. data must be
// exactly 4 bytes.
func DecodeInt(data []byte) (int32, error) {
	if len(data) != 4 {
		return 0, codecErr("DecodeInt", "expected 4 bytes")
	}
	return int32(binary.LittleEndian.Uint32(data)), nil
}

// EncodeFloat encodes an IEEE-754 32-bit float, stored as its raw bits in a
// 4-byte little-endian integer.
func EncodeFloat(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeFloat decodes a 4-byte IEEE-754 float. data must be exactly 4 bytes.
func DecodeFloat(data []byte) (float32, error) {
	if len(data) != 4 {
		return 0, codecErr("DecodeFloat", "expected 4 bytes")
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
}

// EncodeChar encodes a string as UTF-8 bytes right-padded with 0x00 to size.
// The caller is expected to have already validated that v is a single
// character; EncodeChar only enforces that the encoded form fits in size
// bytes and is valid UTF-8.
func EncodeChar(v string, size uint16) ([]byte, error) {
	if !utf8.ValidString(v) {
		return nil, codecErr("EncodeChar", "invalid utf-8")
	}
	encoded := []byte(v)
	if len(encoded) > int(size) {
		return nil, codecErr("EncodeChar", "encoded length exceeds declared size")
	}
	buf := make([]byte, size)
	copy(buf, encoded)
	return buf, nil
}

// DecodeChar reads exactly size bytes, strips trailing 0x00 padding, and
// decodes the remainder as UTF-8.
func DecodeChar(data []byte, size uint16) (string, error) {
	if len(data) != int(size) {
		return "", codecErr("DecodeChar", "data does not match declared size")
	}
	trimmed := data
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == 0x00 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if !utf8.Valid(trimmed) {
		return "", codecErr("DecodeChar", "invalid utf-8")
	}
	return string(trimmed), nil
}

// StripVarcharQuotes removes a surrounding pair of single quotes from a
// varchar literal, if both the leading and trailing byte are single quotes.
func StripVarcharQuotes(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}

// EncodeVarchar strips a surrounding single-quote wrapper (if present), then
// encodes the remaining UTF-8 bytes as a 2-byte length prefix followed by
// the raw bytes. maxSize bounds the encoded (post-strip) length.
func EncodeVarchar(v string, maxSize uint16) ([]byte, error) {
	v = StripVarcharQuotes(v)
	if !utf8.ValidString(v) {
		return nil, codecErr("EncodeVarchar", "invalid utf-8")
	}
	encoded := []byte(v)
	if len(encoded) > int(maxSize) {
		return nil, codecErr("EncodeVarchar", "encoded length exceeds declared size")
	}
	buf := make([]byte, 2+len(encoded))
	binary.LittleEndian.PutUint16(buf, uint16(len(encoded)))
	copy(buf[2:], encoded)
	return buf, nil
}

// DecodeVarchar reads a 2-byte length prefix and the following payload
// starting at offset within data, returning the decoded raw string (no
// quote wrapper is applied) and the number of bytes consumed.
func DecodeVarchar(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", 0, codecErr("DecodeVarchar", "truncated length prefix")
	}
	length := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	start := offset + 2
	end := start + length
	if end > len(data) {
		return "", 0, codecErr("DecodeVarchar", "truncated payload")
	}
	payload := data[start:end]
	if !utf8.Valid(payload) {
		return "", 0, codecErr("DecodeVarchar", "invalid utf-8")
	}
	return string(payload), 2 + length, nil
}

// EncodeIntBigEndian encodes v as a 4-byte big-endian integer. It is used
// only as the digest input for hash-index key derivation, preserved for
// bit-compatibility with existing indexes.
func EncodeIntBigEndian(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}
