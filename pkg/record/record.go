// pkg/record/record.go
//
// Package record serializes a row of typed values into the fixed framing
// that table blocks store: a 2-byte magic ("RC"), the schema-ordered
// scalar payloads, then a 1-byte sentinel (0xCC).
package record

import (
	"github.com/cockroachdb/errors"

	"storedb/pkg/schema"
	"storedb/pkg/types"
)

// Magic identifies the start of a serialized record.
var Magic = [2]byte{'R', 'C'}

// Sentinel follows the payload and marks the end of the record.
const Sentinel = 0xCC

var (
	// ErrSchemaMismatch is returned when the value count doesn't match the
	// schema's attribute count.
	ErrSchemaMismatch = errors.New("record: value count does not match schema")

	// ErrDtypeMismatch is returned when a value's kind disagrees with its
	// attribute's declared dtype.
	ErrDtypeMismatch = errors.New("record: value dtype does not match attribute dtype")

	// ErrBadFraming is returned when a decoded buffer lacks the leading
	// "RC" magic or the trailing 0xCC sentinel, or ends mid-field.
	ErrBadFraming = errors.New("record: missing RC/0xCC framing")
)

// Serialize encodes values, in schema order, into the record's wire form.
// len(values) must equal len(s); each value's Kind must match the
// corresponding attribute's Dtype.
func Serialize(s schema.Schema, values []types.Value) ([]byte, error) {
	if len(values) != len(s) {
		return nil, errors.Wrapf(ErrSchemaMismatch, "got %d values, schema has %d attributes", len(values), len(s))
	}

	buf := []byte{Magic[0], Magic[1]}
	for i, attr := range s {
		v := values[i]
		if v.Kind() != attr.Dtype {
			return nil, errors.Wrapf(ErrDtypeMismatch, "attribute %q: want %v, got %v", attr.Name, attr.Dtype, v.Kind())
		}
		switch attr.Dtype {
		case types.KindInt:
			buf = append(buf, types.EncodeInt(v.Int())...)
		case types.KindFloat:
			buf = append(buf, types.EncodeFloat(v.Float())...)
		case types.KindChar:
			encoded, err := types.EncodeChar(v.Text(), attr.Size)
			if err != nil {
				return nil, errors.Wrapf(err, "attribute %q", attr.Name)
			}
			buf = append(buf, encoded...)
		case types.KindVarchar:
			encoded, err := types.EncodeVarchar(v.Text(), attr.Size)
			if err != nil {
				return nil, errors.Wrapf(err, "attribute %q", attr.Name)
			}
			buf = append(buf, encoded...)
		}
	}
	buf = append(buf, Sentinel)
	return buf, nil
}

// Deserialize decodes a record encoded by Serialize back into schema-ordered
// values, and returns the total number of bytes consumed from data.
func Deserialize(s schema.Schema, data []byte) ([]types.Value, int, error) {
	if len(data) < 2 || data[0] != Magic[0] || data[1] != Magic[1] {
		return nil, 0, ErrBadFraming
	}
	offset := 2
	values := make([]types.Value, len(s))
	for i, attr := range s {
		switch attr.Dtype {
		case types.KindInt:
			if offset+4 > len(data) {
				return nil, 0, errors.Wrap(ErrBadFraming, "truncated int field")
			}
			v, err := types.DecodeInt(data[offset : offset+4])
			if err != nil {
				return nil, 0, err
			}
			values[i] = types.NewInt(v)
			offset += 4
		case types.KindFloat:
			if offset+4 > len(data) {
				return nil, 0, errors.Wrap(ErrBadFraming, "truncated float field")
			}
			v, err := types.DecodeFloat(data[offset : offset+4])
			if err != nil {
				return nil, 0, err
			}
			values[i] = types.NewFloat(v)
			offset += 4
		case types.KindChar:
			size := int(attr.Size)
			if offset+size > len(data) {
				return nil, 0, errors.Wrap(ErrBadFraming, "truncated char field")
			}
			v, err := types.DecodeChar(data[offset:offset+size], attr.Size)
			if err != nil {
				return nil, 0, err
			}
			values[i] = types.NewChar(v)
			offset += size
		case types.KindVarchar:
			v, consumed, err := types.DecodeVarchar(data, offset)
			if err != nil {
				return nil, 0, err
			}
			values[i] = types.NewVarchar(v)
			offset += consumed
		}
	}
	if offset >= len(data) || data[offset] != Sentinel {
		return nil, 0, errors.Wrap(ErrBadFraming, "missing trailing sentinel")
	}
	offset++
	return values, offset, nil
}

// Size returns the maximum encoded byte length of a record for the given
// schema: useful for capacity planning without materializing the record.
// Varchar attributes contribute their 2-byte length prefix plus their
// declared maximum size as an upper bound.
func Size(s schema.Schema) int {
	size := 3 // magic + sentinel
	for _, attr := range s {
		switch attr.Dtype {
		case types.KindInt, types.KindFloat:
			size += 4
		case types.KindChar:
			size += int(attr.Size)
		case types.KindVarchar:
			size += 2 + int(attr.Size)
		}
	}
	return size
}
