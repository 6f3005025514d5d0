// pkg/schema/schema.go
//
// Package schema defines the column metadata of a table: the Attribute
// (name, dtype, size) and the ordered Schema built from a sequence of
// attributes, along with the schema's on-disk byte layout.
package schema

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"storedb/pkg/types"
)

var (
	// ErrInvalidDtype is returned when an Attribute names a dtype outside
	// {int, float, char, varchar}.
	ErrInvalidDtype = errors.New("schema: invalid dtype")

	// ErrEmptySchema is returned by New when given zero attributes.
	ErrEmptySchema = errors.New("schema: schema must have at least one attribute")

	// ErrDuplicateAttribute is returned by New when two attributes share a
	// name.
	ErrDuplicateAttribute = errors.New("schema: duplicate attribute name")

	// ErrTruncatedSchema is returned by Decode when the byte buffer ends
	// mid-attribute.
	ErrTruncatedSchema = errors.New("schema: truncated schema bytes")
)

// Attribute is a single column definition.
type Attribute struct {
	Name  string
	Dtype types.Kind
	Size  uint16
}

// NewAttribute builds an Attribute, normalizing Size per dtype: int/float
// are forced to 4, char is forced to 1, varchar keeps the caller-supplied
// size. Any dtype outside the four supported kinds is ErrInvalidDtype.
func NewAttribute(name string, dtype types.Kind, size uint16) (Attribute, error) {
	switch dtype {
	case types.KindInt, types.KindFloat:
		size = 4
	case types.KindChar:
		size = 1
	case types.KindVarchar:
		// size is the caller-configured maximum length; kept as given.
	default:
		return Attribute{}, errors.Wrapf(ErrInvalidDtype, "dtype %v", dtype)
	}
	return Attribute{Name: name, Dtype: dtype, Size: size}, nil
}

// Schema is an ordered sequence of attributes.
type Schema []Attribute

// New validates and returns a Schema. It rejects an empty attribute list
// and duplicate attribute names.
func New(attrs []Attribute) (Schema, error) {
	if len(attrs) == 0 {
		return nil, ErrEmptySchema
	}
	seen := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		if _, ok := seen[a.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateAttribute, "name %q", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	s := make(Schema, len(attrs))
	copy(s, attrs)
	return s, nil
}

// IndexOf returns the position of the named attribute, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, a := range s {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the attribute names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, a := range s {
		names[i] = a.Name
	}
	return names
}

// Encode serializes the schema as a concatenation, per attribute, of
// (name_len u16, name utf-8, dtype_len u16, dtype utf-8, size u16), all
// little-endian.
func (s Schema) Encode() []byte {
	var buf []byte
	for _, a := range s {
		name := []byte(a.Name)
		dtype := []byte(a.Dtype.String())

		head := make([]byte, 2)
		binary.LittleEndian.PutUint16(head, uint16(len(name)))
		buf = append(buf, head...)
		buf = append(buf, name...)

		head = make([]byte, 2)
		binary.LittleEndian.PutUint16(head, uint16(len(dtype)))
		buf = append(buf, head...)
		buf = append(buf, dtype...)

		size := make([]byte, 2)
		binary.LittleEndian.PutUint16(size, a.Size)
		buf = append(buf, size...)
	}
	return buf
}

// Decode deserializes a Schema from the byte layout produced by Encode. It
// does not re-run New's duplicate/empty validation: an on-disk schema is
// assumed to have already been validated at create_table time.
func Decode(data []byte) (Schema, error) {
	var attrs []Attribute
	offset := 0
	for offset < len(data) {
		nameLen, offset2, err := readU16(data, offset)
		if err != nil {
			return nil, err
		}
		offset = offset2
		if offset+int(nameLen) > len(data) {
			return nil, ErrTruncatedSchema
		}
		name := string(data[offset : offset+int(nameLen)])
		offset += int(nameLen)

		dtypeLen, offset2, err := readU16(data, offset)
		if err != nil {
			return nil, err
		}
		offset = offset2
		if offset+int(dtypeLen) > len(data) {
			return nil, ErrTruncatedSchema
		}
		dtypeStr := string(data[offset : offset+int(dtypeLen)])
		offset += int(dtypeLen)

		size, offset2, err := readU16(data, offset)
		if err != nil {
			return nil, err
		}
		offset = offset2

		dtype, err := parseDtype(dtypeStr)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Name: name, Dtype: dtype, Size: size})
	}
	return Schema(attrs), nil
}

func readU16(data []byte, offset int) (uint16, int, error) {
	if offset+2 > len(data) {
		return 0, 0, ErrTruncatedSchema
	}
	return binary.LittleEndian.Uint16(data[offset : offset+2]), offset + 2, nil
}

func parseDtype(s string) (types.Kind, error) {
	switch s {
	case "int":
		return types.KindInt, nil
	case "float":
		return types.KindFloat, nil
	case "char":
		return types.KindChar, nil
	case "varchar":
		return types.KindVarchar, nil
	default:
		return 0, errors.Wrapf(ErrInvalidDtype, "dtype %q", s)
	}
}
