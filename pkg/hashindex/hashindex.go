// pkg/hashindex/hashindex.go
//
// Package hashindex implements the disk-persisted hash index: a mapping
// from a 32-bit digest of a typed column value to the list of physical
// positions (block, offset) where a record carrying that value might
// live. Collisions are expected and resolved by the caller re-reading the
// candidate records and filtering by exact equality.
package hashindex

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"sort"

	"github.com/cockroachdb/errors"

	"storedb/pkg/types"
)

// ErrUnsupportedIndexType is returned when asked to key on a value kind
// with no defined digest input.
var ErrUnsupportedIndexType = errors.New("hashindex: unsupported index key type")

// Position locates one candidate record within a table file.
type Position struct {
	Block  uint32
	Offset uint32
}

// Index is an in-memory hash index, bulk-loaded from or flushed to its
// on-disk file.
type Index struct {
	buckets map[uint32][]Position
}

// New returns an empty index.
func New() *Index {
	return &Index{buckets: make(map[uint32][]Position)}
}

// Key derives the 32-bit digest key for v: SHA-256 of the value's typed
// digest input, truncated to the low 32 bits. Int values are packed
// big-endian, preserved for bit-compatibility with existing indexes; every
// other kind uses its normal little-endian/UTF-8 encoding.
func Key(v types.Value) (uint32, error) {
	var input []byte
	switch v.Kind() {
	case types.KindInt:
		input = types.EncodeIntBigEndian(v.Int())
	case types.KindFloat:
		input = types.EncodeFloat(v.Float())
	case types.KindChar, types.KindVarchar:
		input = []byte(v.Text())
	default:
		return 0, errors.Wrapf(ErrUnsupportedIndexType, "kind %v", v.Kind())
	}
	sum := sha256.Sum256(input)
	return binary.BigEndian.Uint32(sum[len(sum)-4:]), nil
}

// Add inserts a candidate position under key.
func (idx *Index) Add(key uint32, pos Position) {
	idx.buckets[key] = append(idx.buckets[key], pos)
}

// Find returns the candidate positions for key, which must still be
// filtered by the caller against the actual column value.
func (idx *Index) Find(key uint32) []Position {
	return idx.buckets[key]
}

// Remove drops pos from key's bucket, if present.
func (idx *Index) Remove(key uint32, pos Position) {
	bucket := idx.buckets[key]
	for i, p := range bucket {
		if p == pos {
			idx.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// on-disk layout: repeated records of (key u32, block u32, offset u32),
// sorted by key for deterministic output, terminated by EOF.
const recordSize = 12

// Load reads an index file written by Save. A missing file yields an
// empty index, matching a freshly created column that has never been
// indexed.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "hashindex: read %s", path)
	}
	idx := New()
	for offset := 0; offset+recordSize <= len(data); offset += recordSize {
		key := binary.LittleEndian.Uint32(data[offset : offset+4])
		pos := Position{
			Block:  binary.LittleEndian.Uint32(data[offset+4 : offset+8]),
			Offset: binary.LittleEndian.Uint32(data[offset+8 : offset+12]),
		}
		idx.Add(key, pos)
	}
	return idx, nil
}

// Save writes the index to path, overwriting any existing file.
func (idx *Index) Save(path string) error {
	keys := make([]uint32, 0, len(idx.buckets))
	for k := range idx.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	buf := make([]byte, 0, len(idx.buckets)*recordSize)
	for _, k := range keys {
		for _, pos := range idx.buckets[k] {
			rec := make([]byte, recordSize)
			binary.LittleEndian.PutUint32(rec[0:4], k)
			binary.LittleEndian.PutUint32(rec[4:8], pos.Block)
			binary.LittleEndian.PutUint32(rec[8:12], pos.Offset)
			buf = append(buf, rec...)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errors.Wrapf(err, "hashindex: write %s", path)
	}
	return nil
}
