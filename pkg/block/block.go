// pkg/block/block.go
//
// Package block implements the fixed 4 KiB page: a 12-byte header
// (PageID, RecordCount, FreeSpaceOffset) followed by a 4084-byte data
// area where records are packed from offset 0 upward.
package block

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
)

const (
	// Size is the total on-disk footprint of a block.
	Size = 4096

	headerSize = 12

	// DataSize is the usable record-storage area of a block.
	DataSize = Size - headerSize
)

// ErrPageFull is returned by AddRecord when the block lacks room for the
// given bytes. It is internal-only: every caller above Block rolls to a
// new block instead of surfacing this to its own callers.
var ErrPageFull = errors.New("block: page full")

// ErrShortBlock is returned by FromBytes when the buffer is not exactly
// Size bytes long.
var ErrShortBlock = errors.New("block: short block buffer")

// Block is one fixed-size page of a table file.
type Block struct {
	PageID          uint32
	RecordCount     uint32
	FreeSpaceOffset uint32
	data            [DataSize]byte
	cursor          uint32
}

// New allocates a zeroed block for the given page number.
func New(pageID uint32) *Block {
	return &Block{PageID: pageID}
}

// AddRecord appends encoded bytes to the block's data area, advancing
// FreeSpaceOffset and RecordCount. It fails with ErrPageFull when the
// remaining capacity is smaller than len(record).
func (b *Block) AddRecord(record []byte) error {
	if b.Capacity() < uint32(len(record)) {
		return ErrPageFull
	}
	copy(b.data[b.FreeSpaceOffset:], record)
	b.FreeSpaceOffset += uint32(len(record))
	b.RecordCount++
	return nil
}

// Capacity returns the remaining unused bytes in the data area.
func (b *Block) Capacity() uint32 {
	return DataSize - b.FreeSpaceOffset
}

// DataAt returns the data area starting at the given byte offset. Callers
// use this to hand a schema-aware decoder the bytes of one record without
// Block needing to know the record's length.
func (b *Block) DataAt(offset uint32) []byte {
	return b.data[offset:]
}

// Data returns the full data area.
func (b *Block) Data() []byte {
	return b.data[:]
}

// Bytes serializes the block to its fixed 4096-byte on-disk form.
func (b *Block) Bytes() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], b.PageID)
	binary.LittleEndian.PutUint32(buf[4:8], b.RecordCount)
	binary.LittleEndian.PutUint32(buf[8:12], b.FreeSpaceOffset)
	copy(buf[headerSize:], b.data[:])
	return buf
}

// FromBytes deserializes a block from its fixed 4096-byte on-disk form.
func FromBytes(buf []byte) (*Block, error) {
	if len(buf) != Size {
		return nil, errors.Wrapf(ErrShortBlock, "got %d bytes, want %d", len(buf), Size)
	}
	b := &Block{
		PageID:          binary.LittleEndian.Uint32(buf[0:4]),
		RecordCount:     binary.LittleEndian.Uint32(buf[4:8]),
		FreeSpaceOffset: binary.LittleEndian.Uint32(buf[8:12]),
	}
	copy(b.data[:], buf[headerSize:])
	return b, nil
}

// ReadBlock reads the n-th 4096-byte block from f.
func ReadBlock(f *os.File, n uint32) (*Block, error) {
	buf := make([]byte, Size)
	if _, err := f.ReadAt(buf, int64(n)*Size); err != nil {
		return nil, errors.Wrapf(err, "block: read block %d", n)
	}
	return FromBytes(buf)
}

// WriteBlock overwrites the n-th 4096-byte range of f with b.
func (b *Block) WriteBlock(f *os.File, n uint32) error {
	if _, err := f.WriteAt(b.Bytes(), int64(n)*Size); err != nil {
		return errors.Wrapf(err, "block: write block %d", n)
	}
	return nil
}

// InitCursor resets sequential reading to the start of the data area.
func (b *Block) InitCursor() {
	b.cursor = 0
}

// Read returns the next recordSize bytes starting at the cursor and
// advances it. The second return value is false once the cursor would run
// past FreeSpaceOffset, signaling end of block.
func (b *Block) Read(recordSize uint32) ([]byte, bool) {
	if b.cursor+recordSize > b.FreeSpaceOffset {
		return nil, false
	}
	out := b.data[b.cursor : b.cursor+recordSize]
	b.cursor += recordSize
	return out, true
}
