// pkg/table/manager.go
//
// Package table implements the per-table file manager: a sequence of
// 4096-byte blocks on disk, block 0 carrying the table header, with
// append, scan, conditional delete, conditional update, and statistics
// operations. It reads and writes through a shared page cache collaborator.
package table

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"

	"storedb/pkg/block"
	"storedb/pkg/eval"
	"storedb/pkg/pagecache"
	"storedb/pkg/record"
	"storedb/pkg/schema"
	"storedb/pkg/types"
)

// ErrNoSchema is returned by OpenOrCreate when the file does not already
// exist and no schema was supplied to create it.
var ErrNoSchema = errors.New("table: no schema given for new table")

// ErrBadHeader is returned when a table file's block 0 fails header
// validation (missing magic, missing trailing sentinel, or truncated).
var ErrBadHeader = errors.New("table: malformed table header")

const (
	headerMagic    = "HEAD"
	headerSentinel = 0xCC
)

// Manager owns one table's file on disk: its schema, its cached block
// count/record count, and all reads/writes against it.
type Manager struct {
	Name   string
	Schema schema.Schema

	path        string
	file        *os.File
	cache       *pagecache.Cache
	recordCount uint32
	blockCount  uint16
}

// OpenOrCreate opens an existing table file at path, or creates one with
// the given schema if the file does not exist. schema may be nil when the
// file is expected to already exist.
func OpenOrCreate(name, path string, s schema.Schema, cache *pagecache.Cache) (*Manager, error) {
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		return open(name, path, cache)
	case os.IsNotExist(statErr):
		if s == nil {
			return nil, ErrNoSchema
		}
		return create(name, path, s, cache)
	default:
		return nil, errors.Wrapf(statErr, "table: stat %s", path)
	}
}

func create(name, path string, s schema.Schema, cache *pagecache.Cache) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "table: create %s", path)
	}
	m := &Manager{
		Name:        name,
		Schema:      s,
		path:        path,
		file:        f,
		cache:       cache,
		recordCount: 0,
		blockCount:  1,
	}
	b0 := block.New(0)
	header := encodeHeader(s, 0)
	if err := b0.AddRecord(header); err != nil {
		return nil, errors.Wrap(err, "table: table header does not fit in block 0")
	}
	if err := b0.WriteBlock(f, 0); err != nil {
		return nil, err
	}
	cache.Set(name, 0, b0)
	return m, nil
}

func open(name, path string, cache *pagecache.Cache) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "table: open %s", path)
	}
	b0, err := block.ReadBlock(f, 0)
	if err != nil {
		return nil, err
	}
	s, recordCount, blockCount, err := decodeHeader(b0.Data())
	if err != nil {
		return nil, err
	}
	cache.Set(name, 0, b0)
	return &Manager{
		Name:        name,
		Schema:      s,
		path:        path,
		file:        f,
		cache:       cache,
		recordCount: recordCount,
		blockCount:  blockCount,
	}, nil
}

// headerLen returns the byte length of the encoded table header,
// including its trailing sentinel.
func headerLen(s schema.Schema) uint32 {
	return uint32(len(encodeHeader(s, 0)))
}

// encodeHeader serializes the table header with the given record count.
// The block-count field is written as 1; rewriteHeader overwrites it with
// the table's current block count before persisting.
func encodeHeader(s schema.Schema, recordCount uint32) []byte {
	encodedSchema := s.Encode()

	buf := []byte(headerMagic)
	lenPlaceholder := make([]byte, 4)
	buf = append(buf, lenPlaceholder...)

	rc := make([]byte, 4)
	binary.LittleEndian.PutUint32(rc, recordCount)
	buf = append(buf, rc...)

	bc := make([]byte, 2)
	binary.LittleEndian.PutUint16(bc, 1)
	buf = append(buf, bc...)

	schemaLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(schemaLen, uint16(len(encodedSchema)))
	buf = append(buf, schemaLen...)

	attrCnt := make([]byte, 2)
	binary.LittleEndian.PutUint16(attrCnt, uint16(len(s)))
	buf = append(buf, attrCnt...)

	buf = append(buf, encodedSchema...)
	buf = append(buf, headerSentinel)

	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	return buf
}

func decodeHeader(data []byte) (schema.Schema, uint32, uint16, error) {
	if len(data) < 18 || string(data[0:4]) != headerMagic {
		return nil, 0, 0, errors.Wrap(ErrBadHeader, "missing HEAD magic")
	}
	headerLength := binary.LittleEndian.Uint32(data[4:8])
	recordCount := binary.LittleEndian.Uint32(data[8:12])
	blockCount := binary.LittleEndian.Uint16(data[12:14])
	schemaLen := binary.LittleEndian.Uint16(data[14:16])

	if int(headerLength) > len(data) || headerLength < 18 {
		return nil, 0, 0, errors.Wrap(ErrBadHeader, "header length out of range")
	}
	if data[headerLength-1] != headerSentinel {
		return nil, 0, 0, errors.Wrap(ErrBadHeader, "missing trailing sentinel")
	}

	schemaStart := 18
	schemaEnd := schemaStart + int(schemaLen)
	if schemaEnd > len(data) {
		return nil, 0, 0, errors.Wrap(ErrBadHeader, "schema bytes truncated")
	}
	s, err := schema.Decode(data[schemaStart:schemaEnd])
	if err != nil {
		return nil, 0, 0, err
	}
	return s, recordCount, blockCount, nil
}

// RecordCount returns the table's current record count.
func (m *Manager) RecordCount() uint32 { return m.recordCount }

// BlockCount returns the table's current block count.
func (m *Manager) BlockCount() uint16 { return m.blockCount }

// HeaderLen returns the byte length of the table header in block 0,
// including its trailing sentinel. Index-building passes need this to
// skip the header when computing byte offsets of records in block 0.
func (m *Manager) HeaderLen() uint32 { return headerLen(m.Schema) }

// ReadRawBlock fetches block n through the shared page cache, for
// callers (the hash index builder) that need direct access to block
// bytes rather than decoded records.
func (m *Manager) ReadRawBlock(n uint32) (*block.Block, error) {
	return m.getBlock(n)
}

func (m *Manager) getBlock(n uint32) (*block.Block, error) {
	if b, ok := m.cache.Get(m.Name, n); ok {
		return b, nil
	}
	b, err := block.ReadBlock(m.file, n)
	if err != nil {
		return nil, err
	}
	m.cache.Set(m.Name, n, b)
	return b, nil
}

func (m *Manager) putBlock(n uint32, b *block.Block) error {
	if err := b.WriteBlock(m.file, n); err != nil {
		return err
	}
	m.cache.Set(m.Name, n, b)
	return nil
}

// rewriteHeader re-encodes and writes block 0's header. When preserveTail
// is true, any records already packed into block 0 after the old header
// are copied forward — the case for Append's incremental header refresh,
// where block 0's existing content is still valid. rewriteAll rewrites
// the whole file from scratch and passes false: block 0 has nothing
// worth preserving, since every surviving record is about to be
// re-appended from an empty table.
func (m *Manager) rewriteHeader(preserveTail bool) error {
	header := encodeHeader(m.Schema, m.recordCount)
	binary.LittleEndian.PutUint16(header[12:14], m.blockCount)

	fresh := block.New(0)
	if err := fresh.AddRecord(header); err != nil {
		return errors.Wrap(err, "table: table header grew past block 0 capacity")
	}

	if preserveTail {
		b0, err := m.getBlock(0)
		if err != nil {
			return err
		}
		oldHeaderLen := headerLen(m.Schema)
		if oldHeaderLen < b0.FreeSpaceOffset {
			tail := b0.DataAt(oldHeaderLen)[:b0.FreeSpaceOffset-oldHeaderLen]
			if err := fresh.AddRecord(tail); err != nil {
				return err
			}
		}
	}
	return m.putBlock(0, fresh)
}

// Append serializes and appends each record's values to the table,
// rolling onto a new block on overflow.
func (m *Manager) Append(records [][]types.Value) error {
	if len(records) == 0 {
		return nil
	}
	lastIdx := uint32(m.blockCount - 1)
	current, err := m.getBlock(lastIdx)
	if err != nil {
		return err
	}

	for _, values := range records {
		encoded, err := record.Serialize(m.Schema, values)
		if err != nil {
			return err
		}
		if err := current.AddRecord(encoded); err != nil {
			if !errors.Is(err, block.ErrPageFull) {
				return err
			}
			if err := m.putBlock(lastIdx, current); err != nil {
				return err
			}
			lastIdx++
			m.blockCount++
			current = block.New(lastIdx)
			if err := current.AddRecord(encoded); err != nil {
				return err
			}
		}
	}
	if err := m.putBlock(lastIdx, current); err != nil {
		return err
	}
	m.recordCount += uint32(len(records))
	return m.rewriteHeader(true)
}

// Scan returns every record in block order.
func (m *Manager) Scan() ([][]types.Value, error) {
	var out [][]types.Value
	for n := uint32(0); n < uint32(m.blockCount); n++ {
		b, err := m.getBlock(n)
		if err != nil {
			return nil, err
		}
		start := uint32(0)
		if n == 0 {
			start = headerLen(m.Schema)
		}
		offset := start
		for offset < b.FreeSpaceOffset {
			values, consumed, err := record.Deserialize(m.Schema, b.DataAt(offset))
			if err != nil {
				return nil, err
			}
			out = append(out, values)
			offset += uint32(consumed)
		}
	}
	return out, nil
}

// Delete performs a single-pass compacting rewrite, keeping only records
// for which condition evaluates false (or keeping all records when
// condition is nil, matching a no-op delete pass). It returns the number
// of records removed.
func (m *Manager) Delete(cond *eval.Condition) (int, error) {
	records, err := m.Scan()
	if err != nil {
		return 0, err
	}

	var survivors [][]types.Value
	deleted := 0
	for _, values := range records {
		match := false
		if cond != nil {
			match, err = cond.Evaluate(contextFor(m.Schema, values))
			if err != nil {
				return 0, err
			}
		}
		if match {
			deleted++
			continue
		}
		survivors = append(survivors, values)
	}
	if deleted == 0 {
		return 0, nil
	}

	if err := m.rewriteAll(survivors); err != nil {
		return 0, err
	}
	return deleted, nil
}

// Update re-evaluates assignment expressions against each record's column
// context and rewrites the file with the updated values. It returns the
// number of records touched.
func (m *Manager) Update(assignments map[string]string, cond *eval.Condition) (int, error) {
	records, err := m.Scan()
	if err != nil {
		return 0, err
	}

	affected := 0
	updated := make([][]types.Value, len(records))
	for i, values := range records {
		ctx := contextFor(m.Schema, values)
		match := true
		if cond != nil {
			match, err = cond.Evaluate(ctx)
			if err != nil {
				return 0, err
			}
		}
		if !match {
			updated[i] = values
			continue
		}
		affected++
		newValues := make([]types.Value, len(values))
		copy(newValues, values)
		for col, expr := range assignments {
			idx := m.Schema.IndexOf(col)
			if idx < 0 {
				return 0, errors.Newf("table: unknown column %q in update assignment", col)
			}
			result, err := eval.Evaluate(expr, ctx)
			if err != nil {
				return 0, err
			}
			newValues[idx] = coerce(m.Schema[idx].Dtype, result)
		}
		updated[i] = newValues
	}
	if affected == 0 {
		return 0, nil
	}

	if err := m.rewriteAll(updated); err != nil {
		return 0, err
	}
	return affected, nil
}

// rewriteAll truncates the table back to an empty block 0 and re-appends
// records, used by both Delete and Update. It invalidates the page cache
// before truncating so no stale pre-rewrite block can be read back
// through a cache hit.
func (m *Manager) rewriteAll(records [][]types.Value) error {
	m.cache.Invalidate(m.Name)
	m.recordCount = 0
	m.blockCount = 1
	if err := m.file.Truncate(block.Size); err != nil {
		return errors.Wrap(err, "table: truncate for rewrite")
	}
	if err := m.rewriteHeader(false); err != nil {
		return err
	}
	return m.Append(records)
}

func contextFor(s schema.Schema, values []types.Value) eval.Context {
	ctx := make(eval.Context, len(s))
	for i, attr := range s {
		ctx[attr.Name] = valueToEval(values[i])
	}
	return ctx
}

func valueToEval(v types.Value) interface{} {
	switch v.Kind() {
	case types.KindInt:
		return float64(v.Int())
	case types.KindFloat:
		return float64(v.Float())
	default:
		return v.Text()
	}
}

func coerce(dtype types.Kind, v interface{}) types.Value {
	switch dtype {
	case types.KindInt:
		if f, ok := v.(float64); ok {
			return types.NewInt(int32(f))
		}
	case types.KindFloat:
		if f, ok := v.(float64); ok {
			return types.NewFloat(float32(f))
		}
	case types.KindChar:
		if s, ok := v.(string); ok {
			return types.NewChar(s)
		}
	case types.KindVarchar:
		if s, ok := v.(string); ok {
			return types.NewVarchar(s)
		}
	}
	return types.Value{}
}

// MaxRecordSize returns the worst-case encoded byte length of one record
// of this table's schema.
func (m *Manager) MaxRecordSize() int {
	return record.Size(m.Schema)
}

// UniqueAttrCount scans every record and returns, per attribute name, the
// number of distinct values observed in that column.
func (m *Manager) UniqueAttrCount() (map[string]uint32, error) {
	records, err := m.Scan()
	if err != nil {
		return nil, err
	}
	seen := make([]map[types.Value]struct{}, len(m.Schema))
	for i := range seen {
		seen[i] = make(map[types.Value]struct{})
	}
	for _, values := range records {
		for i, v := range values {
			seen[i][v] = struct{}{}
		}
	}
	out := make(map[string]uint32, len(m.Schema))
	for i, attr := range m.Schema {
		out[attr.Name] = uint32(len(seen[i]))
	}
	return out, nil
}

// Close releases the underlying file handle.
func (m *Manager) Close() error {
	return m.file.Close()
}

// Remove closes and unlinks the table's file on disk.
func (m *Manager) Remove() error {
	m.file.Close()
	return os.Remove(m.path)
}
