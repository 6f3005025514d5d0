// pkg/storagemgr/storagemgr.go
//
// Package storagemgr is the top-level storage manager: table lifecycle
// backed by an information_schema catalog, projection/selection reads,
// equi-joins across tables, and hash index build/lookup. It is the public
// surface a query frontend calls into.
package storagemgr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"storedb/pkg/block"
	"storedb/pkg/eval"
	"storedb/pkg/hashindex"
	"storedb/pkg/pagecache"
	"storedb/pkg/record"
	"storedb/pkg/schema"
	"storedb/pkg/table"
	"storedb/pkg/types"
)

const catalogTableName = "information_schema"

var (
	// ErrTableExists is returned by CreateTable for a name already in use.
	ErrTableExists = errors.New("storagemgr: table already exists")

	// ErrTableNotFound is returned when an operation names an unknown table.
	ErrTableNotFound = errors.New("storagemgr: table not found")

	// ErrUnknownColumn is returned when a projection or index names a
	// column absent from its table's schema.
	ErrUnknownColumn = errors.New("storagemgr: unknown column")

	// ErrBadJoinOrder is returned when the number of join attribute pairs
	// is not one less than the number of tables, when a join attribute is
	// not in dotted "table.attr" form, or when a pair does not have exactly
	// one side among the tables already joined.
	ErrBadJoinOrder = errors.New("storagemgr: join attribute order is unsatisfiable")

	// ErrIndexNotFound is returned by GetIndex when no index file exists
	// for the requested (table, column).
	ErrIndexNotFound = errors.New("storagemgr: index not found")
)

// Stats summarizes one table for get_stats: n_r (record count), b_r
// (block count), l_r (max record size), f_r (blocking factor), and v_a_r
// (unique value count per attribute).
type Stats struct {
	RecordCount      uint32
	BlockCount       uint16
	MaxRecordSize    int
	BlockingFactor   uint32
	UniqueAttrCounts map[string]uint32
}

// Manager owns every open table beneath basePath plus the shared page
// cache collaborator (section 6.2).
type Manager struct {
	basePath string
	cache    *pagecache.Cache
	tables   map[string]*table.Manager
}

// Open opens (creating if absent) the storage directory at basePath,
// including its information_schema catalog, and reloads every table
// already listed in the catalog.
func Open(basePath string) (*Manager, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.Wrapf(err, "storagemgr: mkdir %s", basePath)
	}

	m := &Manager{
		basePath: basePath,
		cache:    pagecache.New(pagecache.DefaultCapacity),
		tables:   make(map[string]*table.Manager),
	}

	catalogSchema := mustSchema(schema.NewAttribute("table_name", types.KindVarchar, 50))
	catalog, err := table.OpenOrCreate(catalogTableName, m.tablePath(catalogTableName), catalogSchema, m.cache)
	if err != nil {
		return nil, err
	}
	m.tables[catalogTableName] = catalog

	names, err := catalog.Scan()
	if err != nil {
		return nil, err
	}
	for _, row := range names {
		name := row[0].Text()
		if _, ok := m.tables[name]; ok {
			continue
		}
		tm, err := table.OpenOrCreate(name, m.tablePath(name), nil, m.cache)
		if err != nil {
			return nil, err
		}
		m.tables[name] = tm
	}
	return m, nil
}

func mustSchema(a schema.Attribute, err error) schema.Schema {
	if err != nil {
		panic(err)
	}
	s, err := schema.New([]schema.Attribute{a})
	if err != nil {
		panic(err)
	}
	return s
}

func (m *Manager) tablePath(name string) string {
	return filepath.Join(m.basePath, name+"_table.bin")
}

func (m *Manager) indexPath(tableName, column string) string {
	return filepath.Join(m.basePath, fmt.Sprintf("%s-%s-hash.bin", tableName, column))
}

// CreateTable creates a new table file and registers it in the catalog.
func (m *Manager) CreateTable(name string, s schema.Schema) error {
	if _, ok := m.tables[name]; ok {
		return errors.Wrapf(ErrTableExists, "table %q", name)
	}
	tm, err := table.OpenOrCreate(name, m.tablePath(name), s, m.cache)
	if err != nil {
		return err
	}
	m.tables[name] = tm

	catalog := m.tables[catalogTableName]
	return catalog.Append([][]types.Value{{types.NewVarchar(name)}})
}

// ListTables returns every user table name registered in the catalog.
func (m *Manager) ListTables() ([]string, error) {
	catalog := m.tables[catalogTableName]
	rows, err := catalog.Scan()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row[0].Text()
	}
	return names, nil
}

// GetTableData scans name, optionally filters by cond, and optionally
// projects onto a subset of columns in the requested order.
func (m *Manager) GetTableData(name string, cond *eval.Condition, projection []string) ([][]types.Value, error) {
	tm, ok := m.tables[name]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "table %q", name)
	}
	rows, err := tm.Scan()
	if err != nil {
		return nil, err
	}

	if cond != nil && name != catalogTableName {
		filtered := rows[:0:0]
		for _, row := range rows {
			ok, err := cond.Evaluate(rowContext(tm.Schema, row))
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	if len(projection) == 0 {
		return rows, nil
	}

	idxs := make([]int, len(projection))
	for i, col := range projection {
		idx := tm.Schema.IndexOf(col)
		if idx < 0 {
			return nil, errors.Wrapf(ErrUnknownColumn, "column %q in table %q", col, name)
		}
		idxs[i] = idx
	}
	projected := make([][]types.Value, len(rows))
	for i, row := range rows {
		out := make([]types.Value, len(idxs))
		for j, idx := range idxs {
			out[j] = row[idx]
		}
		projected[i] = out
	}
	return projected, nil
}

func rowContext(s schema.Schema, row []types.Value) eval.Context {
	ctx := make(eval.Context, len(s))
	for i, attr := range s {
		ctx[attr.Name] = valueToEval(row[i])
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

// joinedRow pairs a combined tuple with the set of dotted column names it
// carries, used while walking join attributes.
type joinedRow struct {
	values  []types.Value
	columns []string
}

// GetJoinedTable equi-joins tables via join attrs of the dotted form
// "t.a","u.b", applying per-table conditions before the join and an
// optional global condition after. It returns the combined rows and
// column names (the requested projection, or every "table.attr" name).
func (m *Manager) GetJoinedTable(
	tableNames []string,
	joinAttrs [][2]string,
	perTableConditions map[string]*eval.Condition,
	globalCondition *eval.Condition,
	projection []string,
) ([][]types.Value, []string, error) {
	if len(joinAttrs) != len(tableNames)-1 {
		return nil, nil, errors.Wrapf(ErrBadJoinOrder, "expected %d join attrs for %d tables, got %d", len(tableNames)-1, len(tableNames), len(joinAttrs))
	}

	processed := map[string][]joinedRow{}
	for _, name := range tableNames {
		rows, err := m.GetTableData(name, perTableConditions[name], nil)
		if err != nil {
			return nil, nil, err
		}
		tm := m.tables[name]
		joined := make([]joinedRow, len(rows))
		for i, row := range rows {
			cols := make([]string, len(tm.Schema))
			for j, attr := range tm.Schema {
				cols[j] = name + "." + attr.Name
			}
			joined[i] = joinedRow{values: row, columns: cols}
		}
		processed[name] = joined
	}

	combinedTable := tableNames[0]
	combined := processed[combinedTable]
	combinedSet := map[string]bool{combinedTable: true}
	var columnNames []string
	for _, attr := range m.tables[combinedTable].Schema {
		columnNames = append(columnNames, combinedTable+"."+attr.Name)
	}

	for _, pair := range joinAttrs {
		leftTable, leftCol, err := splitDotted(pair[0])
		if err != nil {
			return nil, nil, err
		}
		rightTable, rightCol, err := splitDotted(pair[1])
		if err != nil {
			return nil, nil, err
		}

		var processedTable, otherTable, processedCol, otherCol string
		switch {
		case combinedSet[leftTable] && !combinedSet[rightTable]:
			processedTable, otherTable, processedCol, otherCol = leftTable, rightTable, leftCol, rightCol
		case combinedSet[rightTable] && !combinedSet[leftTable]:
			processedTable, otherTable, processedCol, otherCol = rightTable, leftTable, rightCol, leftCol
		default:
			return nil, nil, errors.Wrapf(ErrBadJoinOrder, "join attr %q/%q must have exactly one already-joined side", pair[0], pair[1])
		}

		otherRows, ok := processed[otherTable]
		if !ok {
			return nil, nil, errors.Wrapf(ErrTableNotFound, "table %q", otherTable)
		}
		for _, attr := range m.tables[otherTable].Schema {
			columnNames = append(columnNames, otherTable+"."+attr.Name)
		}

		var next []joinedRow
		for _, left := range combined {
			leftVal := valueAt(left, processedTable, processedCol)
			for _, right := range otherRows {
				rightVal := valueAt(right, otherTable, otherCol)
				if leftVal.Equal(rightVal) {
					values := append(append([]types.Value{}, left.values...), right.values...)
					cols := append(append([]string{}, left.columns...), right.columns...)
					next = append(next, joinedRow{values: values, columns: cols})
				}
			}
		}
		combined = next
		combinedSet[otherTable] = true
	}

	if globalCondition != nil {
		filtered := combined[:0:0]
		for _, row := range combined {
			ctx := make(eval.Context, len(row.columns))
			for i, col := range row.columns {
				ctx[col] = valueToEval(row.values[i])
			}
			ok, err := globalCondition.Evaluate(ctx)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				filtered = append(filtered, row)
			}
		}
		combined = filtered
	}

	rows := make([][]types.Value, len(combined))
	for i, row := range combined {
		rows[i] = row.values
	}

	if len(projection) == 0 {
		return rows, columnNames, nil
	}

	idxs := make([]int, len(projection))
	for i, col := range projection {
		idx := -1
		for j, name := range columnNames {
			if name == col {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, nil, errors.Wrapf(ErrUnknownColumn, "column %q", col)
		}
		idxs[i] = idx
	}
	projected := make([][]types.Value, len(rows))
	for i, row := range rows {
		out := make([]types.Value, len(idxs))
		for j, idx := range idxs {
			out[j] = row[idx]
		}
		projected[i] = out
	}
	return projected, projection, nil
}

func splitDotted(name string) (string, string, error) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "", "", errors.Wrapf(ErrBadJoinOrder, "expected dotted column name, got %q", name)
	}
	return parts[0], parts[1], nil
}

func valueAt(row joinedRow, table, col string) types.Value {
	target := table + "." + col
	for i, name := range row.columns {
		if name == target {
			return row.values[i]
		}
	}
	return types.Value{}
}

// InsertIntoTable appends values and rebuilds any existing indexes on the
// table's columns.
func (m *Manager) InsertIntoTable(name string, records [][]types.Value) (int, error) {
	tm, ok := m.tables[name]
	if !ok {
		return 0, errors.Wrapf(ErrTableNotFound, "table %q", name)
	}
	if err := tm.Append(records); err != nil {
		return 0, err
	}
	if err := m.updateIndexes(name); err != nil {
		return 0, err
	}
	return len(records), nil
}

// DeleteTable removes the table's index files, its catalog row, the
// in-memory manager, and its file on disk.
func (m *Manager) DeleteTable(name string) error {
	tm, ok := m.tables[name]
	if !ok {
		return errors.Wrapf(ErrTableNotFound, "table %q", name)
	}
	for _, attr := range tm.Schema {
		os.Remove(m.indexPath(name, attr.Name))
	}

	catalog := m.tables[catalogTableName]
	cond, err := eval.NewCondition("table_name", "=", "'"+name+"'")
	if err != nil {
		return err
	}
	if _, err := catalog.Delete(&cond); err != nil {
		return err
	}

	delete(m.tables, name)
	m.cache.Invalidate(name)
	return tm.Remove()
}

// DeleteTableRecord deletes matching records from name and rebuilds its
// indexes.
func (m *Manager) DeleteTableRecord(name string, cond *eval.Condition) (int, error) {
	tm, ok := m.tables[name]
	if !ok {
		return 0, errors.Wrapf(ErrTableNotFound, "table %q", name)
	}
	affected, err := tm.Delete(cond)
	if err != nil {
		return 0, err
	}
	if err := m.updateIndexes(name); err != nil {
		return 0, err
	}
	return affected, nil
}

// UpdateTable applies assignments to matching records and rebuilds any
// existing indexes afterward, same as insert and delete.
func (m *Manager) UpdateTable(name string, assignments map[string]string, cond *eval.Condition) (int, error) {
	tm, ok := m.tables[name]
	if !ok {
		return 0, errors.Wrapf(ErrTableNotFound, "table %q", name)
	}
	affected, err := tm.Update(assignments, cond)
	if err != nil {
		return 0, err
	}
	if err := m.updateIndexes(name); err != nil {
		return 0, err
	}
	return affected, nil
}

// GetStats computes per-table statistics for every non-catalog table.
func (m *Manager) GetStats() (map[string]Stats, error) {
	out := make(map[string]Stats)
	for name, tm := range m.tables {
		if name == catalogTableName {
			continue
		}
		uniq, err := tm.UniqueAttrCount()
		if err != nil {
			return nil, err
		}
		nr := tm.RecordCount()
		br := tm.BlockCount()
		blockingFactor := uint32(0)
		if br > 0 {
			blockingFactor = (nr + uint32(br) - 1) / uint32(br)
		}
		out[name] = Stats{
			RecordCount:      nr,
			BlockCount:       br,
			MaxRecordSize:    tm.MaxRecordSize(),
			BlockingFactor:   blockingFactor,
			UniqueAttrCounts: uniq,
		}
	}
	return out, nil
}

// SetIndex builds a hash index over column and persists it to disk.
func (m *Manager) SetIndex(tableName, column string) error {
	tm, ok := m.tables[tableName]
	if !ok {
		return errors.Wrapf(ErrTableNotFound, "table %q", tableName)
	}
	colIdx := tm.Schema.IndexOf(column)
	if colIdx < 0 {
		return errors.Wrapf(ErrUnknownColumn, "column %q in table %q", column, tableName)
	}
	return m.buildIndex(tm, column, colIdx)
}

func (m *Manager) buildIndex(tm *table.Manager, column string, colIdx int) error {
	idx := hashindex.New()

	for n := uint32(0); n < uint32(tm.BlockCount()); n++ {
		b, err := readTableBlock(tm, n)
		if err != nil {
			return err
		}
		start := uint32(0)
		if n == 0 {
			start = headerSkip(tm)
		}
		offset := start
		for offset < b.FreeSpaceOffset {
			values, consumed, err := record.Deserialize(tm.Schema, b.DataAt(offset))
			if err != nil {
				return err
			}
			key, err := hashindex.Key(values[colIdx])
			if err != nil {
				return err
			}
			idx.Add(key, hashindex.Position{Block: n, Offset: offset})
			offset += uint32(consumed)
		}
	}
	return idx.Save(m.indexPath(tm.Name, column))
}

// GetIndex loads the persisted index for (table, column), if any, looks up
// value's candidates, and filters out hash collisions by re-reading each
// candidate record and comparing its actual column value.
func (m *Manager) GetIndex(tableName, column string, value types.Value) ([][]types.Value, error) {
	tm, ok := m.tables[tableName]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "table %q", tableName)
	}
	colIdx := tm.Schema.IndexOf(column)
	if colIdx < 0 {
		return nil, errors.Wrapf(ErrUnknownColumn, "column %q in table %q", column, tableName)
	}

	path := m.indexPath(tableName, column)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrIndexNotFound, "table %q column %q", tableName, column)
	}
	idx, err := hashindex.Load(path)
	if err != nil {
		return nil, err
	}
	key, err := hashindex.Key(value)
	if err != nil {
		return nil, err
	}

	var out [][]types.Value
	for _, pos := range idx.Find(key) {
		b, err := readTableBlock(tm, pos.Block)
		if err != nil {
			return nil, err
		}
		values, _, err := record.Deserialize(tm.Schema, b.DataAt(pos.Offset))
		if err != nil {
			return nil, err
		}
		if values[colIdx].Equal(value) {
			out = append(out, values)
		}
	}
	return out, nil
}

// updateIndexes rebuilds every index file that already exists for table's
// columns, used after insert/delete/update.
func (m *Manager) updateIndexes(tableName string) error {
	tm, ok := m.tables[tableName]
	if !ok {
		return nil
	}
	for i, attr := range tm.Schema {
		path := m.indexPath(tableName, attr.Name)
		if _, err := os.Stat(path); err == nil {
			if err := m.buildIndex(tm, attr.Name, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// readTableBlock fetches one block of tm through its cache, for
// index-building passes that need raw byte offsets rather than decoded
// records.
func readTableBlock(tm *table.Manager, n uint32) (*block.Block, error) {
	return tm.ReadRawBlock(n)
}

func headerSkip(tm *table.Manager) uint32 {
	return tm.HeaderLen()
}
