package table

import (
	"path/filepath"
	"testing"

	"storedb/pkg/eval"
	"storedb/pkg/pagecache"
	"storedb/pkg/schema"
	"storedb/pkg/types"
)

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	id, _ := schema.NewAttribute("id", types.KindInt, 0)
	name, _ := schema.NewAttribute("name", types.KindVarchar, 20)
	s, err := schema.New([]schema.Attribute{id, name})
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func TestOpenOrCreateNewTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	cache := pagecache.New(8)

	m, err := OpenOrCreate("users", path, testSchema(t), cache)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer m.Close()

	if m.BlockCount() != 1 || m.RecordCount() != 0 {
		t.Errorf("fresh table: blockCount=%d recordCount=%d", m.BlockCount(), m.RecordCount())
	}
}

func TestOpenOrCreateMissingSchemaFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing_table.bin")
	cache := pagecache.New(8)

	if _, err := OpenOrCreate("missing", path, nil, cache); err == nil {
		t.Error("expected ErrNoSchema")
	}
}

func TestAppendAndScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	cache := pagecache.New(8)

	m, err := OpenOrCreate("users", path, testSchema(t), cache)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer m.Close()

	records := [][]types.Value{
		{types.NewInt(1), types.NewVarchar("alice")},
		{types.NewInt(2), types.NewVarchar("bob")},
	}
	if err := m.Append(records); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m.RecordCount() != 2 {
		t.Errorf("RecordCount: got %d, want 2", m.RecordCount())
	}

	scanned, err := m.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scanned) != 2 {
		t.Fatalf("Scan: got %d records, want 2", len(scanned))
	}
	if !scanned[1][1].Equal(types.NewVarchar("bob")) {
		t.Errorf("second record name: got %+v", scanned[1][1])
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	cache := pagecache.New(8)

	m, err := OpenOrCreate("users", path, testSchema(t), cache)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	if err := m.Append([][]types.Value{{types.NewInt(9), types.NewVarchar("zed")}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	m.Close()

	reopened, err := OpenOrCreate("users", path, nil, pagecache.New(8))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.RecordCount() != 1 {
		t.Errorf("reopened RecordCount: got %d, want 1", reopened.RecordCount())
	}
	scanned, err := reopened.Scan()
	if err != nil {
		t.Fatalf("Scan after reopen: %v", err)
	}
	if len(scanned) != 1 || !scanned[0][0].Equal(types.NewInt(9)) {
		t.Errorf("reopened scan mismatch: %+v", scanned)
	}
}

func TestDeleteCompacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	m, err := OpenOrCreate("users", path, testSchema(t), pagecache.New(8))
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer m.Close()

	m.Append([][]types.Value{
		{types.NewInt(1), types.NewVarchar("alice")},
		{types.NewInt(2), types.NewVarchar("bob")},
	})

	cond, _ := eval.NewCondition("id", "=", "1")
	deleted, err := m.Delete(&cond)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted: got %d, want 1", deleted)
	}
	if m.RecordCount() != 1 {
		t.Errorf("RecordCount after delete: got %d, want 1", m.RecordCount())
	}
	scanned, _ := m.Scan()
	if len(scanned) != 1 || !scanned[0][1].Equal(types.NewVarchar("bob")) {
		t.Errorf("survivor mismatch: %+v", scanned)
	}
}

func TestDeleteIsIdempotentOnSurvivingRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	m, err := OpenOrCreate("users", path, testSchema(t), pagecache.New(8))
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer m.Close()
	m.Append([][]types.Value{{types.NewInt(1), types.NewVarchar("alice")}})

	cond, _ := eval.NewCondition("id", "=", "1")
	m.Delete(&cond)
	second, err := m.Delete(&cond)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if second != 0 {
		t.Errorf("second delete affected %d rows, want 0", second)
	}
}

func TestUpdateAppliesExpression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	m, err := OpenOrCreate("users", path, testSchema(t), pagecache.New(8))
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer m.Close()
	m.Append([][]types.Value{{types.NewInt(1), types.NewVarchar("alice")}})

	cond, _ := eval.NewCondition("id", "=", "1")
	affected, err := m.Update(map[string]string{"id": "id + 1"}, &cond)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected: got %d, want 1", affected)
	}
	scanned, _ := m.Scan()
	if !scanned[0][0].Equal(types.NewInt(2)) {
		t.Errorf("updated id: got %+v, want 2", scanned[0][0])
	}
}

func TestMaxRecordSize(t *testing.T) {
	m := &Manager{Schema: testSchema(t)}
	// id (int, 4) + name (varchar, 20) + framing (3) + varchar length prefix (2)
	want := 3 + 4 + 2 + 20
	if got := m.MaxRecordSize(); got != want {
		t.Errorf("MaxRecordSize: got %d, want %d", got, want)
	}
}

func TestUniqueAttrCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users_table.bin")
	m, err := OpenOrCreate("users", path, testSchema(t), pagecache.New(8))
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer m.Close()
	m.Append([][]types.Value{
		{types.NewInt(1), types.NewVarchar("alice")},
		{types.NewInt(2), types.NewVarchar("alice")},
	})

	counts, err := m.UniqueAttrCount()
	if err != nil {
		t.Fatalf("UniqueAttrCount: %v", err)
	}
	if counts["id"] != 2 {
		t.Errorf("id unique count: got %d, want 2", counts["id"])
	}
	if counts["name"] != 1 {
		t.Errorf("name unique count: got %d, want 1", counts["name"])
	}
}
