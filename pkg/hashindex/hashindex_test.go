package hashindex

import (
	"path/filepath"
	"testing"

	"storedb/pkg/types"
)

func TestKeyIsDeterministic(t *testing.T) {
	k1, err := Key(types.NewInt(42))
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := Key(types.NewInt(42))
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if k1 != k2 {
		t.Errorf("same value produced different keys: %d vs %d", k1, k2)
	}
}

func TestKeyDiffersAcrossValues(t *testing.T) {
	k1, _ := Key(types.NewVarchar("alice"))
	k2, _ := Key(types.NewVarchar("bob"))
	if k1 == k2 {
		t.Error("expected different varchar values to hash to different keys (barring collision)")
	}
}

func TestAddFindRemove(t *testing.T) {
	idx := New()
	k, _ := Key(types.NewInt(7))
	pos := Position{Block: 2, Offset: 40}
	idx.Add(k, pos)

	found := idx.Find(k)
	if len(found) != 1 || found[0] != pos {
		t.Fatalf("Find: got %v, want [%v]", found, pos)
	}

	idx.Remove(k, pos)
	if len(idx.Find(k)) != 0 {
		t.Error("expected bucket to be empty after Remove")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users-id-hash.bin")

	idx := New()
	k1, _ := Key(types.NewInt(1))
	k2, _ := Key(types.NewInt(2))
	idx.Add(k1, Position{Block: 0, Offset: 3})
	idx.Add(k2, Position{Block: 1, Offset: 9})

	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Find(k1)) != 1 || len(loaded.Find(k2)) != 1 {
		t.Errorf("loaded index missing entries: %+v", loaded.buckets)
	}
}

func TestLoadMissingFileReturnsEmptyIndex(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(idx.buckets) != 0 {
		t.Error("expected empty index for missing file")
	}
}
