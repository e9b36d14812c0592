package localstore

import (
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "local_test.db")
	s, err := NewStore(dbPath, DriverPure)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_UnknownDriver(t *testing.T) {
	if _, err := NewStore(filepath.Join(t.TempDir(), "x.db"), "postgres"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	val, err := s.Get("emv_ai", "missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q, want empty string for missing key", val)
	}
}

func TestSetUpsert(t *testing.T) {
	s := testStore(t)

	if err := s.Set("emv_ai", "user_preferences", `{"units":"kW"}`); err != nil {
		t.Fatalf("Set(v1) error: %v", err)
	}
	if err := s.Set("emv_ai", "user_preferences", `{"units":"MW"}`); err != nil {
		t.Fatalf("Set(v2) error: %v", err)
	}

	val, err := s.Get("emv_ai", "user_preferences")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != `{"units":"MW"}` {
		t.Errorf("Get() = %q after upsert", val)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)

	if err := s.Set("ns", "key", "val"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Delete("ns", "key"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete("ns", "key"); err != nil {
		t.Fatalf("Delete() of missing key error: %v", err)
	}

	val, err := s.Get("ns", "key")
	if err != nil {
		t.Fatalf("Get() after delete error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q after delete, want empty", val)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	s := testStore(t)

	s.Set("a", "key", "from-a")
	s.Set("b", "key", "from-b")

	if v, _ := s.Get("a", "key"); v != "from-a" {
		t.Errorf("a/key = %q", v)
	}
	if v, _ := s.Get("b", "key"); v != "from-b" {
		t.Errorf("b/key = %q", v)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := NewStore(dbPath, DriverPure)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Bucket("emv_ai").Set("conversation_history", "[]"); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := NewStore(dbPath, DriverPure)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	v, err := s2.Bucket("emv_ai").Get("conversation_history")
	if err != nil {
		t.Fatal(err)
	}
	if v != "[]" {
		t.Errorf("reopened value = %q, want []", v)
	}
}

func TestMemoryBucket(t *testing.T) {
	var b Bucket = NewMemoryBucket()

	if v, err := b.Get("k"); err != nil || v != "" {
		t.Fatalf("Get(missing) = %q, %v", v, err)
	}
	b.Set("k", "v")
	if v, _ := b.Get("k"); v != "v" {
		t.Errorf("Get = %q, want v", v)
	}
	b.Delete("k")
	if v, _ := b.Get("k"); v != "" {
		t.Errorf("Get after Delete = %q", v)
	}
}
