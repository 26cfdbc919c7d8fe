package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestKey_NamespacedAndStable(t *testing.T) {
	a := Key("reddit", "t3_abc")
	b := Key("reddit", "t3_abc")
	c := Key("twitter", "t3_abc")

	if a != b {
		t.Error("Expected stable keys")
	}
	if a == c {
		t.Error("Expected namespaces to separate keys")
	}
	if strings.ContainsAny(a, "/:") {
		t.Errorf("Expected filesystem-safe key, got %q", a)
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	val := []byte("abc")
	_ = c.Set("k", val, 0)
	val[0] = 'x'

	got, ok := c.Get("k")
	if !ok || string(got) != "abc" {
		t.Errorf("Expected stored copy, got %q", got)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key("reddit", "t3_a")
	if err := c.Set(key, []byte(`{"id":"t3_a"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != `{"id":"t3_a"}` {
		t.Fatalf("Expected hit, got %q", got)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
		t.Error("Expected expired entry removed from disk")
	}
}

func TestDiskCache_Prune(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(Key("n", "short"), []byte("1"), time.Minute)
	_ = c.Set(Key("n", "long"), []byte("2"), 24*time.Hour)

	now = now.Add(time.Hour)
	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", removed)
	}
	if _, ok := c.Get(Key("n", "long")); !ok {
		t.Error("Expected live entry kept")
	}
}

func TestDiskCache_DeleteMissing(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Delete(Key("n", "nothing")); err != nil {
		t.Errorf("Expected nil for missing entry, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	key := Key("twitter", "https://x.com/a/status/1")

	first := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := first.Set(key, []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A fresh process only has the disk layer
	second := NewLayeredCache(time.Minute, dir, time.Hour)
	got, ok := second.Get(key)
	if !ok || string(got) != "v" {
		t.Fatalf("Expected disk hit, got %q", got)
	}
	if _, ok := second.memory.Get(key); !ok {
		t.Error("Expected disk hit promoted to memory")
	}

	if err := second.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir)); !os.IsNotExist(err) {
		t.Error("Expected cache directory removed")
	}
}

func TestLayeredCache_MemoryOnly(t *testing.T) {
	c := NewLayeredCache(time.Minute, "", 0)
	_ = c.Set("k", []byte("v"), 0)
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Errorf("Expected memory hit, got %q", got)
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry deleted")
	}
}
