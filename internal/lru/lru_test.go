package lru

import (
	"errors"
	"testing"
)

func sizeOfLen(s string) int64 { return int64(len(s)) }

func TestCacheBasic(t *testing.T) {
	cache := New[string, string](1024, sizeOfLen)

	if cache.Stats().Entries != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Stats().Entries)
	}

	loadCount := 0
	v, err := cache.Get("a", func() (string, error) {
		loadCount++
		return "alpha", nil
	})
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if v != "alpha" || loadCount != 1 {
		t.Errorf("Get = %q after %d loads", v, loadCount)
	}

	v, err = cache.Get("a", func() (string, error) {
		loadCount++
		return "other", nil
	})
	if err != nil {
		t.Fatalf("Failed to get cached value: %v", err)
	}
	if v != "alpha" {
		t.Errorf("Expected cached value 'alpha', got %q", v)
	}
	if loadCount != 1 {
		t.Errorf("Expected loader not called for cache hit, called %d times", loadCount)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestCacheEviction(t *testing.T) {
	cache := New[string, string](10, sizeOfLen)

	var evicted []string
	cache.OnEvict(func(k, _ string) { evicted = append(evicted, k) })

	for _, k := range []string{"a", "b", "c", "d"} {
		if err := cache.Add(k, "xxxx"); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}

	stats := cache.Stats()
	if stats.UsedSize > stats.MaxSize {
		t.Errorf("Cache exceeded max size: %d > %d", stats.UsedSize, stats.MaxSize)
	}
	if len(evicted) != 2 || evicted[0] != "a" || evicted[1] != "b" {
		t.Errorf("evicted %v, want [a b]", evicted)
	}
	if _, ok := cache.Peek("d"); !ok {
		t.Error("most recent entry was evicted")
	}
}

func TestCacheRecencyProtects(t *testing.T) {
	cache := New[string, string](8, sizeOfLen)
	cache.Add("a", "1234")
	cache.Add("b", "1234")
	cache.Peek("a")
	cache.Add("c", "1234")

	if _, ok := cache.Peek("a"); !ok {
		t.Error("recently used entry evicted")
	}
	if _, ok := cache.Peek("b"); ok {
		t.Error("least recently used entry survived")
	}
}

func TestCacheTooLarge(t *testing.T) {
	cache := New[string, string](4, sizeOfLen)
	if err := cache.Add("big", "123456"); err == nil {
		t.Error("expected error for oversized entry")
	}

	v, err := cache.Get("big", func() (string, error) { return "123456", nil })
	if err != nil || v != "123456" {
		t.Errorf("Get of oversized value = %q, %v", v, err)
	}
	if cache.Len() != 0 {
		t.Error("oversized value was cached")
	}
}

func TestCacheLoaderError(t *testing.T) {
	cache := New[int, string](0, nil)
	boom := errors.New("boom")

	_, err := cache.Get(1, func() (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap loader error", err)
	}
	if cache.Len() != 0 {
		t.Error("failed load was cached")
	}
}

func TestCacheClearAndRemove(t *testing.T) {
	cache := New[string, string](1024, sizeOfLen)
	for _, k := range []string{"a", "b", "c"} {
		cache.Add(k, k)
	}

	cache.Remove("b")
	if cache.Len() != 2 {
		t.Errorf("Expected 2 entries after remove, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Stats().Entries != 0 || cache.Stats().UsedSize != 0 {
		t.Errorf("Expected empty cache after clear, got %+v", cache.Stats())
	}
}
