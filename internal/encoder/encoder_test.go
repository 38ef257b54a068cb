package encoder

import (
	"sync"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(map[string][]string{
		CategoryProductType: {"clothing", "healthcare", "retail", "subscription", "widgets"},
		CategoryEmailDomain: {"gmail.com", "hotmail.com", "unknown", "yahoo.com"},
		CategoryDeviceInfo:  {"MacOS", "Windows", "iOS Device"},
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return reg
}

func TestEncodeKnownValues(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		category string
		value    string
		want     int
	}{
		{CategoryProductType, "clothing", 0},
		{CategoryProductType, "widgets", 4},
		{CategoryEmailDomain, "unknown", 2},
		{CategoryEmailDomain, "yahoo.com", 3},
		{CategoryDeviceInfo, "Windows", 1},
	}

	for _, tt := range tests {
		if got := reg.Encode(tt.category, tt.value); got != tt.want {
			t.Errorf("Encode(%s, %q) = %d, want %d", tt.category, tt.value, got, tt.want)
		}
	}
}

func TestEncodeUnseenValueReturnsSentinel(t *testing.T) {
	reg := newTestRegistry(t)

	if got := reg.Encode(CategoryEmailDomain, "never-seen.example"); got != Sentinel {
		t.Errorf("expected sentinel %d, got %d", Sentinel, got)
	}
	if got := reg.Encode(CategoryProductType, ""); got != Sentinel {
		t.Errorf("expected sentinel for empty value, got %d", got)
	}
	if got := reg.Encode("no_such_category", "gmail.com"); got != Sentinel {
		t.Errorf("expected sentinel for unknown category, got %d", got)
	}
	if reg.Known(CategoryEmailDomain, "never-seen.example") {
		t.Error("unseen value reported as known")
	}
}

func TestEncodeIsCaseSensitive(t *testing.T) {
	reg := newTestRegistry(t)

	if got := reg.Encode(CategoryDeviceInfo, "windows"); got != Sentinel {
		t.Errorf("expected sentinel for differently cased value, got %d", got)
	}
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	if got := reg.Encode(CategoryEmailDomain, "gmail.com"); got != Sentinel {
		t.Errorf("nil registry should return sentinel, got %d", got)
	}
}

func TestDuplicateClassRejected(t *testing.T) {
	_, err := NewRegistry(map[string][]string{
		CategoryEmailDomain: {"gmail.com", "gmail.com"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate class")
	}
}

func TestCategoriesAndSize(t *testing.T) {
	reg := newTestRegistry(t)

	cats := reg.Categories()
	if len(cats) != 3 || cats[0] != CategoryDeviceInfo {
		t.Errorf("unexpected categories: %v", cats)
	}
	if reg.Size(CategoryEmailDomain) != 4 {
		t.Errorf("expected 4 email classes, got %d", reg.Size(CategoryEmailDomain))
	}
}

func TestConcurrentEncode(t *testing.T) {
	reg := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if reg.Encode(CategoryEmailDomain, "gmail.com") != 0 {
					t.Error("unexpected code under concurrency")
					return
				}
			}
		}()
	}
	wg.Wait()
}
