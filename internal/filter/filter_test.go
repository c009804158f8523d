package filter

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestStatic_DefaultsAndOverrides(t *testing.T) {
	s := AllowAll()
	if !s.IsEnabled(42) {
		t.Fatalf("unknown kind must default to shown")
	}
	s.Set(42, false)
	if s.IsEnabled(42) {
		t.Fatalf("kind 42 must be hidden after Set")
	}

	deny := NewStatic(false)
	deny.Set(1, true)
	if deny.IsEnabled(2) || !deny.IsEnabled(1) {
		t.Fatalf("deny-by-default policy wrong")
	}
}

func TestStatic_ConcurrentAccess(t *testing.T) {
	s := AllowAll()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(k int) { defer wg.Done(); s.Set(k, k%2 == 0) }(i)
		go func(k int) { defer wg.Done(); _ = s.IsEnabled(k) }(i)
	}
	wg.Wait()
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "filter.toml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadFile_MissingIsAllowAll(t *testing.T) {
	s, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !s.IsEnabled(1) {
		t.Fatalf("missing file must allow all")
	}
}

func TestLoadFile_HiddenAndShown(t *testing.T) {
	p := writeFile(t, `
default = false
hidden = [16, 19]
shown = [1, 19]
`)
	s, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.IsEnabled(16) || s.IsEnabled(99) {
		t.Fatalf("hidden/default kinds must be off")
	}
	if !s.IsEnabled(1) || !s.IsEnabled(19) {
		t.Fatalf("shown kinds must be on (shown wins)")
	}
}

func TestLoadFile_DefaultTrueWhenOmitted(t *testing.T) {
	s, err := LoadFile(writeFile(t, "hidden = [3]\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !s.IsEnabled(4) || s.IsEnabled(3) {
		t.Fatalf("default must be true when omitted")
	}
}

func TestLoadFile_BadTOML(t *testing.T) {
	if _, err := LoadFile(writeFile(t, "hidden = [")); err == nil {
		t.Fatalf("expected parse error")
	}
}
