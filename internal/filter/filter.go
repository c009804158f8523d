// Package filter decides which entity kinds are shown to the user.
package filter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// Policy reports whether entities of a kind should be shown. Unknown kinds
// are shown unless the policy says otherwise.
type Policy interface {
	IsEnabled(kind int) bool
}

// Refresher is implemented by policies backed by an external store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Static is an in-memory policy safe for concurrent use.
type Static struct {
	mu    sync.RWMutex
	def   bool
	kinds map[int]bool
}

func NewStatic(def bool) *Static {
	return &Static{def: def, kinds: make(map[int]bool)}
}

// AllowAll shows every kind.
func AllowAll() *Static { return NewStatic(true) }

func (s *Static) IsEnabled(kind int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.kinds[kind]; ok {
		return v
	}
	return s.def
}

// Default is the flag applied to kinds without an explicit entry.
func (s *Static) Default() bool { return s.def }

func (s *Static) Set(kind int, show bool) {
	s.mu.Lock()
	s.kinds[kind] = show
	s.mu.Unlock()
}

type fileConfig struct {
	Default *bool `toml:"default"`
	Hidden  []int `toml:"hidden"`
	Shown   []int `toml:"shown"`
}

// LoadFile reads a TOML policy:
//
//	default = true
//	hidden  = [16, 19]
//	shown   = [1]
//
// A missing file yields AllowAll. shown wins over hidden for the same kind.
func LoadFile(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return AllowAll(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read filter file %s: %w", path, err)
	}
	var fc fileConfig
	if _, err := toml.Decode(string(b), &fc); err != nil {
		return nil, fmt.Errorf("parse filter file %s: %w", path, err)
	}
	def := true
	if fc.Default != nil {
		def = *fc.Default
	}
	s := NewStatic(def)
	for _, k := range fc.Hidden {
		s.Set(k, false)
	}
	for _, k := range fc.Shown {
		s.Set(k, true)
	}
	return s, nil
}
