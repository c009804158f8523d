// Package locations defines the location update events that move the scan center.
package locations

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

type Event struct {
	Version int       `json:"version"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Center() model.Coordinate {
	return model.Coordinate{Lat: e.Lat, Lon: e.Lon}
}

// SourceKey groups events for ordering; events without a source share one key.
func (e Event) SourceKey() string {
	if s := strings.TrimSpace(e.Source); s != "" {
		return s
	}
	return "_"
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if !e.Center().Valid() {
		return fmt.Errorf("lat/lon out of range: %s", e.Center())
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}
