// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// NoExpiry is the expiration sentinel reported for entities that never expire.
const NoExpiry int64 = -1

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String representation used in logs and error messages
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Valid reports whether both components are finite and inside the WGS84 range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// ScanPlan is the ordered list of coordinates one scan queries.
type ScanPlan []Coordinate

type Entity struct {
	Kind        int    `json:"kind"`
	InstanceID  string `json:"spawn_point_id"`
	Coordinate
	ExpiresAtMs int64 `json:"expires_at_ms"`
}

// UnmarshalJSON treats a missing expires_at_ms as NoExpiry.
func (e *Entity) UnmarshalJSON(b []byte) error {
	type plain Entity
	p := plain{ExpiresAtMs: NoExpiry}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = Entity(p)
	return nil
}

func (e Entity) HasExpiry() bool {
	return e.ExpiresAtMs != NoExpiry
}

// RemainingAt returns expiration minus now. ok is false for entities without expiry.
func (e Entity) RemainingAt(now time.Time) (time.Duration, bool) {
	if !e.HasExpiry() {
		return 0, false
	}
	return time.Duration(e.ExpiresAtMs-now.UnixMilli()) * time.Millisecond, true
}

// Discovery is a newly reported entity as handed to a result sink.
type Discovery struct {
	Entity       Entity        `json:"entity"`
	Remaining    time.Duration `json:"remaining_ns"`
	Expires      bool          `json:"expires"`
	Epoch        uint64        `json:"epoch"`
	Cell         string        `json:"cell,omitempty"`
	DiscoveredAt time.Time     `json:"discovered_at"`
}
