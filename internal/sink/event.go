package sink

import (
	"time"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

// Event is the wire form of one discovery.
type Event struct {
	Kind         int       `json:"kind"`
	InstanceID   string    `json:"spawn_point_id"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	ExpiresAtMs  int64     `json:"expires_at_ms"`
	RemainingMs  *int64    `json:"remaining_ms,omitempty"`
	Remaining    string    `json:"remaining"`
	Cell         string    `json:"cell,omitempty"`
	Epoch        uint64    `json:"scan_epoch"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

func EventOf(d model.Discovery) Event {
	ev := Event{
		Kind:         d.Entity.Kind,
		InstanceID:   d.Entity.InstanceID,
		Lat:          d.Entity.Lat,
		Lon:          d.Entity.Lon,
		ExpiresAtMs:  d.Entity.ExpiresAtMs,
		Cell:         d.Cell,
		Epoch:        d.Epoch,
		DiscoveredAt: d.DiscoveredAt,
		Remaining:    FormatRemaining(d),
	}
	if d.Expires {
		ms := d.Remaining.Milliseconds()
		ev.RemainingMs = &ms
	}
	return ev
}
