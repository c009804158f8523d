package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntity_MissingExpiryMeansNoExpiry(t *testing.T) {
	var e Entity
	if err := json.Unmarshal([]byte(`{"kind":1,"spawn_point_id":"a","lat":37,"lon":-122}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.HasExpiry() || e.ExpiresAtMs != NoExpiry {
		t.Fatalf("missing expiry decoded as %d", e.ExpiresAtMs)
	}
	if _, ok := e.RemainingAt(time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("entity without expiry must not report a remaining lifetime")
	}
	if e.Kind != 1 || e.InstanceID != "a" || e.Lat != 37 || e.Lon != -122 {
		t.Fatalf("fields not decoded: %+v", e)
	}
}

func TestEntity_ExplicitExpiryDecoded(t *testing.T) {
	var e Entity
	if err := json.Unmarshal([]byte(`{"kind":2,"spawn_point_id":"b","lat":1,"lon":2,"expires_at_ms":1700000060000}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	rem, ok := e.RemainingAt(time.UnixMilli(1700000000000))
	if !ok || rem != time.Minute {
		t.Fatalf("remaining=%v ok=%v want 1m", rem, ok)
	}
}

func TestEntity_RoundTripKeepsNoExpiry(t *testing.T) {
	in := []Entity{{Kind: 3, InstanceID: "c", Coordinate: Coordinate{Lat: 1, Lon: 1}, ExpiresAtMs: NoExpiry}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out []Entity
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("got %+v want %+v", out, in)
	}
}
