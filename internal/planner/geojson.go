package planner

import (
	"encoding/json"
	"fmt"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   pointGeometry  `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type pointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lon,lat]
}

// GeoJSON renders the plan as a FeatureCollection of points tagged with index and layer.
// cells is optional; when its length matches the plan each feature also carries its H3 cell.
func GeoJSON(plan model.ScanPlan, cells []string) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(plan))}
	for i, c := range plan {
		props := map[string]any{
			"index": i,
			"layer": LayerOf(i),
		}
		if len(cells) == len(plan) {
			props["cell"] = cells[i]
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Geometry:   pointGeometry{Type: "Point", Coordinates: [2]float64{c.Lon, c.Lat}},
			Properties: props,
		})
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode plan geojson: %w", err)
	}
	return b, nil
}
