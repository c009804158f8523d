package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellOf returns the H3 cell containing c.
func (m *Mapper) CellOf(c model.Coordinate, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if !c.Valid() {
		return "", fmt.Errorf("invalid coordinate %s", c)
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Lat, Lng: c.Lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for %s: %w", c, err)
	}
	return cell.String(), nil
}

// CellsForPlan returns one cell per plan point, index aligned with the plan.
func (m *Mapper) CellsForPlan(plan model.ScanPlan, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	out := make([]string, len(plan))
	for i, c := range plan {
		cell, err := m.CellOf(c, res)
		if err != nil {
			return nil, fmt.Errorf("plan point %d: %w", i, err)
		}
		out[i] = cell
	}
	return out, nil
}

// Coverage returns the distinct cells touched by a plan, sorted for determinism.
func (m *Mapper) Coverage(plan model.ScanPlan, res int) ([]string, error) {
	cells, err := m.CellsForPlan(plan, res)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(cells))
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
