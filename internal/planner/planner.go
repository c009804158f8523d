// Package planner lays out scan plans: concentric hexagonal rings of query points around a center.
package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/geo"
)

// DefaultStepDistance is the spacing between neighbouring scan points in meters.
const DefaultStepDistance = 200.0

// DefaultSteps is the number of layers scanned when the caller does not choose.
const DefaultSteps = 12

// MaxSteps bounds the plan size (H(64) = 12097 points).
const MaxSteps = 64

// Planner builds scan plans with a fixed spacing in meters between neighbouring points.
type Planner struct {
	StepDistance float64
}

// New falls back to DefaultStepDistance for a non-positive or non-finite spacing.
func New(stepDistance float64) *Planner {
	if stepDistance <= 0 || math.IsNaN(stepDistance) || math.IsInf(stepDistance, 0) {
		stepDistance = DefaultStepDistance
	}
	return &Planner{StepDistance: stepDistance}
}

// HexagonalNumber returns the cumulative point count through layer n.
func HexagonalNumber(n int) int {
	if n <= 0 {
		return 0
	}
	return 3*n*(n-1) + 1
}

// LayerOf returns the 1-based layer a plan index belongs to.
func LayerOf(index int) int {
	if index < 0 {
		return 0
	}
	l := 1
	for HexagonalNumber(l) <= index {
		l++
	}
	return l
}

type leg struct {
	bearing float64
	count   func(layer int) int
}

// perimeter walk after the northward step that opens a ring
var ringLegs = []leg{
	{120, func(l int) int { return l - 1 }},
	{180, func(l int) int { return l - 1 }},
	{240, func(l int) int { return l - 1 }},
	{300, func(l int) int { return l - 1 }},
	{0, func(l int) int { return l - 1 }},
	{60, func(l int) int { return l - 2 }},
}

// Plan returns H(steps) coordinates, layer by layer. Layer 1 is the center; every
// later layer opens one step north of the first point of the previous layer and
// walks the hexagon perimeter from there.
func (p *Planner) Plan(center model.Coordinate, steps int) (model.ScanPlan, error) {
	if steps < 0 {
		return nil, fmt.Errorf("steps must be >= 0 (got %d)", steps)
	}
	if steps > MaxSteps {
		return nil, fmt.Errorf("steps must be <= %d (got %d)", MaxSteps, steps)
	}
	d := p.StepDistance
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, fmt.Errorf("invalid step distance %v", d)
	}
	if !center.Valid() {
		return nil, errors.New("center must be a finite coordinate within lat [-90,90], lon [-180,180]")
	}

	plan := make(model.ScanPlan, 0, HexagonalNumber(steps))
	if steps == 0 {
		return plan, nil
	}
	plan = append(plan, center)
	anchor := center

	for layer := 2; layer <= steps; layer++ {
		start, err := geo.Translate(anchor, 0, d)
		if err != nil {
			return nil, fmt.Errorf("layer %d start: %w", layer, err)
		}
		plan = append(plan, start)
		prev := start
		for _, lg := range ringLegs {
			for range lg.count(layer) {
				next, err := geo.Translate(prev, lg.bearing, d)
				if err != nil {
					return nil, fmt.Errorf("layer %d bearing %.0f: %w", layer, lg.bearing, err)
				}
				plan = append(plan, next)
				prev = next
			}
		}
		anchor = start
	}
	return plan, nil
}
