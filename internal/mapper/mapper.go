// Package mapper converts scan coordinates to H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/hexscan/internal/core/model"
)

type Interface interface {
	CellOf(c model.Coordinate, res int) (string, error)
	CellsForPlan(plan model.ScanPlan, res int) ([]string, error)
	Coverage(plan model.ScanPlan, res int) ([]string, error)
}
