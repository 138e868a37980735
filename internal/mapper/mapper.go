// Package mapper converts between map coordinates and H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

type Interface interface {
	CellForPoint(p model.LatLng, res int) (string, error)
	CellsForBounds(b model.Bounds, res int) ([]string, error)
	ToParent(cell string, parentRes int) (string, error)
	CellCenter(cell string) (model.LatLng, error)
}
