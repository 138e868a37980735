package h3mapper

import (
	"fmt"
)

// MaxClusterRes is the finest resolution markers are bucketed at.
const MaxClusterRes = 11

// zoomRes maps a web-map zoom level to an H3 resolution whose cells are a
// few dozen pixels wide at that zoom.
var zoomRes = []int{
	0, 0, 1, 1, 2, 2, 3, 4, 5, 6, 6, 7, 8, 9, 10, 11,
}

// ResolutionForZoom clamps zoom into the table.
func ResolutionForZoom(zoom int) int {
	switch {
	case zoom < 0:
		return zoomRes[0]
	case zoom >= len(zoomRes):
		return MaxClusterRes
	default:
		return zoomRes[zoom]
	}
}

func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return cell, nil
	}

	// traverse up to the requested parent resolution
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}
