package mapsync

import (
	"slices"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
)

// Cluster groups markers sharing an H3 cell at the current zoom. Count is
// the badge; Active is set when the highlighted marker is inside.
type Cluster struct {
	Cell   string       `json:"cell"`
	Center model.LatLng `json:"center"`
	Count  int          `json:"count"`
	IDs    []string     `json:"ids"`
	Active bool         `json:"active,omitempty"`
}

// Clusters buckets the markers at the resolution for the current zoom.
func (s *Synchronizer) Clusters() []Cluster {
	return s.ClustersAt(s.viewport.Zoom)
}

func (s *Synchronizer) ClustersAt(zoom int) []Cluster {
	res := h3mapper.ResolutionForZoom(zoom)
	byCell := map[string]*Cluster{}
	var sumLat, sumLng = map[string]float64{}, map[string]float64{}

	for _, m := range s.markers {
		key := s.cellAt(m, res)
		c, ok := byCell[key]
		if !ok {
			c = &Cluster{Cell: key}
			byCell[key] = c
		}
		c.Count++
		c.IDs = append(c.IDs, m.ID)
		if m.ID == s.activeID {
			c.Active = true
		}
		sumLat[key] += m.Lat
		sumLng[key] += m.Lng
	}

	out := make([]Cluster, 0, len(byCell))
	for key, c := range byCell {
		c.Center = model.LatLng{Lat: sumLat[key] / float64(c.Count), Lng: sumLng[key] / float64(c.Count)}
		slices.Sort(c.IDs)
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Cluster) int {
		switch {
		case a.Cell < b.Cell:
			return -1
		case a.Cell > b.Cell:
			return 1
		}
		return 0
	})
	return out
}

// markerCell is the finest cell of a marker together with the position it
// was computed from; a moved marker invalidates it.
type markerCell struct {
	pos  model.LatLng
	cell string
}

// cellAt derives the marker's cell at res from its cached finest cell. A
// marker that cannot be indexed forms its own bucket.
func (s *Synchronizer) cellAt(m model.Marker, res int) string {
	pos := m.Position()
	fine, ok := s.cells[m.ID]
	if !ok || fine.pos != pos {
		c, err := s.opts.Mapper.CellForPoint(pos, h3mapper.MaxClusterRes)
		if err != nil {
			s.opts.Logger.Debug("marker not indexable", "id", m.ID, "err", err)
			delete(s.cells, m.ID)
			return "marker:" + m.ID
		}
		fine = markerCell{pos: pos, cell: c}
		s.cells[m.ID] = fine
	}
	p, err := s.opts.Mapper.ToParent(fine.cell, res)
	if err != nil {
		return "marker:" + m.ID
	}
	return p
}
