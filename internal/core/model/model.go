// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

type Operation string

const (
	OpNone   Operation = ""
	OpBuy    Operation = "buy"
	OpRent   Operation = "rent"
	OpRented Operation = "rented"
)

// ParseOperation is case-insensitive; anything unknown maps to OpNone.
func ParseOperation(s string) Operation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return OpBuy
	case "rent":
		return OpRent
	case "rented":
		return OpRented
	default:
		return OpNone
	}
}

type Zone struct {
	ID      string `json:"id"`
	Country string `json:"country"`
	City    string `json:"city"`
	Area    string `json:"area"`
}

// Label is the human-readable location shown next to a listing.
func (z Zone) Label() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{z.Area, z.City, z.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type PropertyType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Property struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	Bedrooms   int     `json:"bedrooms"`
	Bathrooms  int     `json:"bathrooms"`
	AreaSqm    float64 `json:"area_sqm"`
	Status     string  `json:"status"`
	CoverImage string  `json:"cover_image,omitempty"`
	ZoneID     string  `json:"zone_id,omitempty"`
	TypeID     string  `json:"type_id,omitempty"`
}

type PropertyDetail struct {
	PropertyID string   `json:"property_id"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	RefCode    string   `json:"ref_code,omitempty"`
}

// ListItem is a property row decorated for the result list.
type ListItem struct {
	Property
	Location string `json:"location,omitempty"`
	RefCode  string `json:"ref_code,omitempty"`
}

type Marker struct {
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Price float64 `json:"price"`
	Title string  `json:"title"`
	City  string  `json:"city,omitempty"`
	Image string  `json:"image,omitempty"`
}

func (m Marker) Position() LatLng { return LatLng{Lat: m.Lat, Lng: m.Lng} }

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a south-west / north-east box in EPSG:4326 degrees.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func (b Bounds) Center() LatLng {
	return LatLng{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2}
}

// Pad grows the box by ratio of its span on every side.
func (b Bounds) Pad(ratio float64) Bounds {
	dLat := (b.North - b.South) * ratio
	dLng := (b.East - b.West) * ratio
	return Bounds{
		South: b.South - dLat,
		West:  b.West - dLng,
		North: b.North + dLat,
		East:  b.East + dLng,
	}
}

func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}

// String representation matching the bbox query format
func (b Bounds) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

// BoundsOf returns the tight box around markers; ok is false when empty.
func BoundsOf(ms []Marker) (Bounds, bool) {
	if len(ms) == 0 {
		return Bounds{}, false
	}
	b := Bounds{South: ms[0].Lat, North: ms[0].Lat, West: ms[0].Lng, East: ms[0].Lng}
	for _, m := range ms[1:] {
		b.South = min(b.South, m.Lat)
		b.North = max(b.North, m.Lat)
		b.West = min(b.West, m.Lng)
		b.East = max(b.East, m.Lng)
	}
	return b, true
}
