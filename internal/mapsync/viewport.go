package mapsync

import (
	"math"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

const (
	tileSize = 256.0

	MinSingleMarkerZoom = 13
	MaxZoom             = 18
	FitPadding          = 0.2
)

// Viewport is what the map shows: a center, a zoom and the visible box.
type Viewport struct {
	Center model.LatLng `json:"center"`
	Zoom   int          `json:"zoom"`
	Bounds model.Bounds `json:"bounds"`
}

// FitMarkers computes the viewport that contains all markers. A single
// marker centers the map at no less than MinSingleMarkerZoom; several
// markers use their bounding box padded by FitPadding.
func FitMarkers(ms []model.Marker, cur Viewport, widthPx, heightPx int) (Viewport, bool) {
	b, ok := model.BoundsOf(ms)
	if !ok {
		return cur, false
	}
	if len(ms) == 1 || (b.North == b.South && b.East == b.West) {
		z := min(max(cur.Zoom, MinSingleMarkerZoom), MaxZoom)
		c := model.LatLng{Lat: ms[0].Lat, Lng: ms[0].Lng}
		return Viewport{Center: c, Zoom: z, Bounds: VisibleBounds(c, z, widthPx, heightPx)}, true
	}
	padded := b.Pad(FitPadding)
	z := ZoomForBounds(padded, widthPx, heightPx)
	return Viewport{Center: padded.Center(), Zoom: z, Bounds: padded}, true
}

// ZoomForBounds is the largest integer zoom at which b fits in the pixel box.
func ZoomForBounds(b model.Bounds, widthPx, heightPx int) int {
	if widthPx <= 0 || heightPx <= 0 {
		return 0
	}
	dx := (b.East - b.West) / 360
	dy := math.Abs(mercY(b.North) - mercY(b.South))
	zx, zy := float64(MaxZoom), float64(MaxZoom)
	if dx > 0 {
		zx = math.Log2(float64(widthPx) / tileSize / dx)
	}
	if dy > 0 {
		zy = math.Log2(float64(heightPx) / tileSize / dy)
	}
	z := int(math.Floor(math.Min(zx, zy)))
	return min(max(z, 0), MaxZoom)
}

// VisibleBounds approximates the box shown around c at zoom.
func VisibleBounds(c model.LatLng, zoom, widthPx, heightPx int) model.Bounds {
	world := tileSize * math.Pow(2, float64(zoom))
	halfX := float64(widthPx) / world / 2
	halfY := float64(heightPx) / world / 2
	cy := mercY(c.Lat)
	return model.Bounds{
		South: invMercY(cy - halfY),
		North: invMercY(cy + halfY),
		West:  c.Lng - halfX*360,
		East:  c.Lng + halfX*360,
	}
}

// mercY projects latitude into [0,1] web-mercator units (north is larger).
func mercY(lat float64) float64 {
	lat = min(max(lat, -85.05112878), 85.05112878)
	s := math.Sin(lat * math.Pi / 180)
	return 0.5 + math.Log((1+s)/(1-s))/(4*math.Pi)
}

func invMercY(y float64) float64 {
	n := math.Pi * (2*y - 1)
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}
