// Package mapsync keeps the map view consistent with the result set: it
// fits the viewport once per marker set until the user takes control,
// clusters markers, tracks the highlighted marker and draws the radius overlay.
//
// A Synchronizer is owned by one session loop and is not safe for concurrent use.
package mapsync

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/mapper"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
)

type Mode string

const (
	ModeFree           Mode = "free"
	ModeUserControlled Mode = "user_controlled"
)

type Icon string

const (
	IconDefault Icon = "default"
	IconActive  Icon = "active"
)

// Overlay is the radius circle drawn around the first marker.
type Overlay struct {
	Center   model.LatLng `json:"center"`
	RadiusKm float64      `json:"radius_km"`
}

// BoundsEvent is forwarded on pan/zoom end together with the H3 cells that
// cover the visible box. It never feeds back into the filters.
type BoundsEvent struct {
	Viewport Viewport `json:"viewport"`
	Cells    []string `json:"cells,omitempty"`
}

// Frame is everything the rendering provider needs to draw the map.
type Frame struct {
	Viewport Viewport       `json:"viewport"`
	Mode     Mode           `json:"mode"`
	Markers  []model.Marker `json:"markers"`
	Clusters []Cluster      `json:"clusters"`
	ActiveID string         `json:"active_id,omitempty"`
	Overlay  *Overlay       `json:"overlay,omitempty"`
	Fits     int            `json:"fits"`
}

// Renderer is the map tile/rendering collaborator.
type Renderer interface {
	Render(Frame)
}

type Options struct {
	WidthPx  int
	HeightPx int
	Initial  Viewport
	Mapper   mapper.Interface
	Logger   *slog.Logger
	// OnBounds receives pan/zoom-end notifications.
	OnBounds func(BoundsEvent)
}

type Synchronizer struct {
	opts Options

	mode     Mode
	viewport Viewport
	markers  []model.Marker
	sig      uint64
	hasSig   bool
	fits     int
	activeID string

	useRadius bool
	radiusKm  float64

	cells map[string]markerCell // marker id -> finest cell at its last position
}

var DefaultViewport = Viewport{
	Center: model.LatLng{Lat: 40.4168, Lng: -3.7038},
	Zoom:   6,
}

func New(opts Options) *Synchronizer {
	if opts.WidthPx <= 0 {
		opts.WidthPx = 1024
	}
	if opts.HeightPx <= 0 {
		opts.HeightPx = 768
	}
	if opts.Initial == (Viewport{}) {
		opts.Initial = DefaultViewport
	}
	if opts.Initial.Bounds == (model.Bounds{}) {
		opts.Initial.Bounds = VisibleBounds(opts.Initial.Center, opts.Initial.Zoom, opts.WidthPx, opts.HeightPx)
	}
	if opts.Mapper == nil {
		opts.Mapper = h3mapper.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synchronizer{
		opts:     opts,
		mode:     ModeFree,
		viewport: opts.Initial,
		cells:    map[string]markerCell{},
	}
}

// Signature identifies a marker set by its ids, independent of order and of
// every other marker field.
func Signature(ms []model.Marker) uint64 {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return xxhash.Sum64String(strings.Join(ids, "\x00"))
}

// SetMarkers replaces the marker set. While the map is Free, a new id set
// fits the viewport; the same id set never refits. It reports whether a fit happened.
func (s *Synchronizer) SetMarkers(ms []model.Marker) bool {
	s.markers = slices.Clone(ms)
	live := make(map[string]markerCell, len(ms))
	for _, m := range ms {
		if c, ok := s.cells[m.ID]; ok && c.pos == m.Position() {
			live[m.ID] = c
		}
	}
	s.cells = live

	sig := Signature(ms)
	if s.hasSig && sig == s.sig {
		return false
	}
	s.sig, s.hasSig = sig, true
	if s.mode != ModeFree {
		return false
	}
	vp, ok := FitMarkers(ms, s.viewport, s.opts.WidthPx, s.opts.HeightPx)
	if !ok {
		return false
	}
	s.viewport = vp
	s.fits++
	s.opts.Logger.Debug("viewport fitted to markers", "markers", len(ms), "zoom", vp.Zoom)
	return true
}

// UserInteractionStart disables auto-fit for the lifetime of this map.
func (s *Synchronizer) UserInteractionStart() {
	if s.mode == ModeFree {
		s.opts.Logger.Debug("map switched to user control")
	}
	s.mode = ModeUserControlled
}

// BoundsChanged records the viewport after a pan/zoom end and forwards it.
func (s *Synchronizer) BoundsChanged(vp Viewport) BoundsEvent {
	if vp.Bounds == (model.Bounds{}) {
		vp.Bounds = VisibleBounds(vp.Center, vp.Zoom, s.opts.WidthPx, s.opts.HeightPx)
	}
	s.viewport = vp
	ev := BoundsEvent{Viewport: vp}
	cells, err := s.opts.Mapper.CellsForBounds(vp.Bounds, h3mapper.ResolutionForZoom(vp.Zoom))
	if err != nil {
		s.opts.Logger.Debug("no cell cover for bounds", "bounds", vp.Bounds.String(), "err", err)
	} else {
		ev.Cells = cells
	}
	if s.opts.OnBounds != nil {
		s.opts.OnBounds(ev)
	}
	return ev
}

func (s *Synchronizer) SetActive(id string) { s.activeID = id }

func (s *Synchronizer) Active() string { return s.activeID }

// IconFor reports which marker icon to draw for id.
func (s *Synchronizer) IconFor(id string) Icon {
	if id != "" && id == s.activeID {
		return IconActive
	}
	return IconDefault
}

// SetRadius updates the radius search inputs for the overlay.
func (s *Synchronizer) SetRadius(use bool, km float64) {
	s.useRadius, s.radiusKm = use, km
}

// Overlay is nil unless radius search is active and there is a marker to center on.
func (s *Synchronizer) Overlay() *Overlay {
	if !s.useRadius || len(s.markers) == 0 || s.radiusKm <= 0 {
		return nil
	}
	m := s.markers[0]
	return &Overlay{Center: model.LatLng{Lat: m.Lat, Lng: m.Lng}, RadiusKm: s.radiusKm}
}

// Resize changes the map's pixel size, e.g. after a fullscreen toggle.
func (s *Synchronizer) Resize(widthPx, heightPx int) {
	if widthPx > 0 && heightPx > 0 {
		s.opts.WidthPx, s.opts.HeightPx = widthPx, heightPx
	}
	s.viewport.Bounds = VisibleBounds(s.viewport.Center, s.viewport.Zoom, s.opts.WidthPx, s.opts.HeightPx)
}

func (s *Synchronizer) Mode() Mode              { return s.mode }
func (s *Synchronizer) Viewport() Viewport      { return s.viewport }
func (s *Synchronizer) Fits() int               { return s.fits }
func (s *Synchronizer) Markers() []model.Marker { return slices.Clone(s.markers) }

func (s *Synchronizer) Frame() Frame {
	return Frame{
		Viewport: s.viewport,
		Mode:     s.mode,
		Markers:  slices.Clone(s.markers),
		Clusters: s.Clusters(),
		ActiveID: s.activeID,
		Overlay:  s.Overlay(),
		Fits:     s.fits,
	}
}
