package coordinator

import (
	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/mapsync"
	"github.com/mohammed-shakir/listing-search/internal/orchestrator"
)

// Event is anything the session loop reacts to.
type Event interface {
	event()
}

// FilterApplied starts a new fetch epoch for State.
type FilterApplied struct{ State filter.State }

type MarkerHover struct{ ID string }

// MarkerClick highlights the marker and asks the navigator to open it.
type MarkerClick struct{ ID string }

type RowHover struct{ ID string }

// BoundsChanged is a pan/zoom end. It is forwarded, never turned into filters.
type BoundsChanged struct{ Viewport mapsync.Viewport }

type PanZoomStart struct{}

// FullscreenToggled resizes the map after InvalidateDelay.
type FullscreenToggled struct {
	On       bool
	WidthPx  int
	HeightPx int
}

type DismissError struct{}

type fetchCompleted struct {
	epoch uint64
	state filter.State
	res   orchestrator.Result
	err   error
}

// invalidateMap fires once the resize delay elapses; the size is read from
// the loop's pending state.
type invalidateMap struct{}

type suggestionsUpdated struct{ update autocomplete.Update }

type snapshotRequest struct{ reply chan Snapshot }

func (FilterApplied) event()      {}
func (MarkerHover) event()        {}
func (MarkerClick) event()        {}
func (RowHover) event()           {}
func (BoundsChanged) event()      {}
func (PanZoomStart) event()       {}
func (FullscreenToggled) event()  {}
func (DismissError) event()       {}
func (fetchCompleted) event()     {}
func (invalidateMap) event()      {}
func (suggestionsUpdated) event() {}
func (snapshotRequest) event()    {}
