// Package orchestrator runs one fetch cycle per filter change and decides,
// per epoch, whether the cycle's results are committed.
package orchestrator

import (
	"sync"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/pagination"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusFetching   Status = "fetching"
	StatusApplied    Status = "applied"
	StatusSuperseded Status = "superseded"
	StatusFailed     Status = "failed"
)

// Result is what one cycle produces for the list and the map.
type Result struct {
	Items        []model.ListItem `json:"items"`
	Total        int              `json:"total"`
	Markers      []model.Marker   `json:"markers"`
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
	ShortCircuit bool             `json:"short_circuit,omitempty"`
}

func (r Result) Pagination() pagination.Window {
	return pagination.Compute(r.Page, r.PageSize, r.Total)
}

// Snapshot is the committed view: the latest epoch, its status, the last
// applied results and the dismissible error of the last failed cycle.
type Snapshot struct {
	Epoch   uint64 `json:"epoch"`
	Status  Status `json:"status"`
	Result  Result `json:"result"`
	Err     string `json:"error,omitempty"`
	Applied bool   `json:"applied"`
}

// Tracker holds the epoch counter and the last committed result.
type Tracker struct {
	mu      sync.Mutex
	epoch   uint64
	status  Status
	last    Result
	applied bool
	errMsg  string
}

func NewTracker() *Tracker {
	return &Tracker{status: StatusIdle}
}

// Begin issues the next epoch and moves to Fetching.
func (t *Tracker) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
	t.status = StatusFetching
	return t.epoch
}

func (t *Tracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// Complete reports the outcome of the cycle tagged epoch. Only the latest
// epoch may commit; anything older is Superseded and leaves state untouched.
// A failed cycle keeps the last applied results.
func (t *Tracker) Complete(epoch uint64, res Result, err error) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if epoch != t.epoch {
		observability.IncSearchCycle(string(StatusSuperseded))
		return StatusSuperseded
	}
	if err != nil {
		t.status = StatusFailed
		t.errMsg = err.Error()
		if !t.applied {
			t.last = Result{Page: res.Page, PageSize: res.PageSize}
		}
		observability.IncSearchCycle(string(StatusFailed))
		return StatusFailed
	}

	t.status = StatusApplied
	t.errMsg = ""
	t.last = res
	t.applied = true
	if res.ShortCircuit {
		observability.IncSearchCycle("short_circuit")
	}
	observability.IncSearchCycle(string(StatusApplied))
	return StatusApplied
}

// DismissError clears the inline error message; results stay as they are.
func (t *Tracker) DismissError() {
	t.mu.Lock()
	t.errMsg = ""
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Epoch:   t.epoch,
		Status:  t.status,
		Result:  t.last,
		Err:     t.errMsg,
		Applied: t.applied,
	}
}
