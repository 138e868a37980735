package autocomplete

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/core/observability"
)

const DefaultDebounce = 250 * time.Millisecond

var ErrSuperseded = errors.New("autocomplete: superseded by newer input")

// Update is what the visible suggestion list shows after input Seq.
type Update struct {
	Seq         uint64       `json:"seq"`
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
	Err         string       `json:"error,omitempty"`
}

// Suggester debounces keystrokes and guarantees that only the newest input
// updates the suggestions. A newer keystroke cancels the pending timer and
// the in-flight lookup; a late answer for an older input is dropped.
type Suggester struct {
	catalog  Catalog
	debounce time.Duration
	limit    int
	logger   *slog.Logger
	// onUpdate is called with the lock held; it must not block or call back in.
	onUpdate func(Update)

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	latest  Update
	changed chan struct{}
	closed  bool
}

type Options struct {
	Debounce time.Duration
	Limit    int
	Logger   *slog.Logger
	OnUpdate func(Update)
}

func NewSuggester(catalog Catalog, opts Options) *Suggester {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Limit <= 0 || opts.Limit > DefaultLimit {
		opts.Limit = DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Suggester{
		catalog:  catalog,
		debounce: opts.Debounce,
		limit:    opts.Limit,
		logger:   opts.Logger,
		onUpdate: opts.OnUpdate,
		changed:  make(chan struct{}),
	}
}

// Input records a keystroke and returns its sequence number. Text shorter
// than MinChars clears the suggestions right away without a lookup.
func (s *Suggester) Input(text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	seq := s.seq
	s.abortLocked()
	if s.closed {
		return seq
	}

	q, err := ValidQuery(text)
	if err != nil {
		observability.IncAutocomplete("too_short")
		s.publishLocked(Update{Seq: seq, Query: q, Suggestions: []Suggestion{}})
		return seq
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(seq, q) })
	return seq
}

// Reset abandons pending work and clears the list, e.g. after a selection.
func (s *Suggester) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.abortLocked()
	s.publishLocked(Update{Seq: s.seq, Suggestions: []Suggestion{}})
}

// Latest is the currently visible suggestion state.
func (s *Suggester) Latest() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Wait blocks until input seq is answered. It returns ErrSuperseded when a
// newer input replaced it first.
func (s *Suggester) Wait(ctx context.Context, seq uint64) (Update, error) {
	for {
		s.mu.Lock()
		latest, ch := s.latest, s.changed
		current := s.seq
		s.mu.Unlock()

		switch {
		case latest.Seq == seq:
			return latest, nil
		case latest.Seq > seq || current > seq:
			return latest, ErrSuperseded
		}
		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-ch:
		}
	}
}

// Close stops timers and in-flight lookups; later input is ignored.
func (s *Suggester) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.abortLocked()
}

func (s *Suggester) fire(seq uint64, q string) {
	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	res, err := s.catalog.Search(ctx, q, s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		observability.IncAutocomplete("discarded")
		s.logger.Debug("discarding superseded suggestions", "seq", seq, "latest", s.seq)
		return
	}
	s.cancel = nil
	up := Update{Seq: seq, Query: q, Suggestions: res}
	if err != nil {
		observability.IncAutocomplete("error")
		s.logger.Warn("suggestion lookup failed", "q", q, "err", err)
		up.Suggestions = []Suggestion{}
		up.Err = err.Error()
	} else {
		observability.IncAutocomplete("delivered")
	}
	if up.Suggestions == nil {
		up.Suggestions = []Suggestion{}
	}
	s.publishLocked(up)
}

func (s *Suggester) abortLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Suggester) publishLocked(up Update) {
	s.latest = up
	close(s.changed)
	s.changed = make(chan struct{})
	if s.onUpdate != nil {
		s.onUpdate(up)
	}
}
