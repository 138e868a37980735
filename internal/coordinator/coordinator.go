// Package coordinator runs one event loop per search session. The loop owns
// the fetch tracker and the map synchronizer; filter changes arrive from the
// filter store, map and list interactions arrive as events, and fetch
// completions are posted back by worker goroutines.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/autocomplete"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/mapsync"
	"github.com/mohammed-shakir/listing-search/internal/orchestrator"
	"github.com/mohammed-shakir/listing-search/internal/pagination"
)

const DefaultInvalidateDelay = 200 * time.Millisecond

var ErrClosed = errors.New("coordinator: closed")

// Navigator opens a property, e.g. after a marker click.
type Navigator interface {
	Navigate(propertyID string)
}

type Config struct {
	Logger   *slog.Logger
	Executor *orchestrator.Executor
	Store    *filter.Store
	Catalog  autocomplete.Catalog

	Renderer  mapsync.Renderer
	Navigator Navigator
	Map       mapsync.Options

	Debounce        time.Duration
	SuggestLimit    int
	InvalidateDelay time.Duration
}

// Snapshot is the session as the UI would draw it.
type Snapshot struct {
	Query         string               `json:"query"`
	Filters       filter.State         `json:"-"`
	Epoch         uint64               `json:"epoch"`
	Status        orchestrator.Status  `json:"status"`
	Error         string               `json:"error,omitempty"`
	Items         []model.ListItem     `json:"items"`
	Total         int                  `json:"total"`
	Pagination    pagination.Window    `json:"pagination"`
	Markers       []model.Marker       `json:"markers"`
	Clusters      []mapsync.Cluster    `json:"clusters"`
	Viewport      mapsync.Viewport     `json:"viewport"`
	Mode          mapsync.Mode         `json:"mode"`
	ActiveID      string               `json:"active_id,omitempty"`
	Overlay       *mapsync.Overlay     `json:"overlay,omitempty"`
	Suggestions   autocomplete.Update  `json:"suggestions"`
	Fits          int                  `json:"fits"`
	Fullscreen    bool                 `json:"fullscreen"`
	Invalidations int                  `json:"invalidations"`
	LastBounds    *mapsync.BoundsEvent `json:"last_bounds,omitempty"`
}

type Coordinator struct {
	cfg    Config
	logger *slog.Logger
	box    *mailbox
	store  *filter.Store

	tracker   *orchestrator.Tracker
	sync      *mapsync.Synchronizer
	suggester *autocomplete.Suggester

	unsubscribe func()
	done        chan struct{}
	stopOnce    sync.Once
	cancelLoop  context.CancelFunc

	// loop-owned
	cancelFetch   context.CancelFunc
	resizeTimer   *time.Timer
	pendingW      int
	pendingH      int
	fullscreen    bool
	invalidations int
	suggestions   autocomplete.Update
	lastBounds    *mapsync.BoundsEvent
	filters       filter.State
}

func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.InvalidateDelay <= 0 {
		cfg.InvalidateDelay = DefaultInvalidateDelay
	}
	if cfg.Store == nil {
		cfg.Store = filter.NewStore("", &filter.MemoryHistory{})
	}
	c := &Coordinator{
		cfg:     cfg,
		logger:  cfg.Logger,
		box:     newMailbox(),
		store:   cfg.Store,
		tracker: orchestrator.NewTracker(),
		done:    make(chan struct{}),
		filters: cfg.Store.State(),
	}
	mapOpts := cfg.Map
	if mapOpts.Logger == nil {
		mapOpts.Logger = cfg.Logger
	}
	c.sync = mapsync.New(mapOpts)
	if cfg.Catalog != nil {
		c.suggester = autocomplete.NewSuggester(cfg.Catalog, autocomplete.Options{
			Debounce: cfg.Debounce,
			Limit:    cfg.SuggestLimit,
			Logger:   cfg.Logger,
			OnUpdate: func(u autocomplete.Update) { c.box.post(suggestionsUpdated{update: u}) },
		})
	}
	return c
}

// Start runs the loop and issues the first fetch for the store's current state.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancelLoop = context.WithCancel(ctx)
	c.unsubscribe = c.store.Subscribe(func(s filter.State) {
		c.box.post(FilterApplied{State: s})
	})
	c.box.post(FilterApplied{State: c.store.State()})
	go c.run(ctx)
}

// Post hands an event to the loop without blocking.
func (c *Coordinator) Post(ev Event) error {
	if !c.box.post(ev) {
		return ErrClosed
	}
	return nil
}

func (c *Coordinator) Store() *filter.Store { return c.store }

// Snapshot asks the loop for its current view.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.Post(snapshotRequest{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// SetFilters replaces every filter from a query string; page resets unless
// only the page differs.
func (c *Coordinator) SetFilters(query string) bool {
	next := filter.Decode(query)
	return c.store.Update(func(s *filter.State) { *s = next })
}

func (c *Coordinator) SetPage(page int) bool {
	return c.store.SetPage(page)
}

// Suggest feeds a keystroke to the debounced suggester and waits for its answer.
func (c *Coordinator) Suggest(ctx context.Context, text string) (autocomplete.Update, error) {
	if c.suggester == nil {
		return autocomplete.Update{}, errors.New("coordinator: no location catalog")
	}
	seq := c.suggester.Input(text)
	return c.suggester.Wait(ctx, seq)
}

// SelectSuggestion closes the list and applies the location in one write.
// Every selection starts exactly one fetch epoch, including re-choosing the
// location already applied. It reports whether the filters changed.
func (c *Coordinator) SelectSuggestion(s autocomplete.Suggestion) bool {
	if c.suggester != nil {
		c.suggester.Reset()
	}
	if autocomplete.Select(c.store, s) {
		return true
	}
	c.box.post(FilterApplied{State: c.store.State()})
	return false
}

// Geolocate applies the device position reported by geo; errors are ignored.
func (c *Coordinator) Geolocate(ctx context.Context, geo autocomplete.GeoProvider) bool {
	return autocomplete.UseDeviceLocation(ctx, c.logger, geo, c.store)
}

// Close stops the loop, in-flight fetches and pending timers.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		if c.suggester != nil {
			c.suggester.Close()
		}
		c.box.close()
		if c.cancelLoop != nil {
			c.cancelLoop()
		} else {
			close(c.done)
		}
	})
}

// Done is closed once the loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	defer c.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.box.signal:
			for _, ev := range c.box.drain() {
				c.handle(ctx, ev)
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	c.box.close()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	if c.resizeTimer != nil {
		c.resizeTimer.Stop()
	}
}

func (c *Coordinator) handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case FilterApplied:
		c.beginFetch(ctx, e.State)

	case fetchCompleted:
		c.completeFetch(e)

	case MarkerHover:
		c.sync.SetActive(e.ID)
		c.render()

	case RowHover:
		c.sync.SetActive(e.ID)
		c.render()

	case MarkerClick:
		c.sync.SetActive(e.ID)
		c.render()
		if c.cfg.Navigator != nil && e.ID != "" {
			c.cfg.Navigator.Navigate(e.ID)
		}

	case PanZoomStart:
		c.sync.UserInteractionStart()

	case BoundsChanged:
		be := c.sync.BoundsChanged(e.Viewport)
		c.lastBounds = &be
		c.render()

	case FullscreenToggled:
		// Toggles inside the delay coalesce into one resize at the latest size.
		c.fullscreen = e.On
		c.pendingW, c.pendingH = e.WidthPx, e.HeightPx
		if c.resizeTimer == nil {
			c.resizeTimer = time.AfterFunc(c.cfg.InvalidateDelay, func() {
				c.box.post(invalidateMap{})
			})
		} else {
			c.resizeTimer.Reset(c.cfg.InvalidateDelay)
		}

	case invalidateMap:
		c.sync.Resize(c.pendingW, c.pendingH)
		c.invalidations++
		c.render()

	case DismissError:
		c.tracker.DismissError()

	case suggestionsUpdated:
		c.suggestions = e.update

	case snapshotRequest:
		e.reply <- c.snapshot()

	default:
		c.logger.Warn("unknown event", "type", ev)
	}
}

func (c *Coordinator) beginFetch(ctx context.Context, st filter.State) {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.filters = st
	c.sync.SetRadius(st.UseRadius, st.EffectiveRadiusKm())

	epoch := c.tracker.Begin()
	if c.cfg.Executor == nil {
		c.box.post(fetchCompleted{epoch: epoch, state: st, err: errors.New("no executor configured")})
		return
	}
	fctx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	exec := c.cfg.Executor
	go func() {
		res, err := exec.Execute(fctx, st)
		c.box.post(fetchCompleted{epoch: epoch, state: st, res: res, err: err})
	}()
	c.logger.Debug("fetch started", "epoch", epoch, "query", filter.Encode(st))
}

func (c *Coordinator) completeFetch(e fetchCompleted) {
	switch c.tracker.Complete(e.epoch, e.res, e.err) {
	case orchestrator.StatusApplied:
		c.sync.SetMarkers(e.res.Markers)
		c.render()
		c.logger.Debug("fetch applied", "epoch", e.epoch, "total", e.res.Total, "markers", len(e.res.Markers))
	case orchestrator.StatusSuperseded:
		c.logger.Debug("fetch superseded", "epoch", e.epoch)
	case orchestrator.StatusFailed:
		c.logger.Warn("fetch failed", "epoch", e.epoch, "err", e.err)
		c.render()
	}
}

func (c *Coordinator) render() {
	if c.cfg.Renderer != nil {
		c.cfg.Renderer.Render(c.sync.Frame())
	}
}

func (c *Coordinator) snapshot() Snapshot {
	t := c.tracker.Snapshot()
	f := c.sync.Frame()
	items := t.Result.Items
	if items == nil {
		items = []model.ListItem{}
	}
	page, size := t.Result.Page, t.Result.PageSize
	if page == 0 {
		page = c.filters.Page
	}
	if size == 0 && c.cfg.Executor != nil {
		size = c.cfg.Executor.PageSize()
	}
	return Snapshot{
		Query:         c.store.Query(),
		Filters:       c.filters,
		Epoch:         t.Epoch,
		Status:        t.Status,
		Error:         t.Err,
		Items:         items,
		Total:         t.Result.Total,
		Pagination:    pagination.Compute(page, size, t.Result.Total),
		Markers:       f.Markers,
		Clusters:      f.Clusters,
		Viewport:      f.Viewport,
		Mode:          f.Mode,
		ActiveID:      f.ActiveID,
		Overlay:       f.Overlay,
		Suggestions:   c.suggestions,
		Fits:          f.Fits,
		Fullscreen:    c.fullscreen,
		Invalidations: c.invalidations,
		LastBounds:    c.lastBounds,
	}
}
