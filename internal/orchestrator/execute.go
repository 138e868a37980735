package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/composer"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/filter"
	"github.com/mohammed-shakir/listing-search/internal/pagination"
)

const DefaultPageSize = 12

// Executor runs the composed plan against the backend query service.
type Executor struct {
	logger   *slog.Logger
	store    backend.Store
	pageSize int
	now      func() time.Time // for tests
}

func NewExecutor(logger *slog.Logger, store backend.Store, pageSize int) *Executor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger, store: store, pageSize: pageSize, now: time.Now}
}

func (e *Executor) PageSize() int { return e.pageSize }

// Execute performs one full cycle: zone resolution, allow-list resolution,
// the list and marker selects in parallel, then detail and zone lookups in
// parallel, then the merge. It does not decide whether the result commits.
func (e *Executor) Execute(ctx context.Context, st filter.State) (Result, error) {
	st = filter.Normalize(st)
	plan := composer.Compose(st)
	res := Result{Page: st.Page, PageSize: e.pageSize, Items: []model.ListItem{}, Markers: []model.Marker{}}

	var r composer.Resolved
	if plan.Zones != nil {
		rows, err := e.selectRows(ctx, *plan.Zones)
		if err != nil {
			return res, fmt.Errorf("resolve zones: %w", err)
		}
		r.ZoneIDs, r.ZonesApplied = column(rows, "id"), true
	}

	if plan.NeedsAllowList() {
		var feat, refs []string
		if plan.Features != nil {
			rows, err := e.selectRows(ctx, *plan.Features)
			if err != nil {
				return res, fmt.Errorf("resolve features: %w", err)
			}
			feat = column(rows, "property_id")
		}
		if plan.Refs != nil && (plan.Features == nil || len(feat) > 0) {
			rows, err := e.selectRows(ctx, *plan.Refs)
			if err != nil {
				return res, fmt.Errorf("resolve reference code: %w", err)
			}
			refs = column(rows, "property_id")
		}
		r.AllowIDs, r.AllowApplied = composer.Intersect(feat, refs, plan.Features != nil, plan.Refs != nil)
		if len(r.AllowIDs) == 0 {
			e.logger.Debug("allow-list empty, skipping property queries",
				"features", st.FeatureKeys, "ref", st.RefCode)
			res.ShortCircuit = true
			return res, nil
		}
	}

	var list, marks backend.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = e.selectQuery(gctx, plan.ListQuery(r, pagination.Offset(st.Page, e.pageSize), e.pageSize))
		if err != nil {
			return fmt.Errorf("list properties: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		marks, err = e.selectQuery(gctx, plan.MarkerQuery(r))
		if err != nil {
			return fmt.Errorf("marker properties: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Total = list.Total

	ids := unionColumn("id", list.Rows, marks.Rows)
	zoneIDs := unionColumn("zone_id", list.Rows, marks.Rows)

	details := map[string]model.PropertyDetail{}
	zones := map[string]model.Zone{}
	g, gctx = errgroup.WithContext(ctx)
	if len(ids) > 0 {
		g.Go(func() error {
			rows, err := e.selectRows(gctx, backend.Query{
				Table:   backend.TableDetails,
				Columns: []string{"property_id", "lat", "lng", "ref_code"},
				Where:   []backend.Condition{backend.In("property_id", ids)},
			})
			if err != nil {
				return fmt.Errorf("property details: %w", err)
			}
			for _, row := range rows {
				d := DetailFromRow(row)
				details[d.PropertyID] = d
			}
			return nil
		})
	}
	if len(zoneIDs) > 0 {
		g.Go(func() error {
			rows, err := e.selectRows(gctx, backend.Query{
				Table:   backend.TableZones,
				Columns: []string{"id", "country", "city", "area"},
				Where:   []backend.Condition{backend.In("id", zoneIDs)},
			})
			if err != nil {
				return fmt.Errorf("zone labels: %w", err)
			}
			for _, row := range rows {
				z := ZoneFromRow(row)
				zones[z.ID] = z
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Items = make([]model.ListItem, 0, len(list.Rows))
	for _, row := range list.Rows {
		p := PropertyFromRow(row)
		res.Items = append(res.Items, model.ListItem{
			Property: p,
			Location: zones[p.ZoneID].Label(),
			RefCode:  details[p.ID].RefCode,
		})
	}
	res.Markers = make([]model.Marker, 0, len(marks.Rows))
	for _, row := range marks.Rows {
		p := PropertyFromRow(row)
		d, ok := details[p.ID]
		if !ok || d.Lat == nil || d.Lng == nil {
			continue
		}
		res.Markers = append(res.Markers, model.Marker{
			ID:    p.ID,
			Lat:   *d.Lat,
			Lng:   *d.Lng,
			Price: p.Price,
			Title: p.Title,
			City:  zones[p.ZoneID].City,
			Image: p.CoverImage,
		})
	}
	return res, nil
}

func (e *Executor) selectQuery(ctx context.Context, q backend.Query) (backend.Result, error) {
	start := e.now()
	out, err := e.store.Select(ctx, q)
	observability.ObserveBackendQuery(q.Table, err, e.now().Sub(start).Seconds())
	return out, err
}

func (e *Executor) selectRows(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	out, err := e.selectQuery(ctx, q)
	return out.Rows, err
}

func column(rows []backend.Row, col string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if v := r.String(col); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// unionColumn collects distinct non-empty values of col, sorted.
func unionColumn(col string, sets ...[]backend.Row) []string {
	seen := map[string]struct{}{}
	for _, rows := range sets {
		for _, r := range rows {
			if v := r.String(col); v != "" {
				seen[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func PropertyFromRow(r backend.Row) model.Property {
	return model.Property{
		ID:         r.String("id"),
		Title:      r.String("title"),
		Price:      r.Float("price"),
		Bedrooms:   r.Int("bedrooms"),
		Bathrooms:  r.Int("bathrooms"),
		AreaSqm:    r.Float("area_sqm"),
		Status:     r.String("status"),
		CoverImage: r.String("cover_image"),
		ZoneID:     r.String("zone_id"),
		TypeID:     r.String("type_id"),
	}
}

func DetailFromRow(r backend.Row) model.PropertyDetail {
	return model.PropertyDetail{
		PropertyID: r.String("property_id"),
		Lat:        r.FloatPtr("lat"),
		Lng:        r.FloatPtr("lng"),
		RefCode:    r.String("ref_code"),
	}
}

func ZoneFromRow(r backend.Row) model.Zone {
	return model.Zone{
		ID:      r.String("id"),
		Country: r.String("country"),
		City:    r.String("city"),
		Area:    r.String("area"),
	}
}
