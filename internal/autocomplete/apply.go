package autocomplete

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/filter"
)

// Select writes the chosen location and its label in one store update, so
// exactly one filter change (and one fetch) follows.
func Select(store *filter.Store, s Suggestion) bool {
	label := s.Label
	if label == "" {
		label = model.Zone{Country: s.Country, City: s.City, Area: s.Area}.Label()
	}
	return store.Update(func(st *filter.State) {
		st.Country = s.Country
		st.Province = s.City
		st.Area = s.Area
		st.LocationText = label
	})
}

// GeoProvider is the device "current position" call.
type GeoProvider interface {
	CurrentPosition(ctx context.Context) (model.LatLng, error)
}

// GeoFunc adapts a plain function to GeoProvider.
type GeoFunc func(ctx context.Context) (model.LatLng, error)

func (f GeoFunc) CurrentPosition(ctx context.Context) (model.LatLng, error) { return f(ctx) }

// UseDeviceLocation centers radius search on the device position. The
// free-text label is cleared rather than invented. Failures are silent.
func UseDeviceLocation(ctx context.Context, logger *slog.Logger, geo GeoProvider, store *filter.Store) bool {
	if geo == nil {
		return false
	}
	pos, err := geo.CurrentPosition(ctx)
	if err != nil {
		if logger != nil {
			logger.Debug("geolocation unavailable", "err", err)
		}
		return false
	}
	return ApplyPosition(store, pos)
}

// ApplyPosition forces radius search around pos, defaulting the radius when unset.
func ApplyPosition(store *filter.Store, pos model.LatLng) bool {
	return store.Update(func(st *filter.State) {
		lat, lng := pos.Lat, pos.Lng
		st.CenterLat = &lat
		st.CenterLng = &lng
		st.UseRadius = true
		if st.RadiusKm == 0 {
			st.RadiusKm = filter.DefaultRad
		}
		st.LocationText = ""
	})
}
