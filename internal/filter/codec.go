package filter

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

// query-string keys
const (
	KeyOperation = "op"
	KeyCountry   = "country"
	KeyProvince  = "province"
	KeyArea      = "area"
	KeyLocation  = "loc"
	KeyTypes     = "types"
	KeyBedrooms  = "bmin"
	KeyBathrooms = "tmin"
	KeyAreaMin   = "amin"
	KeyAreaMax   = "amax"
	KeyPriceMin  = "pmin"
	KeyPriceMax  = "pmax"
	KeyFeatures  = "feat"
	KeyRef       = "ref"
	KeyUseRadius = "use_radius"
	KeyRadius    = "rad"
	KeyLat       = "lat"
	KeyLng       = "lng"
	KeyPage      = "page"
)

// Decode never fails: missing or invalid values fall back to defaults,
// out-of-range numbers are clamped and unknown keys are ignored.
func Decode(raw string) State {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	v, err := url.ParseQuery(raw)
	if err != nil && v == nil {
		return Default()
	}
	return DecodeValues(v)
}

func DecodeValues(v url.Values) State {
	s := Default()
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }

	s.Operation = model.ParseOperation(get(KeyOperation))
	s.Country = get(KeyCountry)
	s.Province = get(KeyProvince)
	s.Area = get(KeyArea)
	s.LocationText = get(KeyLocation)
	s.RefCode = get(KeyRef)
	s.TypeIDs = splitList(get(KeyTypes))
	s.FeatureKeys = splitList(get(KeyFeatures))

	s.BedroomsMin = parseIntPtr(get(KeyBedrooms))
	s.BathroomsMin = parseIntPtr(get(KeyBathrooms))
	s.AreaMin = parseFloatPtr(get(KeyAreaMin))
	s.AreaMax = parseFloatPtr(get(KeyAreaMax))

	if p := parseFloatPtr(get(KeyPriceMin)); p != nil {
		s.PriceMin = *p
	}
	if p := parseFloatPtr(get(KeyPriceMax)); p != nil {
		s.PriceMax = *p
	}

	switch strings.ToLower(get(KeyUseRadius)) {
	case "on", "true", "1":
		s.UseRadius = true
	}
	if p := parseFloatPtr(get(KeyRadius)); p != nil {
		s.RadiusKm = *p
	}
	s.CenterLat = parseFloatPtr(get(KeyLat))
	s.CenterLng = parseFloatPtr(get(KeyLng))

	if n, err := strconv.Atoi(get(KeyPage)); err == nil {
		s.Page = n
	}
	return Normalize(s)
}

// Encode omits every field sitting at its unconstrained default. Keys are
// emitted in sorted order so equal states always produce equal strings.
func Encode(s State) string {
	return EncodeValues(s).Encode()
}

func EncodeValues(s State) url.Values {
	s = Normalize(s)
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}

	set(KeyOperation, string(s.Operation))
	set(KeyCountry, s.Country)
	set(KeyProvince, s.Province)
	set(KeyArea, s.Area)
	set(KeyLocation, s.LocationText)
	set(KeyRef, s.RefCode)
	set(KeyTypes, strings.Join(s.TypeIDs, ","))
	set(KeyFeatures, strings.Join(s.FeatureKeys, ","))

	if s.BedroomsMin != nil {
		set(KeyBedrooms, strconv.Itoa(*s.BedroomsMin))
	}
	if s.BathroomsMin != nil {
		set(KeyBathrooms, strconv.Itoa(*s.BathroomsMin))
	}
	if s.AreaMin != nil {
		set(KeyAreaMin, formatFloat(*s.AreaMin))
	}
	if s.AreaMax != nil {
		set(KeyAreaMax, formatFloat(*s.AreaMax))
	}
	if lo, hi := s.PriceConstrained(); lo || hi {
		if lo {
			set(KeyPriceMin, formatFloat(s.PriceMin))
		}
		if hi {
			set(KeyPriceMax, formatFloat(s.PriceMax))
		}
	}
	if s.UseRadius {
		set(KeyUseRadius, "on")
	}
	if s.RadiusKm > 0 {
		set(KeyRadius, formatFloat(s.RadiusKm))
	}
	if s.HasCenter() {
		set(KeyLat, formatFloat(*s.CenterLat))
		set(KeyLng, formatFloat(*s.CenterLng))
	}
	if s.Page > 1 {
		set(KeyPage, strconv.Itoa(s.Page))
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for p := range strings.SplitSeq(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntPtr(raw string) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// accept "2.0" style input from sliders
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(f) {
			return nil
		}
		n = int(math.Round(clampF(f, -1e9, 1e9)))
	}
	return &n
}

func parseFloatPtr(raw string) *float64 {
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	return &f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
