package memstore

import (
	"fmt"

	"github.com/mohammed-shakir/listing-search/internal/backend"
)

type demoZone struct {
	id, country, city, area string
	lat, lng                float64
}

var demoZones = []demoZone{
	{"z-mad-ret", "Spain", "Madrid", "Retiro", 40.4153, -3.6845},
	{"z-mad-sal", "Spain", "Madrid", "Salamanca", 40.4297, -3.6773},
	{"z-bcn-grc", "Spain", "Barcelona", "Gràcia", 41.4036, 2.1564},
	{"z-mal-cen", "Spain", "Málaga", "Centro", 36.7213, -4.4214},
	{"z-lis-alf", "Portugal", "Lisbon", "Alfama", 38.7118, -9.1300},
	{"z-por-rib", "Portugal", "Porto", "Ribeira", 41.1408, -8.6131},
}

var demoTypes = []backend.Row{
	{"id": "apartment", "name": "Apartment", "slug": "apartment"},
	{"id": "house", "name": "House", "slug": "house"},
	{"id": "penthouse", "name": "Penthouse", "slug": "penthouse"},
	{"id": "studio", "name": "Studio", "slug": "studio"},
}

// Seed fills s with a small deterministic demo catalog.
func Seed(s *Store) error {
	for _, z := range demoZones {
		if err := s.Insert(backend.TableZones, backend.Row{
			"id": z.id, "country": z.country, "city": z.city, "area": z.area,
		}); err != nil {
			return err
		}
	}
	if err := s.Insert(backend.TableTypes, demoTypes...); err != nil {
		return err
	}

	statuses := []string{"Buy", "Rent", "Rented"}
	n := 0
	for zi, z := range demoZones {
		for i := range 6 {
			n++
			id := fmt.Sprintf("p-%03d", n)
			t := demoTypes[(zi+i)%len(demoTypes)]
			status := statuses[(zi+i)%len(statuses)]
			price := float64(150_000 + 35_000*i + 10_000*zi)
			if status != "Buy" {
				price = float64(700 + 150*i + 50*zi)
			}
			if err := s.Insert(backend.TableProperties, backend.Row{
				"id":          id,
				"title":       fmt.Sprintf("%s in %s", t["name"], z.area),
				"price":       price,
				"bedrooms":    1 + i%4,
				"bathrooms":   1 + i%2,
				"area_sqm":    float64(45 + 15*i),
				"status":      status,
				"cover_image": fmt.Sprintf("/img/%s.jpg", id),
				"zone_id":     z.id,
				"type_id":     t["id"],
			}); err != nil {
				return err
			}
			detail := backend.Row{"property_id": id, "ref_code": fmt.Sprintf("REF-%03d", n)}
			// every fifth listing has no geocode yet
			if n%5 != 0 {
				detail["lat"] = z.lat + float64(i)*0.002
				detail["lng"] = z.lng - float64(i)*0.002
			}
			if err := s.Insert(backend.TableDetails, detail); err != nil {
				return err
			}
			if err := s.Insert(backend.TableFeatures, backend.Row{
				"property_id":      id,
				"pool":             i%3 == 0,
				"garage":           i%2 == 0,
				"sea_view":         z.city == "Málaga" || z.city == "Porto",
				"garden":           t["id"] == "house",
				"terrace":          i%2 == 1,
				"elevator":         t["id"] != "house",
				"air_conditioning": zi%2 == 0,
				"furnished":        status != "Buy",
				"parking":          i%3 != 2,
				"storage":          i == 5,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
