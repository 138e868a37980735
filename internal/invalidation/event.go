// Package invalidation defines the listing-change events that retire cached
// query results.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/backend"
)

// Event announces that a row of a listing table changed.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Table   string    `json:"table"`
	ID      string    `json:"id,omitempty"`
	Rev     uint64    `json:"rev,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Table) == "" {
		return fmt.Errorf("table is required")
	}
	if _, ok := backend.Schema[e.Table]; !ok {
		return fmt.Errorf("table %q: %w", e.Table, backend.ErrUnknownTable)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Tables lists every table whose cached selects the change can affect.
// Deleting a property cascades to its details and feature rows.
func (e Event) Tables() []string {
	if e.Table == backend.TableProperties && e.Op == "delete" {
		return []string{backend.TableProperties, backend.TableDetails, backend.TableFeatures}
	}
	return []string{e.Table}
}

// DedupeKey identifies the row whose revisions are compared.
func (e Event) DedupeKey() string {
	if e.ID == "" {
		return e.Table
	}
	return e.Table + "/" + e.ID
}
