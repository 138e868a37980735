package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadinessReporter is implemented by the invalidation runner.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Check is a named dependency probe, e.g. a Redis or PostgreSQL ping.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Readiness is ready when every check passes and, if rr is non-nil, the
// consumer group holds partitions.
func Readiness(rr ReadinessReporter, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string            `json:"status"`
			Partitions []int32           `json:"partitions,omitempty"`
			Failed     map[string]string `json:"failed,omitempty"`
		}
		out := resp{Status: "ready"}
		ready := true

		if rr != nil {
			ok, parts := rr.Readiness()
			if ok {
				out.Partitions = parts
			} else {
				ready = false
				out.Failed = map[string]string{"invalidation": "no partitions assigned"}
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				ready = false
				if out.Failed == nil {
					out.Failed = map[string]string{}
				}
				out.Failed[c.Name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			out.Partitions = nil
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
