// Package hotness tracks how often each cached query is requested and maps
// that popularity onto cache TTLs.
package hotness

import "time"

type Interface interface {
	Inc(key string)
	Score(key string) float64
	Reset(keys ...string)
}

// TTLPolicy picks a TTL tier from a hotness score. Scores below Threshold
// are cold, at least Threshold are warm, at least 4x Threshold are hot.
type TTLPolicy struct {
	Threshold float64
	Cold      time.Duration
	Warm      time.Duration
	Hot       time.Duration
}

func (p TTLPolicy) Tier(score float64) string {
	switch {
	case p.Threshold <= 0:
		return "cold"
	case score >= 4*p.Threshold:
		return "hot"
	case score >= p.Threshold:
		return "warm"
	default:
		return "cold"
	}
}

func (p TTLPolicy) TTL(score float64) time.Duration {
	switch p.Tier(score) {
	case "hot":
		if p.Hot > 0 {
			return p.Hot
		}
		fallthrough
	case "warm":
		if p.Warm > 0 {
			return p.Warm
		}
	}
	return p.Cold
}
