package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/listing-search/internal/backend"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
)

// revisionLedger remembers the newest applied revision per listing and
// table. Property, detail and feature events share the listing id, so one
// entry holds all three and is evicted as a unit. Catalog rows (zones,
// types) and id-less events are tracked under "table/id".
//
// A property delete at rev R also stamps its detail and feature tables
// with R, so late child updates from before the delete are ignored.
type revisionLedger struct {
	mu  sync.Mutex
	lru *lru.Cache[string, map[string]uint64]
}

func newRevisionLedger(size int) *revisionLedger {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, map[string]uint64](size)
	return &revisionLedger{lru: c}
}

func ledgerKey(ev invalidation.Event) string {
	switch ev.Table {
	case backend.TableProperties, backend.TableDetails, backend.TableFeatures:
		if ev.ID != "" {
			return "listing/" + ev.ID
		}
	}
	return ev.DedupeKey()
}

// admit reports whether ev is newer than anything applied for its listing
// and table, and records it when it is. Events without a revision are
// always admitted and never recorded.
func (l *revisionLedger) admit(ev invalidation.Event) bool {
	if ev.Rev == 0 {
		return true
	}
	key := ledgerKey(ev)

	l.mu.Lock()
	defer l.mu.Unlock()
	revs, ok := l.lru.Get(key)
	if !ok {
		revs = map[string]uint64{}
	}
	if ev.Rev <= revs[ev.Table] {
		return false
	}
	for _, t := range ev.Tables() {
		if ev.Rev > revs[t] {
			revs[t] = ev.Rev
		}
	}
	l.lru.Add(key, revs)
	return true
}

func (l *revisionLedger) Len() int { return l.lru.Len() }
