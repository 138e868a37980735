package filter

import (
	"sync"
)

// Store owns the filter state. It is the only writer: every change goes
// through Update, SetPage or Replace, is normalized, encoded and written to
// History with a replace (never a push), then broadcast to subscribers.
type Store struct {
	mu    sync.Mutex
	state State
	query string
	hist  History

	// serializes notifications so subscribers observe writes in order
	notifyMu sync.Mutex
	subs     map[int]func(State)
	nextSub  int
}

func NewStore(initialQuery string, hist History) *Store {
	st := Decode(initialQuery)
	s := &Store{
		state: st,
		query: Encode(st),
		hist:  hist,
		subs:  map[int]func(State){},
	}
	if hist != nil {
		hist.Replace(s.query)
	}
	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Subscribe registers fn for every accepted change; the returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.notifyMu.Lock()
		delete(s.subs, id)
		s.notifyMu.Unlock()
	}
}

// Update applies a filter change. Any change outside the page resets page to 1.
func (s *Store) Update(mutate func(*State)) bool {
	return s.write(func(cur State) State {
		next := cur.Clone()
		mutate(&next)
		next = Normalize(next)
		if pageless(next) != pageless(cur) {
			next.Page = 1
		}
		return next
	})
}

// SetPage is a page-navigation action; no other field changes.
func (s *Store) SetPage(page int) bool {
	return s.write(func(cur State) State {
		next := cur.Clone()
		next.Page = page
		return Normalize(next)
	})
}

// Replace adopts a whole query string, e.g. after back/forward navigation.
func (s *Store) Replace(query string) bool {
	return s.write(func(State) State { return Decode(query) })
}

func (s *Store) write(fn func(State) State) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := fn(s.state)
	q := Encode(next)
	if q == s.query {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.query = q
	s.mu.Unlock()

	if s.hist != nil {
		s.hist.Replace(q)
	}
	for _, fn := range s.subs {
		fn(next.Clone())
	}
	return true
}

func pageless(s State) string {
	s.Page = 1
	return Encode(s)
}
