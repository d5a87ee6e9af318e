package filter

import (
	"sync"
	"time"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
)

// Engine owns the active filter state and sort key of one dashboard. Any
// caller may drive it; listeners registered with OnChange run after every
// change that alters the view, outside the engine lock.
type Engine struct {
	mu        sync.Mutex
	state     State
	sortKey   SortKey
	listeners []func(State, SortKey)
}

// NewEngine returns an engine with no constraints, sorted newest first.
func NewEngine() *Engine {
	return &Engine{state: NewState(), sortKey: SortNewest}
}

// State returns a copy of the active state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// SortKey returns the active sort key.
func (e *Engine) SortKey() SortKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortKey
}

// OnChange registers fn to run after every view-affecting change.
func (e *Engine) OnChange(fn func(State, SortKey)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Toggle flips value in dimension d.
func (e *Engine) Toggle(d Dimension, value string) {
	e.update(func(s State) State { return Toggle(s, d, value) })
}

// SetDimension replaces the values of dimension d.
func (e *Engine) SetDimension(d Dimension, values []string) {
	e.update(func(s State) State { return s.With(d, values) })
}

// SetSearch replaces the search term.
func (e *Engine) SetSearch(q string) {
	e.update(func(s State) State {
		s = s.Clone()
		s.Search = q
		return s
	})
}

// SetDateRange replaces the creation date bounds. Nil leaves a bound open.
func (e *Engine) SetDateRange(from, to *time.Time) {
	e.update(func(s State) State {
		s = s.Clone()
		s.DateRange = DateRange{}
		if from != nil {
			f := *from
			s.DateRange.From = &f
		}
		if to != nil {
			t := *to
			s.DateRange.To = &t
		}
		return s
	})
}

// Replace swaps in a whole new state.
func (e *Engine) Replace(next State) {
	e.update(func(State) State { return next.Clone() })
}

// ClearAll removes every constraint. The sort key is kept.
func (e *Engine) ClearAll() {
	e.update(ClearAll)
}

// SetSort changes the ordering of the view.
func (e *Engine) SetSort(key SortKey) {
	e.mu.Lock()
	if e.sortKey == key {
		e.mu.Unlock()
		return
	}
	e.sortKey = key
	state, listeners := e.state.Clone(), e.snapshotListeners()
	e.mu.Unlock()

	notify(listeners, state, key)
}

// View filters and sorts recs with the active state.
func (e *Engine) View(recs []cases.Record) []cases.Record {
	e.mu.Lock()
	state, key := e.state, e.sortKey
	e.mu.Unlock()
	return Sort(Apply(recs, state), key)
}

func (e *Engine) update(fn func(State) State) {
	e.mu.Lock()
	next := fn(e.state)
	if Equal(next, e.state) {
		e.mu.Unlock()
		return
	}
	e.state = next
	state, key, listeners := next.Clone(), e.sortKey, e.snapshotListeners()
	e.mu.Unlock()

	notify(listeners, state, key)
}

func (e *Engine) snapshotListeners() []func(State, SortKey) {
	return append([]func(State, SortKey){}, e.listeners...)
}

func notify(listeners []func(State, SortKey), s State, key SortKey) {
	for _, fn := range listeners {
		fn(s, key)
	}
}
