// Package selection tracks the working set of case ids and fans bulk
// operations out across it.
package selection

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/metrics"
)

// Set is a set of case ids. It is not safe for concurrent use on its own.
type Set map[string]struct{}

// Add inserts id.
func (s Set) Add(id string) { s[id] = struct{}{} }

// Remove deletes id.
func (s Set) Remove(id string) { delete(s, id) }

// Contains reports whether id is in the set.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in sorted order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Options configures a Coordinator.
type Options struct {
	// Mutator applies per-case mutations; required for DispatchBulk.
	Mutator Mutator
	// Auditor records every successful sub-operation when set.
	Auditor  Auditor
	Exporter Exporter
	// ExportDir is used when an export operation names no path.
	ExportDir string
	// Concurrency bounds parallel sub-operations. Default 4.
	Concurrency int
	// RPS limits sub-operations per second; zero means unlimited.
	RPS float64
	// Actor is recorded in the audit log. Default "system".
	Actor   string
	Metrics *metrics.ConsoleMetrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Coordinator owns the selection of one dashboard and dispatches bulk
// operations. It is safe for concurrent use.
type Coordinator struct {
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger

	mu        sync.Mutex
	set       Set
	listeners []func(int)
}

// New creates a coordinator with an empty selection.
func New(opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Actor == "" {
		opts.Actor = "system"
	}
	if opts.Exporter == nil {
		opts.Exporter = XLSXExporter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Coordinator{
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "selection")),
		set:    Set{},
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c
}

// Bind clears the selection whenever the engine's view changes.
func (c *Coordinator) Bind(e *filter.Engine) {
	e.OnChange(func(filter.State, filter.SortKey) { c.Clear() })
}

// OnChange registers fn to receive the selection size after every change.
func (c *Coordinator) OnChange(fn func(size int)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Select adds id.
func (c *Coordinator) Select(id string) {
	c.update(func(s Set) bool {
		if s.Contains(id) {
			return false
		}
		s.Add(id)
		return true
	})
}

// Deselect removes id.
func (c *Coordinator) Deselect(id string) {
	c.update(func(s Set) bool {
		if !s.Contains(id) {
			return false
		}
		s.Remove(id)
		return true
	})
}

// Toggle flips id and reports whether it is now selected.
func (c *Coordinator) Toggle(id string) bool {
	var selected bool
	c.update(func(s Set) bool {
		if s.Contains(id) {
			s.Remove(id)
		} else {
			s.Add(id)
			selected = true
		}
		return true
	})
	return selected
}

// SelectAll replaces the selection with every id in view. Records that are
// not in view are never selected.
func (c *Coordinator) SelectAll(view []cases.Record) {
	c.update(func(s Set) bool {
		for id := range s {
			delete(s, id)
		}
		for _, r := range view {
			s.Add(r.ID)
		}
		return true
	})
}

// Clear empties the selection.
func (c *Coordinator) Clear() {
	c.update(func(s Set) bool {
		if len(s) == 0 {
			return false
		}
		for id := range s {
			delete(s, id)
		}
		return true
	})
}

// IDs returns the selected ids in sorted order.
func (c *Coordinator) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.IDs()
}

// IDsIn returns the selected ids in the order they appear in view.
func (c *Coordinator) IDsIn(view []cases.Record) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.set))
	for _, r := range view {
		if c.set.Contains(r.ID) {
			out = append(out, r.ID)
		}
	}
	return out
}

// Size returns the number of selected ids.
func (c *Coordinator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.set)
}

// Contains reports whether id is selected.
func (c *Coordinator) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.Contains(id)
}

func (c *Coordinator) update(fn func(Set) bool) {
	c.mu.Lock()
	if !fn(c.set) {
		c.mu.Unlock()
		return
	}
	size := len(c.set)
	listeners := append([]func(int){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(size)
	}
}
