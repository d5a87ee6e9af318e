// Package repository owns the canonical case collection. It fetches rows
// from a store, maps them into records, keeps them fresh by polling and
// applies local mutations immediately.
package repository

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/metrics"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// DefaultPollInterval is the refetch period used when none is configured.
const DefaultPollInterval = 60 * time.Second

// State is the fetch state of the repository.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Snapshot is a consistent copy of the repository at one version.
type Snapshot struct {
	Version uint64
	State   State
	Err     error
	Cases   []cases.Record
}

// Options configures a Repository.
type Options struct {
	Store       store.Store
	Transformer *cases.Transformer
	// Bus receives notifications and case changes; nil disables both.
	Bus     bus.Bus
	Metrics *metrics.ConsoleMetrics
	Logger  *zap.Logger
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// FetchTimeout bounds background poll fetches. Default 30s.
	FetchTimeout time.Duration
	// Origin identifies this console on the change stream. Default: random.
	Origin string
}

// Repository is safe for concurrent use. Callers always receive copies of
// the collection.
type Repository struct {
	store        store.Store
	tr           *cases.Transformer
	bus          bus.Bus
	metrics      *metrics.ConsoleMetrics
	logger       *zap.Logger
	interval     time.Duration
	fetchTimeout time.Duration
	origin       string

	mu         sync.RWMutex
	cases      []cases.Record
	version    uint64
	state      State
	lastErr    error
	appliedSeq uint64
	closed     bool
	listeners  []func(Snapshot)

	fetchSeq atomic.Uint64
	inFlight atomic.Int32

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a repository with an empty collection.
func New(opts Options) *Repository {
	r := &Repository{
		store:        opts.Store,
		tr:           opts.Transformer,
		bus:          opts.Bus,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		interval:     opts.PollInterval,
		fetchTimeout: opts.FetchTimeout,
		origin:       opts.Origin,
		cases:        []cases.Record{},
	}
	if r.tr == nil {
		r.tr = cases.NewTransformer()
	}
	if r.bus == nil {
		r.bus = bus.NewNullBus(nil)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.interval <= 0 {
		r.interval = DefaultPollInterval
	}
	if r.fetchTimeout <= 0 {
		r.fetchTimeout = 30 * time.Second
	}
	if r.origin == "" {
		r.origin = uuid.NewString()
	}
	r.logger = r.logger.With(zap.String("component", "repository"))
	return r
}

// Origin returns the id this repository stamps on published case changes.
func (r *Repository) Origin() string { return r.origin }

// FetchAll replaces the collection with every case visible to principal:
// cases it owns plus unowned ones, newest first, archived ones excluded.
// A nil principal empties the collection and returns store.ErrNoPrincipal.
// On a store failure the previous collection is kept.
func (r *Repository) FetchAll(ctx context.Context, principal *store.Principal) ([]cases.Record, error) {
	seq := r.fetchSeq.Add(1)
	r.setLoading(seq)

	if principal == nil || principal.ID == "" {
		r.apply(seq, []cases.Record{}, store.ErrNoPrincipal)
		r.metrics.RecordFetch(metrics.ResultAuth, 0)
		r.notify(ctx, bus.KindAuth, "No active session: sign in to see cases")
		return []cases.Record{}, fmt.Errorf("failed to fetch cases: %w", store.ErrNoPrincipal)
	}

	start := time.Now()
	rows, err := r.store.Query(ctx, store.VisibleTo(principal.ID))
	if err != nil {
		r.fail(seq, err)
		r.metrics.RecordFetch(metrics.ResultError, 0)
		r.logger.Warn("fetch failed", zap.Error(err))
		r.notify(ctx, bus.KindError, fmt.Sprintf("Could not load cases: %v", err))
		return nil, fmt.Errorf("failed to fetch cases: %w", err)
	}

	recs := make([]cases.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, r.tr.Transform(row))
	}

	if !r.apply(seq, recs, nil) {
		r.metrics.RecordFetch(metrics.ResultStale, 0)
		r.logger.Debug("discarded stale fetch", zap.Uint64("seq", seq))
	} else {
		r.metrics.RecordFetch(metrics.ResultSuccess, time.Since(start))
	}
	return copyRecords(recs), nil
}

// Refetch resolves the current principal and re-runs FetchAll.
func (r *Repository) Refetch(ctx context.Context) error {
	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	principal, err := r.store.CurrentPrincipal(ctx)
	if err != nil {
		seq := r.fetchSeq.Add(1)
		r.fail(seq, err)
		r.metrics.RecordFetch(metrics.ResultError, 0)
		r.notify(ctx, bus.KindError, fmt.Sprintf("Could not resolve session: %v", err))
		return fmt.Errorf("failed to resolve principal: %w", err)
	}
	_, err = r.FetchAll(ctx, principal)
	return err
}

// AddCase maps row and prepends it to the collection.
func (r *Repository) AddCase(row store.Row) cases.Record {
	rec := r.tr.Transform(row)
	r.mutate(func(list []cases.Record) ([]cases.Record, bool) {
		out := make([]cases.Record, 0, len(list)+1)
		out = append(out, rec)
		return append(out, list...), true
	})
	return rec
}

// UpdateCase replaces the record with the same id. It reports false, and
// changes nothing, when no such record is held.
func (r *Repository) UpdateCase(rec cases.Record) bool {
	return r.mutate(func(list []cases.Record) ([]cases.Record, bool) {
		i := indexOf(list, rec.ID)
		if i < 0 {
			return list, false
		}
		out := copyRecords(list)
		out[i] = rec
		return out, true
	})
}

// removeCase drops the record with id from the collection.
func (r *Repository) removeCase(id string) bool {
	return r.mutate(func(list []cases.Record) ([]cases.Record, bool) {
		i := indexOf(list, id)
		if i < 0 {
			return list, false
		}
		out := make([]cases.Record, 0, len(list)-1)
		out = append(out, list[:i]...)
		return append(out, list[i+1:]...), true
	})
}

// Create inserts row into the store and prepends the stored case.
func (r *Repository) Create(ctx context.Context, row store.Row) (cases.Record, error) {
	stored, err := r.store.Insert(ctx, store.TableCases, row)
	if err != nil {
		r.notify(ctx, bus.KindError, fmt.Sprintf("Could not create case: %v", err))
		return cases.Record{}, fmt.Errorf("failed to create case: %w", err)
	}
	rec := r.AddCase(stored)
	r.publish(ctx, rec.ID, bus.ActionCreated, nil)
	return rec, nil
}

// requireLoaded rejects ids outside the collection. Mutations only ever
// touch cases the principal can see.
func (r *Repository) requireLoaded(op, id string) error {
	if _, ok := r.Get(id); !ok {
		return fmt.Errorf("failed to %s case %s: not in the loaded collection: %w", op, id, store.ErrNotFound)
	}
	return nil
}

// Patch updates the stored case and then the local record, re-deriving
// priority and the other computed fields.
func (r *Repository) Patch(ctx context.Context, id string, patch store.Row) error {
	if err := r.requireLoaded("update", id); err != nil {
		return err
	}
	if err := r.store.Update(ctx, store.TableCases, id, patch); err != nil {
		return fmt.Errorf("failed to update case %s: %w", id, err)
	}

	now := r.tr.Now()
	r.mutate(func(list []cases.Record) ([]cases.Record, bool) {
		i := indexOf(list, id)
		if i < 0 {
			return list, false
		}
		out := copyRecords(list)
		out[i] = cases.ApplyPatch(out[i], patch, now)
		return out, true
	})

	fields := make(map[string]string, len(patch))
	for k, v := range patch {
		fields[k] = store.AsString(v)
	}
	r.publish(ctx, id, bus.ActionUpdated, fields)
	return nil
}

// Archive flags the stored case as archived and drops it from the collection.
func (r *Repository) Archive(ctx context.Context, id string) error {
	if err := r.requireLoaded("archive", id); err != nil {
		return err
	}
	if err := r.store.Update(ctx, store.TableCases, id, store.Row{store.ColArchived: true}); err != nil {
		return fmt.Errorf("failed to archive case %s: %w", id, err)
	}
	r.removeCase(id)
	r.publish(ctx, id, bus.ActionArchived, nil)
	return nil
}

// Delete removes the case from the store and the collection.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.requireLoaded("delete", id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, store.TableCases, id); err != nil {
		return fmt.Errorf("failed to delete case %s: %w", id, err)
	}
	r.removeCase(id)
	r.publish(ctx, id, bus.ActionDeleted, nil)
	return nil
}

// AttachImage uploads data as the case image and records the stored path.
func (r *Repository) AttachImage(ctx context.Context, id, fileName string, data []byte) (string, error) {
	stored, err := r.store.UploadBlob(ctx, store.BucketImages, path.Join(id, path.Base(fileName)), data)
	if err != nil {
		return "", fmt.Errorf("failed to upload image for case %s: %w", id, err)
	}
	if err := r.Patch(ctx, id, store.Row{store.ColImageData: stored}); err != nil {
		return "", err
	}
	r.publish(ctx, id, bus.ActionAttached, map[string]string{store.ColImageData: stored})
	return stored, nil
}

// Get returns the record with id.
func (r *Repository) Get(id string) (cases.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.cases, id); i >= 0 {
		return r.cases[i], true
	}
	return cases.Record{}, false
}

// Cases returns a copy of the collection.
func (r *Repository) Cases() []cases.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRecords(r.cases)
}

// Snapshot returns the collection together with its version and state.
func (r *Repository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Version increases on every change to the collection.
func (r *Repository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// State returns the fetch state.
func (r *Repository) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error of the last failed fetch, if the latest fetch failed.
func (r *Repository) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// OnChange registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change, outside the repository lock.
func (r *Repository) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// setLoading marks fetch seq as running unless a newer fetch already applied.
func (r *Repository) setLoading(seq uint64) {
	r.mu.Lock()
	if !r.closed && seq >= r.appliedSeq {
		r.state = StateLoading
	}
	r.mu.Unlock()
}

// apply installs the result of fetch seq. Results older than the last
// applied fetch are dropped, as is everything after Close.
func (r *Repository) apply(seq uint64, recs []cases.Record, fetchErr error) bool {
	r.mu.Lock()
	if r.closed || seq < r.appliedSeq {
		r.mu.Unlock()
		return false
	}
	r.appliedSeq = seq
	r.cases = recs
	r.version++
	r.state = StateReady
	r.lastErr = fetchErr
	snap, listeners := r.snapshotLocked(), r.listenersLocked()
	r.mu.Unlock()

	r.metrics.SetCollectionSize(len(recs))
	notifyListeners(listeners, snap)
	return true
}

// fail records a failed fetch and keeps the last good collection.
func (r *Repository) fail(seq uint64, err error) {
	r.mu.Lock()
	if r.closed || seq < r.appliedSeq {
		r.mu.Unlock()
		return
	}
	r.appliedSeq = seq
	r.state = StateError
	r.lastErr = err
	snap, listeners := r.snapshotLocked(), r.listenersLocked()
	r.mu.Unlock()

	notifyListeners(listeners, snap)
}

// mutate applies a local change in call order.
func (r *Repository) mutate(fn func([]cases.Record) ([]cases.Record, bool)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	next, changed := fn(r.cases)
	if !changed {
		r.mu.Unlock()
		return false
	}
	r.cases = next
	r.version++
	snap, listeners := r.snapshotLocked(), r.listenersLocked()
	r.mu.Unlock()

	r.metrics.SetCollectionSize(len(next))
	notifyListeners(listeners, snap)
	return true
}

func (r *Repository) snapshotLocked() Snapshot {
	return Snapshot{
		Version: r.version,
		State:   r.state,
		Err:     r.lastErr,
		Cases:   copyRecords(r.cases),
	}
}

func (r *Repository) listenersLocked() []func(Snapshot) {
	return append([]func(Snapshot){}, r.listeners...)
}

func notifyListeners(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}

func (r *Repository) notify(ctx context.Context, kind, msg string) {
	n := bus.Notification{Kind: kind, Message: msg, Source: "repository", Timestamp: time.Now().Unix()}
	if err := r.bus.Notify(context.WithoutCancel(ctx), n); err != nil {
		r.logger.Debug("notification not delivered", zap.Error(err))
	}
}

func (r *Repository) publish(ctx context.Context, id, action string, fields map[string]string) {
	c := bus.CaseChange{
		CaseID:    id,
		Action:    action,
		Origin:    r.origin,
		Fields:    fields,
		Timestamp: time.Now().Unix(),
	}
	if p, err := r.store.CurrentPrincipal(ctx); err == nil && p != nil {
		c.Actor = p.ID
	}
	if err := r.bus.PublishCaseChange(context.WithoutCancel(ctx), c); err != nil {
		r.logger.Debug("case change not published", zap.String("case_id", id), zap.Error(err))
	}
}

func indexOf(list []cases.Record, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func copyRecords(in []cases.Record) []cases.Record {
	out := make([]cases.Record, len(in))
	copy(out, in)
	return out
}

// IsAuthError reports whether err means there is no session.
func IsAuthError(err error) bool {
	return errors.Is(err, store.ErrNoPrincipal)
}
