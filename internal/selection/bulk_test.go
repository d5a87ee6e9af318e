package selection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

var errRejected = errors.New("rejected by store")

type fakeMutator struct {
	mu       sync.Mutex
	records  map[string]cases.Record
	failIDs  map[string]bool
	patches  map[string]store.Row
	archived []string
	deleted  []string
	delay    time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeMutator(ids ...string) *fakeMutator {
	m := &fakeMutator{
		records: map[string]cases.Record{},
		failIDs: map[string]bool{},
		patches: map[string]store.Row{},
	}
	for _, id := range ids {
		m.records[id] = cases.Record{ID: id, PatientName: "Patient " + id, Status: cases.StatusOpen}
	}
	return m
}

func (m *fakeMutator) enter() func() {
	n := m.active.Add(1)
	for {
		max := m.maxActive.Load()
		if n <= max || m.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return func() { m.active.Add(-1) }
}

func (m *fakeMutator) Get(id string) (cases.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

func (m *fakeMutator) Patch(ctx context.Context, id string, patch store.Row) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[id] {
		return errRejected
	}
	m.patches[id] = patch
	return nil
}

func (m *fakeMutator) Archive(ctx context.Context, id string) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[id] {
		return errRejected
	}
	m.archived = append(m.archived, id)
	return nil
}

func (m *fakeMutator) Delete(ctx context.Context, id string) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[id] {
		return errRejected
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []string
}

func (a *fakeAuditor) LogCaseAction(ctx context.Context, caseID, action, actor string, details map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, fmt.Sprintf("%s:%s:%s", action, caseID, actor))
	return nil
}

func tenIDs() []string {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("case-%02d", i+1)
	}
	return ids
}

func TestBulkStatusPartialFailure(t *testing.T) {
	ids := tenIDs()
	m := newFakeMutator(ids...)
	m.failIDs["case-04"] = true
	audit := &fakeAuditor{}
	c := New(Options{Mutator: m, Auditor: audit, Actor: "alice"})

	res := c.DispatchBulk(context.Background(), StatusOp(cases.StatusReviewCompleted), ids)

	require.Len(t, res.Items, 10)
	for i, it := range res.Items {
		assert.Equal(t, ids[i], it.ID, "results keep input order")
	}
	assert.Equal(t, "9 of 10 succeeded", res.Summary())
	assert.Len(t, res.Succeeded(), 9)
	assert.Len(t, m.patches, 9, "the other nine are applied and kept")
	assert.Equal(t, store.Row{store.ColStatus: "review-completed"}, m.patches["case-05"])

	err := res.Err()
	require.Error(t, err)
	var pf *PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, []string{"case-04"}, pf.FailedIDs())
	assert.Equal(t, 10, pf.Total)
	assert.ErrorIs(t, pf.Failed[0].Err, errRejected)
	assert.Contains(t, err.Error(), "1 of 10 failed")

	assert.Len(t, audit.entries, 9)
	assert.Contains(t, audit.entries, "status:case-01:alice")
	assert.NotContains(t, audit.entries, "status:case-04:alice")
}

func TestBulkAllSucceeded(t *testing.T) {
	m := newFakeMutator("a", "b")
	c := New(Options{Mutator: m})
	res := c.DispatchBulk(context.Background(), AssignOp(" dr.grey "), []string{"a", "b", "a", ""})

	assert.NoError(t, res.Err())
	assert.Equal(t, "2 of 2 succeeded", res.Summary())
	assert.Equal(t, store.Row{store.ColAssignedTo: "dr.grey"}, m.patches["a"])
	assert.NotEmpty(t, res.BatchID)
}

func TestBulkPriorityWritesSeverity(t *testing.T) {
	m := newFakeMutator("a")
	c := New(Options{Mutator: m})
	res := c.DispatchBulk(context.Background(), PriorityOp(derive.PriorityCritical), []string{"a"})
	require.NoError(t, res.Err())

	patch := m.patches["a"]
	sev, ok := store.AsInt(patch[store.ColSeverityRating])
	require.True(t, ok)
	assert.Equal(t, derive.PriorityCritical, derive.SeverityToPriority(sev))
	assert.Equal(t, "critical", patch[store.ColPriority])
}

func TestBulkArchiveAndDeleteTrimSelection(t *testing.T) {
	m := newFakeMutator("a", "b", "c", "d")
	m.failIDs["b"] = true
	c := New(Options{Mutator: m})
	c.SelectAll(recs("a", "b", "c", "d"))

	res := c.DispatchBulk(context.Background(), ArchiveOp(), []string{"a", "b"})
	assert.Equal(t, "1 of 2 succeeded", res.Summary())
	assert.Equal(t, []string{"b", "c", "d"}, c.IDs())

	res = c.DispatchBulk(context.Background(), DeleteOp(), []string{"c"})
	require.NoError(t, res.Err())
	assert.Equal(t, []string{"b", "d"}, c.IDs())
	assert.Equal(t, []string{"c"}, m.deleted)

	// status updates leave the selection alone
	c.DispatchBulk(context.Background(), StatusOp(cases.StatusInProgress), []string{"d"})
	assert.Equal(t, []string{"b", "d"}, c.IDs())
}

func TestBulkInvalidOperation(t *testing.T) {
	m := newFakeMutator("a", "b")
	c := New(Options{Mutator: m})

	res := c.DispatchBulk(context.Background(), StatusOp("rejected"), []string{"a", "b"})
	assert.Equal(t, "0 of 2 succeeded", res.Summary())
	assert.Empty(t, m.patches)

	res = c.DispatchBulk(context.Background(), Operation{Kind: "merge"}, []string{"a"})
	assert.Error(t, res.Err())

	res = c.DispatchBulk(context.Background(), PriorityOp("urgent"), []string{"a"})
	assert.Error(t, res.Err())

	res = New(Options{}).DispatchBulk(context.Background(), ArchiveOp(), []string{"a"})
	assert.Error(t, res.Err())
}

func TestBulkRespectsConcurrencyLimit(t *testing.T) {
	ids := tenIDs()
	m := newFakeMutator(ids...)
	m.delay = 5 * time.Millisecond
	c := New(Options{Mutator: m, Concurrency: 2})

	res := c.DispatchBulk(context.Background(), StatusOp(cases.StatusInProgress), ids)
	require.NoError(t, res.Err())
	assert.LessOrEqual(t, m.maxActive.Load(), int32(2))
}

func TestBulkRateLimited(t *testing.T) {
	ids := tenIDs()[:4]
	m := newFakeMutator(ids...)
	c := New(Options{Mutator: m, Concurrency: 4, RPS: 1000})

	res := c.DispatchBulk(context.Background(), StatusOp(cases.StatusOpen), ids)
	assert.NoError(t, res.Err())
}

func TestBulkCancelledContext(t *testing.T) {
	m := newFakeMutator("a", "b")
	c := New(Options{Mutator: m})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.DispatchBulk(ctx, DeleteOp(), []string{"a", "b"})
	assert.Equal(t, "0 of 2 succeeded", res.Summary())
	for _, it := range res.Failed() {
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
	assert.Empty(t, m.deleted)
}

func TestBulkExport(t *testing.T) {
	m := newFakeMutator("a", "b")
	m.records["a"] = cases.Record{
		ID: "a", PatientName: "Ana", Priority: derive.PriorityHigh, SeverityRating: 7,
		AIConfidence: 40, Findings: "Confidence: 88%", Status: cases.StatusOpen,
	}
	dir := t.TempDir()
	audit := &fakeAuditor{}
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	c := New(Options{Mutator: m, Auditor: audit, ExportDir: dir, Now: func() time.Time { return fixed }})

	res := c.DispatchBulk(context.Background(), ExportOp(""), []string{"a", "missing", "b"})
	assert.Equal(t, "2 of 3 succeeded", res.Summary())
	assert.Equal(t, filepath.Join(dir, "cases-20260304-050607.xlsx"), res.ExportPath)
	require.Len(t, res.Failed(), 1)
	assert.ErrorIs(t, res.Failed()[0].Err, ErrCaseNotLoaded)
	assert.Len(t, audit.entries, 2)

	f, err := excelize.OpenFile(res.ExportPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ExportHeader[0], rows[0][0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "Ana", rows[1][1])
	assert.Equal(t, "high", rows[1][6])
	assert.Equal(t, "40", rows[1][8])
	assert.Equal(t, "88", rows[1][9])
	assert.Equal(t, "b", rows[2][0])
}

type failingExporter struct{}

func (failingExporter) Export(string, []cases.Record) error { return errors.New("disk full") }

func TestBulkExportWriteFailure(t *testing.T) {
	m := newFakeMutator("a", "b")
	c := New(Options{Mutator: m, Exporter: failingExporter{}})

	res := c.DispatchBulk(context.Background(), ExportOp("out.xlsx"), []string{"a", "b"})
	assert.Equal(t, "0 of 2 succeeded", res.Summary())
	assert.Empty(t, res.ExportPath)
}
