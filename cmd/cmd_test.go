package cmd

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/metrics"
	"github.com/Ashfaaq98/imaging-case-console/internal/repository"
	"github.com/Ashfaaq98/imaging-case-console/internal/selection"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

// changeBus delivers case changes sent on its channel.
type changeBus struct {
	*bus.NullBus
	changes chan bus.CaseChange
}

func (cb *changeBus) ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, c bus.CaseChange) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-cb.changes:
			if err := handler(ctx, c); err != nil {
				return err
			}
		}
	}
}

func newTestBackend(t *testing.T, b bus.Bus) *backend {
	t.Helper()
	s, err := store.NewStore(store.Options{Path: filepath.Join(t.TempDir(), "cases.db"), PrincipalID: "alice"})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewConsoleMetrics(registry)
	require.NoError(t, err)

	tee := bus.NewTee(b)
	be := &backend{
		store:    s,
		sql:      s,
		tee:      tee,
		registry: registry,
		metrics:  m,
		repo:     repository.New(repository.Options{Store: s, Bus: tee, Metrics: m, PollInterval: time.Hour}),
		logger:   zap.NewNop(),
	}
	t.Cleanup(be.Close)
	return be
}

func TestFilterFlagsState(t *testing.T) {
	f := filterFlags{
		priorities: []string{"Critical", "high"},
		source:     []string{"manual"},
		search:     "chest",
		from:       "2026-03-01",
		to:         "2026-03-02",
		sortKey:    "confidence-low",
	}
	s, key, err := f.state()
	require.NoError(t, err)

	assert.Equal(t, []string{"critical", "high"}, s.Priorities)
	assert.Equal(t, []string{"manual"}, s.Source)
	assert.Empty(t, s.Statuses)
	assert.Equal(t, "chest", s.Search)
	assert.Equal(t, filter.SortConfidenceLow, key)

	require.NotNil(t, s.DateRange.From)
	require.NotNil(t, s.DateRange.To)
	assert.Equal(t, 1, s.DateRange.From.Day())
	assert.True(t, s.DateRange.To.Sub(*s.DateRange.From) > 47*time.Hour)

	_, _, err = (&filterFlags{sortKey: "sideways"}).state()
	assert.Error(t, err)
	_, _, err = (&filterFlags{from: "yesterday"}).state()
	assert.Error(t, err)
}

func TestParseOperation(t *testing.T) {
	op, err := parseOperation("status", []string{"in-progress"})
	require.NoError(t, err)
	assert.Equal(t, selection.StatusOp(cases.StatusInProgress), op)

	op, err = parseOperation("PRIORITY", []string{"critical"})
	require.NoError(t, err)
	assert.Equal(t, derive.PriorityCritical, op.Priority)

	op, err = parseOperation("assign", nil)
	require.NoError(t, err)
	assert.Equal(t, selection.OpAssign, op.Kind)
	assert.Empty(t, op.Assignee)

	op, err = parseOperation("archive", nil)
	require.NoError(t, err)
	assert.Equal(t, selection.OpArchive, op.Kind)

	_, err = parseOperation("status", []string{"done"})
	assert.Error(t, err)
	_, err = parseOperation("priority", []string{"urgent"})
	assert.Error(t, err)
	_, err = parseOperation("shred", nil)
	assert.Error(t, err)
}

func TestSelectTargetsNarrowsExplicitIDs(t *testing.T) {
	view := []cases.Record{{ID: "b"}, {ID: "a"}}

	sel := selection.New(selection.Options{})
	ids, dropped := selectTargets(sel, view, []string{"a", "hidden", "b"})
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, []string{"hidden"}, dropped)
	assert.False(t, sel.Contains("hidden"))

	sel = selection.New(selection.Options{})
	ids, dropped = selectTargets(sel, view, nil)
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Empty(t, dropped)
}

func TestSearchFlagHelpMatchesSearchedFields(t *testing.T) {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	(&filterFlags{}).register(fs)
	usage := fs.Lookup("search").Usage
	for _, field := range []string{"patient name", "patient id", "body part", "findings"} {
		assert.Contains(t, usage, field)
	}
	assert.NotContains(t, usage, "image type")
}

func TestBuildInfoLines(t *testing.T) {
	lines := buildInfoLines()
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "Module: "))
}

func TestSplitPatterns(t *testing.T) {
	assert.Equal(t, []string{"*.json", "*.jsonl"}, splitPatterns(" *.json , *.jsonl ,"))
	assert.Equal(t, []string{"*.jsonl", "*.json"}, splitPatterns(""))
}

func TestLoadViewFiltersAndSorts(t *testing.T) {
	be := newTestBackend(t, bus.NewNullBus(nil))
	ctx := context.Background()
	now := time.Now()
	for i, sev := range []int{9, 2, 7} {
		_, err := be.store.Insert(ctx, store.TableCases, store.Row{
			store.ColPatientName:    "Patient",
			store.ColSeverityRating: sev,
			store.ColCreatedAt:      now.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	view, err := loadView(ctx, be.repo, &filterFlags{priorities: []string{"critical", "high"}, sortKey: "oldest"})
	require.NoError(t, err)
	require.Len(t, view, 2)
	assert.Equal(t, 7, view[0].SeverityRating)
	assert.Equal(t, 9, view[1].SeverityRating)
}

func TestLoadViewWithoutPrincipal(t *testing.T) {
	be := newTestBackend(t, bus.NewNullBus(nil))
	be.sql.SetPrincipal("")

	_, err := loadView(context.Background(), be.repo, &filterFlags{})
	require.Error(t, err)
	assert.True(t, repository.IsAuthError(err))
}

func TestServiceCoordinatorRefetchesOnForeignChange(t *testing.T) {
	cb := &changeBus{NullBus: bus.NewNullBus(nil), changes: make(chan bus.CaseChange, 4)}
	be := newTestBackend(t, cb)

	sc := &ServiceCoordinator{backend: be, ctx: context.Background(), MetricsAddr: "127.0.0.1:0"}
	require.NoError(t, sc.Start())
	defer sc.Stop()

	require.Eventually(t, func() bool { return be.repo.State() == repository.StateReady }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, be.repo.Cases())

	// Written behind the repository's back, as another console would
	_, err := be.store.Insert(context.Background(), store.TableCases, store.Row{
		store.ColPatientName:    "Remote Patient",
		store.ColUserID:         "alice",
		store.ColSeverityRating: 8,
	})
	require.NoError(t, err)

	cb.changes <- bus.CaseChange{CaseID: "x", Action: bus.ActionCreated, Origin: be.repo.Origin()}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, be.repo.Cases(), "own changes are ignored")

	cb.changes <- bus.CaseChange{CaseID: "x", Action: bus.ActionCreated, Origin: "other-console"}
	require.Eventually(t, func() bool { return len(be.repo.Cases()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, derive.PriorityCritical, be.repo.Cases()[0].Priority)

	resp, err := http.Get("http://" + sc.listenAddr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "case_console_fetches_total")

	resp, err = http.Get("http://" + sc.listenAddr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServiceCoordinatorSkipsChangeHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	rb, err := bus.NewRedisBus("redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, rb.PublishCaseChange(ctx, bus.CaseChange{CaseID: "old", Action: bus.ActionUpdated, Origin: "other-console"}))
	}

	be := newTestBackend(t, rb)
	sc := &ServiceCoordinator{backend: be, ctx: ctx}
	require.NoError(t, sc.Start())
	require.Eventually(t, func() bool { return be.repo.State() == repository.StateReady }, 5*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	expected := `
# HELP case_console_fetches_total Total number of case collection fetches by result
# TYPE case_console_fetches_total counter
case_console_fetches_total{result="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(be.registry, strings.NewReader(expected), "case_console_fetches_total"))

	_, err = be.store.Insert(ctx, store.TableCases, store.Row{store.ColPatientName: "Live", store.ColUserID: "alice"})
	require.NoError(t, err)
	require.NoError(t, rb.PublishCaseChange(ctx, bus.CaseChange{CaseID: "live", Action: bus.ActionCreated, Origin: "other-console"}))
	require.Eventually(t, func() bool { return len(be.repo.Cases()) == 1 }, 5*time.Second, 10*time.Millisecond)

	sc.Stop()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	groups, err := client.XInfoGroups(ctx, bus.StreamCaseChanges).Result()
	require.NoError(t, err)
	assert.Empty(t, groups, "change group removed on stop")
}

func TestServiceCoordinatorStartTwice(t *testing.T) {
	be := newTestBackend(t, bus.NewNullBus(nil))
	sc := &ServiceCoordinator{backend: be, ctx: context.Background()}
	require.NoError(t, sc.Start())
	assert.Error(t, sc.Start())
	sc.Stop()
	sc.Stop()
}
