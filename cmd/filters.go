package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/repository"
)

// filterFlags carries the view selection shared by list and bulk.
type filterFlags struct {
	priorities []string
	statuses   []string
	imageTypes []string
	bodyParts  []string
	assignedTo []string
	source     []string
	confidence []string
	search     string
	from       string
	to         string
	sortKey    string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.priorities, "priority", nil, "Priorities to include (critical, high, medium, low)")
	fs.StringSliceVar(&f.statuses, "status", nil, "Statuses to include (open, in-progress, review-completed)")
	fs.StringSliceVar(&f.imageTypes, "image-type", nil, "Image types to include, e.g. \"CT Chest\"")
	fs.StringSliceVar(&f.bodyParts, "body-part", nil, "Body parts to include")
	fs.StringSliceVar(&f.assignedTo, "assigned-to", nil, "Assignees to include (\"unassigned\" matches none)")
	fs.StringSliceVar(&f.source, "source", nil, "Sources to include (manual, system)")
	fs.StringSliceVar(&f.confidence, "confidence", nil, "AI confidence bands to include (low, medium, high)")
	fs.StringVar(&f.search, "search", "", "Free-text search over patient name, patient id, body part and findings")
	fs.StringVar(&f.from, "from", "", "Only cases created on or after this date (YYYY-MM-DD or RFC3339)")
	fs.StringVar(&f.to, "to", "", "Only cases created on or before this date (YYYY-MM-DD or RFC3339)")
	fs.StringVar(&f.sortKey, "sort", string(filter.SortNewest), "Sort order (newest, oldest, confidence-high, confidence-low, updated, priority)")
}

// state builds the filter state and sort key the flags describe.
func (f *filterFlags) state() (filter.State, filter.SortKey, error) {
	s := filter.NewState().
		With(filter.DimPriorities, f.priorities).
		With(filter.DimStatuses, f.statuses).
		With(filter.DimImageTypes, f.imageTypes).
		With(filter.DimBodyParts, f.bodyParts).
		With(filter.DimAssignedTo, f.assignedTo).
		With(filter.DimSource, f.source).
		With(filter.DimAIConfidence, f.confidence)
	s.Search = f.search

	if f.from != "" {
		t, err := parseDateFlag(f.from, false)
		if err != nil {
			return s, "", fmt.Errorf("invalid --from value: %w", err)
		}
		s.DateRange.From = &t
	}
	if f.to != "" {
		t, err := parseDateFlag(f.to, true)
		if err != nil {
			return s, "", fmt.Errorf("invalid --to value: %w", err)
		}
		s.DateRange.To = &t
	}

	key, err := filter.ParseSortKey(f.sortKey)
	if err != nil {
		return s, "", err
	}
	return s, key, nil
}

// parseDateFlag accepts RFC3339 or a bare local date. A bare --to date covers the whole day.
func parseDateFlag(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// loadView fetches every visible case and returns the filtered, sorted view.
func loadView(ctx context.Context, repo *repository.Repository, f *filterFlags) ([]cases.Record, error) {
	state, key, err := f.state()
	if err != nil {
		return nil, err
	}
	if err := repo.Refetch(ctx); err != nil {
		if repository.IsAuthError(err) {
			return nil, fmt.Errorf("no principal: set --principal or remote.access_token: %w", err)
		}
		return nil, err
	}
	return filter.Sort(filter.Apply(repo.Cases(), state), key), nil
}
