package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
)

func recs(ids ...string) []cases.Record {
	out := make([]cases.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, cases.Record{ID: id})
	}
	return out
}

func TestSelectDeselectToggle(t *testing.T) {
	c := New(Options{})

	c.Select("a")
	c.Select("b")
	c.Select("a")
	assert.Equal(t, 2, c.Size())
	assert.True(t, c.Contains("a"))

	c.Deselect("a")
	assert.False(t, c.Contains("a"))

	assert.True(t, c.Toggle("c"))
	assert.False(t, c.Toggle("c"))
	assert.Equal(t, []string{"b"}, c.IDs())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestSelectAllOnlyVisible(t *testing.T) {
	all := []cases.Record{
		{ID: "v1", Status: cases.StatusOpen}, {ID: "h1", Status: cases.StatusReviewCompleted},
		{ID: "v2", Status: cases.StatusOpen}, {ID: "v3", Status: cases.StatusOpen},
		{ID: "h2", Status: cases.StatusReviewCompleted}, {ID: "v4", Status: cases.StatusOpen},
		{ID: "v5", Status: cases.StatusOpen},
	}
	e := filter.NewEngine()
	e.SetDimension(filter.DimStatuses, []string{"open"})
	view := e.View(all)
	assert.Len(t, view, 5)

	c := New(Options{})
	c.Select("h1")
	c.SelectAll(view)

	assert.Equal(t, 5, c.Size())
	assert.False(t, c.Contains("h1"), "previous selection replaced")
	assert.False(t, c.Contains("h2"))
	assert.Equal(t, []string{"v1", "v2", "v3", "v4", "v5"}, c.IDsIn(view))
}

func TestBindClearsOnViewChange(t *testing.T) {
	e := filter.NewEngine()
	c := New(Options{})
	c.Bind(e)

	c.Select("a")
	e.Toggle(filter.DimPriorities, "critical")
	assert.Equal(t, 0, c.Size())

	c.Select("a")
	e.SetSearch("chest")
	assert.Equal(t, 0, c.Size())

	c.Select("a")
	e.SetSort(filter.SortPriority)
	assert.Equal(t, 0, c.Size())

	c.Select("a")
	e.ClearAll()
	assert.Equal(t, 0, c.Size())
}

func TestOnChangeReportsSize(t *testing.T) {
	c := New(Options{})
	var sizes []int
	c.OnChange(func(n int) { sizes = append(sizes, n) })

	c.SelectAll(recs("a", "b", "c"))
	c.Deselect("b")
	c.Deselect("b")
	c.Clear()
	c.Clear()
	assert.Equal(t, []int{3, 2, 0}, sizes)
}
