package filter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineNotifiesOnChange(t *testing.T) {
	e := NewEngine()
	var calls int
	var last State
	e.OnChange(func(s State, _ SortKey) {
		calls++
		last = s
	})

	e.Toggle(DimPriorities, "critical")
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"critical"}, last.Priorities)

	e.SetSearch("chest")
	e.SetSearch("chest")
	assert.Equal(t, 2, calls, "same search must not notify")

	e.SetSort(SortPriority)
	e.SetSort(SortPriority)
	assert.Equal(t, 3, calls)

	from := baseTime
	e.SetDateRange(&from, nil)
	assert.Equal(t, 4, calls)

	e.SetDimension(DimSource, []string{"manual"})
	assert.Equal(t, 5, calls)

	e.ClearAll()
	assert.Equal(t, 6, calls)
	assert.True(t, e.State().IsEmpty())
	assert.Equal(t, SortPriority, e.SortKey())

	e.ClearAll()
	assert.Equal(t, 6, calls, "clearing an empty state is not a change")
}

func TestEngineView(t *testing.T) {
	recs := sampleCases(t)
	e := NewEngine()
	e.SetDimension(DimImageTypes, []string{"ct"})
	e.SetSort(SortOldest)

	assert.Equal(t, []string{"c4", "c1"}, ids(e.View(recs)))
}

func TestEngineStateIsCopy(t *testing.T) {
	e := NewEngine()
	e.Toggle(DimStatuses, "open")

	s := e.State()
	s.Statuses[0] = "tampered"
	assert.Equal(t, []string{"open"}, e.State().Statuses)
}

func TestEngineConcurrentUse(t *testing.T) {
	recs := sampleCases(t)
	e := NewEngine()
	var mu sync.Mutex
	notified := 0
	e.OnChange(func(State, SortKey) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.Toggle(DimPriorities, "critical")
				_ = e.View(recs)
				if j%10 == 0 {
					now := time.Now()
					e.SetDateRange(nil, &now)
				}
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, notified, 0)
}
