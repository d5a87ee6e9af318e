package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{in: 9, want: 9, ok: true},
		{in: int64(4), want: 4, ok: true},
		{in: 7.6, want: 8, ok: true},
		{in: json.Number("60"), want: 60, ok: true},
		{in: " 82% ", want: 82, ok: true},
		{in: "6.4", want: 6, ok: true},
		{in: "high", ok: false},
		{in: nil, ok: false},
		{in: true, ok: false},
	}
	for _, tt := range tests {
		got, ok := AsInt(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%#v", tt.in)
		}
	}
}

func TestAsTime(t *testing.T) {
	want := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	assert.True(t, AsTime("2026-05-04T10:30:00Z").Equal(want))
	assert.True(t, AsTime("2026-05-04 10:30:00").Equal(want))
	assert.True(t, AsTime(want.Unix()).Equal(want))
	assert.True(t, AsTime(want.UnixMilli()).Equal(want))
	assert.True(t, AsTime(float64(want.Unix())).Equal(want))
	assert.True(t, AsTime(want).Equal(want))
	assert.True(t, AsTime("yesterday").IsZero())
	assert.True(t, AsTime(nil).IsZero())
	assert.True(t, AsTime(0).IsZero())
}

func TestAsBoolAndString(t *testing.T) {
	assert.True(t, AsBool(true))
	assert.True(t, AsBool("true"))
	assert.True(t, AsBool(int64(1)))
	assert.False(t, AsBool("nope"))
	assert.False(t, AsBool(nil))

	assert.Equal(t, "", AsString(nil))
	assert.Equal(t, "CT", AsString("  CT "))
	assert.Equal(t, "42", AsString(42))
}
