package model

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSet_Add(t *testing.T) {
	tests := []struct {
		name string
		ids  []int64
		want []Interval
	}{
		{name: "single", ids: []int64{3}, want: []Interval{{3, 3}}},
		{name: "extend right", ids: []int64{3, 4}, want: []Interval{{3, 4}}},
		{name: "extend left", ids: []int64{4, 3}, want: []Interval{{3, 4}}},
		{name: "disjoint", ids: []int64{1, 5}, want: []Interval{{1, 1}, {5, 5}}},
		{name: "bridge gap", ids: []int64{1, 3, 2}, want: []Interval{{1, 3}}},
		{name: "insert before", ids: []int64{10, 2}, want: []Interval{{2, 2}, {10, 10}}},
		{name: "insert middle", ids: []int64{0, 10, 5}, want: []Interval{{0, 0}, {5, 5}, {10, 10}}},
		{name: "duplicate is no-op", ids: []int64{1, 2, 1, 2}, want: []Interval{{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s IntervalSet
			for _, id := range tt.ids {
				s.Add(id)
			}
			assert.Equal(t, tt.want, s.Intervals())
		})
	}
}

func TestIntervalSet_AddReportsChange(t *testing.T) {
	var s IntervalSet
	assert.True(t, s.Add(7))
	assert.False(t, s.Add(7))
	assert.True(t, s.Contains(7))
	assert.False(t, s.Contains(8))
}

func TestIntervalSet_AnyOrderSameSet(t *testing.T) {
	ids := make([]int64, 0, 60)
	for i := int64(0); i < 60; i++ {
		if i%7 != 3 {
			ids = append(ids, i)
		}
	}

	var want IntervalSet
	for _, id := range ids {
		want.Add(id)
	}

	r := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		shuffled := append([]int64(nil), ids...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		var got IntervalSet
		for _, id := range shuffled {
			got.Add(id)
		}
		require.Equal(t, want.Intervals(), got.Intervals())
		assert.Equal(t, int64(len(ids)), got.Count())
	}
}

func TestIntervalSet_CoveredPages(t *testing.T) {
	i64 := func(v int64) *int64 { return &v }
	tests := []struct {
		name     string
		set      IntervalSet
		pageSize int
		total    *int64
		want     int64
	}{
		{name: "empty", pageSize: 10, want: 0},
		{name: "one full page", set: NewIntervalSet(Interval{0, 9}), pageSize: 10, want: 1},
		{name: "partial page", set: NewIntervalSet(Interval{0, 8}), pageSize: 10, want: 0},
		{name: "misaligned", set: NewIntervalSet(Interval{5, 24}), pageSize: 10, want: 1},
		{name: "short last page unknown total", set: NewIntervalSet(Interval{0, 14}), pageSize: 10, want: 1},
		{name: "short last page known total", set: NewIntervalSet(Interval{0, 14}), pageSize: 10, total: i64(15), want: 2},
		{name: "two intervals", set: NewIntervalSet(Interval{0, 9}, Interval{20, 29}), pageSize: 10, total: i64(40), want: 2},
		{name: "beyond total ignored", set: NewIntervalSet(Interval{10, 30}), pageSize: 10, total: i64(15), want: 1},
		{name: "zero total", set: NewIntervalSet(Interval{0, 3}), pageSize: 10, total: i64(0), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.CoveredPages(tt.pageSize, tt.total))
		})
	}
}

func TestIntervalSet_JSON(t *testing.T) {
	var s IntervalSet
	require.NoError(t, json.Unmarshal([]byte(`[[5,6],[0,2],[3,3]]`), &s))
	assert.Equal(t, []Interval{{0, 6}}, s.Intervals())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[[0,6]]`, string(b))

	var empty IntervalSet
	b, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`[[3,1]]`), &s))
}
