package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Interval is a closed range [Lo, Hi] of mol ids.
type Interval struct {
	Lo int64
	Hi int64
}

// IntervalSet is a sorted list of disjoint, non-adjacent closed intervals.
// The zero value is an empty set. It encodes to JSON as [[lo,hi],...].
type IntervalSet struct {
	ivs []Interval
}

// NewIntervalSet builds a set from arbitrary intervals, merging overlaps.
func NewIntervalSet(ivs ...Interval) IntervalSet {
	cp := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Lo <= iv.Hi {
			cp = append(cp, iv)
		}
	}
	return IntervalSet{ivs: normalize(cp)}
}

// Intervals returns a copy of the intervals in ascending order.
func (s IntervalSet) Intervals() []Interval {
	out := make([]Interval, len(s.ivs))
	copy(out, s.ivs)
	return out
}

// Contains reports whether id is in the set.
func (s IntervalSet) Contains(id int64) bool {
	i := sort.Search(len(s.ivs), func(i int) bool { return s.ivs[i].Hi >= id })
	return i < len(s.ivs) && s.ivs[i].Lo <= id
}

// Add inserts id, merging with neighbouring intervals. It reports whether the set changed.
func (s *IntervalSet) Add(id int64) bool {
	// first interval that ends at or after id-1
	i := sort.Search(len(s.ivs), func(i int) bool { return s.ivs[i].Hi >= id-1 })
	if i < len(s.ivs) && s.ivs[i].Lo <= id && id <= s.ivs[i].Hi {
		return false
	}

	switch {
	case i < len(s.ivs) && s.ivs[i].Hi == id-1:
		s.ivs[i].Hi = id
		if i+1 < len(s.ivs) && s.ivs[i+1].Lo == id+1 {
			s.ivs[i].Hi = s.ivs[i+1].Hi
			s.ivs = append(s.ivs[:i+1], s.ivs[i+2:]...)
		}
	case i < len(s.ivs) && s.ivs[i].Lo == id+1:
		s.ivs[i].Lo = id
	default:
		s.ivs = append(s.ivs, Interval{})
		copy(s.ivs[i+1:], s.ivs[i:])
		s.ivs[i] = Interval{Lo: id, Hi: id}
	}
	return true
}

// Count returns the number of ids in the set.
func (s IntervalSet) Count() int64 {
	var n int64
	for _, iv := range s.ivs {
		n += iv.Hi - iv.Lo + 1
	}
	return n
}

// CoveredPages counts pages of size pageSize whose whole window lies inside the set.
// With a known total the last page may be short; with an unknown total only full pages count.
func (s IntervalSet) CoveredPages(pageSize int, total *int64) int64 {
	if pageSize <= 0 {
		return 0
	}
	ps := int64(pageSize)
	var n int64
	for _, iv := range s.ivs {
		hi := iv.Hi
		if total != nil {
			if hi > *total-1 {
				hi = *total - 1
			}
			if iv.Lo > hi {
				continue
			}
		}
		first := (iv.Lo + ps - 1) / ps
		last := (hi+1)/ps - 1
		if total != nil && hi == *total-1 {
			last = hi / ps
		}
		if last >= first {
			n += last - first + 1
		}
	}
	return n
}

// MarshalJSON encodes the set as [[lo,hi],...].
func (s IntervalSet) MarshalJSON() ([]byte, error) {
	pairs := make([][2]int64, len(s.ivs))
	for i, iv := range s.ivs {
		pairs[i] = [2]int64{iv.Lo, iv.Hi}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes [[lo,hi],...], normalizing unsorted or overlapping input.
func (s *IntervalSet) UnmarshalJSON(b []byte) error {
	var pairs [][2]int64
	if err := json.Unmarshal(b, &pairs); err != nil {
		return fmt.Errorf("decode intervals: %w", err)
	}
	ivs := make([]Interval, 0, len(pairs))
	for _, p := range pairs {
		if p[0] > p[1] {
			return errors.New("decode intervals: lower bound exceeds upper bound")
		}
		ivs = append(ivs, Interval{Lo: p[0], Hi: p[1]})
	}
	s.ivs = normalize(ivs)
	return nil
}

func normalize(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Lo < ivs[j].Lo })
	out := []Interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if iv.Lo <= last.Hi+1 {
			if iv.Hi > last.Hi {
				last.Hi = iv.Hi
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
