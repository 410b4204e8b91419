package model

import "math"

// MolRange is a closed range of mol ids.
type MolRange struct {
	First int64 `json:"first"`
	Last  int64 `json:"last"`
}

// Contains reports whether molID lies in the range.
func (r MolRange) Contains(molID int64) bool {
	return molID >= r.First && molID <= r.Last
}

// NumPages returns ceil(total / pageSize).
func NumPages(total int64, pageSize int) int64 {
	ps := int64(pageSize)
	n := total / ps
	if total%ps != 0 {
		n++
	}
	return n
}

// PageWindow computes the mol id window of a one-based page. A nil total means the job size
// is not known yet, so every non-negative page index is in range. ok is false when the page
// lies outside the job.
func PageWindow(page int, pageSize int, total *int64) (MolRange, bool) {
	idx := int64(page) - 1
	ps := int64(pageSize)
	if idx < 0 || ps <= 0 {
		return MolRange{}, false
	}
	// first+ps must stay representable
	if idx > (math.MaxInt64-ps)/ps {
		return MolRange{}, false
	}
	first := idx * ps
	if total != nil && first >= *total {
		return MolRange{}, false
	}
	end := first + ps
	if total != nil && *total < end {
		end = *total
	}
	return MolRange{First: first, Last: end - 1}, true
}
