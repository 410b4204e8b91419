package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Table names a changefeed-enabled collection.
type Table string

const (
	// TableJobs is the jobs collection; a scope selects one job by key.
	TableJobs Table = "jobs"
	// TableResults is the results collection; a scope selects one job's results.
	TableResults Table = "results"
)

// Valid returns true if the Table is known.
func (t Table) Valid() bool {
	return t == TableJobs || t == TableResults
}

// Scope selects the records a subscription observes.
type Scope struct {
	Table Table
	JobID string
	// MolRange optionally restricts a results scope to mol_id in [First, Last].
	MolRange *MolRange
}

// JobScope observes the record of one job.
func JobScope(jobID string) Scope {
	return Scope{Table: TableJobs, JobID: jobID}
}

// ResultsScope observes the results of one job, optionally restricted to a window.
func ResultsScope(jobID string, window *MolRange) Scope {
	return Scope{Table: TableResults, JobID: jobID, MolRange: window}
}

// Validate validates the scope.
func (s Scope) Validate() error {
	if !s.Table.Valid() {
		return fmt.Errorf("unknown table %q", s.Table)
	}
	if s.JobID == "" {
		return errors.New("job id is required")
	}
	if s.MolRange != nil {
		if s.Table != TableResults {
			return errors.New("mol range applies to results only")
		}
		if s.MolRange.First > s.MolRange.Last {
			return fmt.Errorf("empty mol range [%d,%d]", s.MolRange.First, s.MolRange.Last)
		}
	}
	return nil
}

// Matches reports whether a change of the given record belongs to the scope.
func (s Scope) Matches(table Table, jobID string, molID *int64) bool {
	if table != s.Table || jobID != s.JobID {
		return false
	}
	if s.MolRange == nil {
		return true
	}
	return molID != nil && s.MolRange.Contains(*molID)
}

// Change is one event of a subscription. A nil Old marks an insertion (or an initial
// snapshot row), a nil New marks a deletion.
type Change struct {
	Seq   int64
	Table Table
	Key   string
	Old   json.RawMessage
	New   json.RawMessage
}

// Initial reports whether the change came from the initial enumeration.
func (c Change) Initial() bool {
	return c.Seq == 0
}
