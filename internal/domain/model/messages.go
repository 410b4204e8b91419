package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventAllCheckpointsProcessed is published once the distinct checkpoint count of a job reaches its total.
const EventAllCheckpointsProcessed = "all_checkpoints_processed"

// CheckpointID identifies a checkpoint within a job. Producers send it either as a JSON
// string or a JSON number; both decode to the same id.
type CheckpointID string

// UnmarshalJSON accepts a JSON string or number.
func (c *CheckpointID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = CheckpointID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("checkpoint_id must be a string or number: %w", err)
	}
	*c = CheckpointID(n.String())
	return nil
}

// CheckpointMessage reports that a worker finished one checkpoint of a job.
type CheckpointMessage struct {
	JobID        string          `json:"job_id"`
	CheckpointID CheckpointID    `json:"checkpoint_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Validate validates the message fields.
func (m CheckpointMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return errors.New("job_id is required")
	}
	if strings.TrimSpace(string(m.CheckpointID)) == "" {
		return errors.New("checkpoint_id is required")
	}
	return nil
}

// RecordID is the deterministic upsert key of the checkpoint record.
func (m CheckpointMessage) RecordID() string {
	return m.JobID + "-" + string(m.CheckpointID)
}

// ResultCheckpoint is the persisted record of a processed checkpoint.
type ResultCheckpoint struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	CheckpointID string          `json:"checkpoint_id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}

// JobSizeMessage announces the size of a job once the reader has counted its entries.
type JobSizeMessage struct {
	JobID               string `json:"job_id"`
	NumEntriesTotal     *int64 `json:"num_entries_total,omitempty"`
	NumCheckpointsTotal *int   `json:"num_checkpoints_total,omitempty"`
}

// Validate validates the message fields.
func (m JobSizeMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return errors.New("job_id is required")
	}
	if m.NumEntriesTotal != nil && *m.NumEntriesTotal < 0 {
		return errors.New("num_entries_total must be non-negative")
	}
	if m.NumCheckpointsTotal != nil && *m.NumCheckpointsTotal < 0 {
		return errors.New("num_checkpoints_total must be non-negative")
	}
	if m.NumEntriesTotal == nil && m.NumCheckpointsTotal == nil {
		return errors.New("at least one total is required")
	}
	return nil
}

// OutputFileMessage reports that an output file of a job was written.
type OutputFileMessage struct {
	JobID  string `json:"job_id"`
	Format string `json:"format"`
}

// Validate validates the message fields.
func (m OutputFileMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return errors.New("job_id is required")
	}
	if strings.TrimSpace(m.Format) == "" {
		return errors.New("format is required")
	}
	return nil
}

// JobEvent is an outbound notification about a job.
type JobEvent struct {
	JobID string `json:"job_id"`
	Event string `json:"event"`
}
