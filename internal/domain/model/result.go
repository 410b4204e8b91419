package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Result is one result record of a job. Besides the fixed keys it carries an open set of
// fields that are stored and streamed unchanged.
type Result struct {
	ID    string
	JobID string
	MolID int64
	// Extra holds every other top-level field in its original encoding.
	Extra map[string]json.RawMessage
}

var reservedResultKeys = map[string]struct{}{"id": {}, "job_id": {}, "mol_id": {}}

// UnmarshalJSON decodes a result document, keeping unknown fields in Extra.
func (r *Result) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if fields == nil {
		return errors.New("decode result: expected object")
	}

	var out Result
	if raw, ok := fields["id"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &out.ID); err != nil {
			return fmt.Errorf("decode result id: %w", err)
		}
	}
	raw, ok := fields["job_id"]
	if !ok || isNull(raw) {
		return errors.New("decode result: job_id is required")
	}
	if err := json.Unmarshal(raw, &out.JobID); err != nil {
		return fmt.Errorf("decode result job_id: %w", err)
	}
	raw, ok = fields["mol_id"]
	if !ok || isNull(raw) {
		return errors.New("decode result: mol_id is required")
	}
	if err := json.Unmarshal(raw, &out.MolID); err != nil {
		return fmt.Errorf("decode result mol_id: %w", err)
	}
	if out.MolID < 0 {
		return fmt.Errorf("decode result: mol_id must be non-negative, got %d", out.MolID)
	}

	for k, v := range fields {
		if _, reserved := reservedResultKeys[k]; reserved {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage, len(fields))
		}
		out.Extra[k] = v
	}
	*r = out
	return nil
}

// MarshalJSON encodes the fixed keys together with every extra field.
func (r Result) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(r.Extra)+3)
	for k, v := range r.Extra {
		doc[k] = v
	}
	for k, v := range map[string]any{"id": r.ID, "job_id": r.JobID, "mol_id": r.MolID} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		doc[k] = b
	}
	return json.Marshal(doc)
}

// Data returns the extra fields as a JSON object, the stored form of a result body.
func (r Result) Data() (json.RawMessage, error) {
	if len(r.Extra) == 0 {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(r.Extra)
	if err != nil {
		return nil, fmt.Errorf("encode result data: %w", err)
	}
	return b, nil
}

// DeriveID computes the record id of an incoming result: job-mol, or job-mol-atom when
// atom_id is set, or job-mol-derivative when derivative_id is set.
func (r Result) DeriveID() string {
	base := r.JobID + "-" + strconv.FormatInt(r.MolID, 10)
	if v, ok := r.scalar("atom_id"); ok {
		return base + "-" + v
	}
	if v, ok := r.scalar("derivative_id"); ok {
		return base + "-" + v
	}
	return base
}

func (r Result) scalar(key string) (string, bool) {
	raw, ok := r.Extra[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(bytes.TrimSpace(raw)), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
