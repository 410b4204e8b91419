package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Module is a registered job module. Each module gets its own copy of the job routes under
// /{id}/jobs and /websocket/{id}/jobs.
type Module struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

var moduleIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// reservedSegments are first path segments already used by fixed routes.
var reservedSegments = map[string]struct{}{
	"jobs":      {},
	"websocket": {},
	"healthz":   {},
}

// Validate validates the module id.
func (m Module) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("module id is required")
	}
	if !moduleIDPattern.MatchString(m.ID) {
		return fmt.Errorf("module id %q must match %s", m.ID, moduleIDPattern)
	}
	if _, reserved := reservedSegments[m.ID]; reserved {
		return fmt.Errorf("module id %q is a reserved path segment", m.ID)
	}
	return nil
}

// ParseModules parses a comma separated module list. A trailing ":hidden" marks a module
// that is served but not listed.
//
//	MODULES=cypstrate,skinsensdb:hidden
func ParseModules(raw []string) ([]Module, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]Module, 0, len(raw))
	for _, item := range raw {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		m := Module{ID: item, Visible: true}
		if id, flag, ok := strings.Cut(item, ":"); ok {
			if flag != "hidden" {
				return nil, fmt.Errorf("module %q: unknown flag %q", id, flag)
			}
			m = Module{ID: id, Visible: false}
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("module %q listed twice", m.ID)
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}
