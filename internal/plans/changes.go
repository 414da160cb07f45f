package plans

import "strings"

// ChangeTracker follows the agent's plan checkboxes against the selection
// that was last submitted. Changed is true while the two sets differ.
type ChangeTracker struct {
	baseline map[string]struct{}
	current  []string
}

// NewChangeTracker starts from the last submitted selection.
func NewChangeTracker(submitted []string) *ChangeTracker {
	t := &ChangeTracker{}
	for _, plan := range submitted {
		t.Set(plan, true)
	}
	t.baseline = toSet(t.current)
	return t
}

// Set checks or unchecks plan.
func (t *ChangeTracker) Set(plan string, checked bool) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return
	}
	idx := -1
	for i, existing := range t.current {
		if existing == plan {
			idx = i
			break
		}
	}
	switch {
	case checked && idx < 0:
		t.current = append(t.current, plan)
	case !checked && idx >= 0:
		t.current = append(t.current[:idx], t.current[idx+1:]...)
	}
}

// Selected returns the checked plans in the order they were checked.
func (t *ChangeTracker) Selected() []string {
	out := make([]string, len(t.current))
	copy(out, t.current)
	return out
}

// Changed reports whether the selection differs from the baseline.
func (t *ChangeTracker) Changed() bool {
	if len(t.current) != len(t.baseline) {
		return true
	}
	for _, plan := range t.current {
		if _, ok := t.baseline[plan]; !ok {
			return true
		}
	}
	return false
}

// Reset makes the current selection the new baseline, as after a submit.
func (t *ChangeTracker) Reset() {
	t.baseline = toSet(t.current)
}
