// Package lifecycle is the proposal state machine: where a status sits on the
// progress track, which role may do what in which status, and the effects a
// command produces. It performs no I/O.
package lifecycle

import (
	"time"

	"proposaldesk/api/internal/status"
)

// Stage keys in forward order.
const (
	StageOpen          = "OPEN"
	StageSubmitted     = "SUBMITTED"
	StageSupApproved   = "SUP_APPROVED"
	StageClientAgreed  = "CLIENT_AGREED"
	StageWithUW        = "WITH_UW"
	StagePolicyCreated = "POLICY_CREATED"
)

var order = []string{
	StageOpen,
	StageSubmitted,
	StageSupApproved,
	StageClientAgreed,
	StageWithUW,
	StagePolicyCreated,
}

var labels = map[string]string{
	StageOpen:          "Opened",
	StageSubmitted:     "Submitted",
	StageSupApproved:   "Supervisor Approved",
	StageClientAgreed:  "Client Agreed",
	StageWithUW:        "Submitted to Underwriter",
	StagePolicyCreated: "Policy Created",
}

// aliases resolve progress keys onto stages. SUP_REJECTED does not advance
// past submission; denied policies still sit on the final step.
var aliases = map[string]string{
	"":                    StageOpen,
	"APPLICATION_FILLED":  StageOpen,
	"SUP_REVIEW":          StageSubmitted,
	"SUP_REJECTED":        StageSubmitted,
	"SUPERVISOR_APPROVED": StageSupApproved,
	"CLIENT_APPROVED":     StageClientAgreed,
	"UW_APPROVED":         StageWithUW,
	"UW_REVIEW":           StageWithUW,
	"UNDERWRITER_REVIEW":  StageWithUW,
	"UW_REJECTED":         StageWithUW,
	"POLICY_DENIED":       StagePolicyCreated,
	"POLICY_REJECTED":     StagePolicyCreated,
	"COMPLETED":           StagePolicyCreated,
	"CLOSED":              StagePolicyCreated,
}

var deniedKeys = map[string]bool{
	"POLICY_DENIED":   true,
	"POLICY_REJECTED": true,
	"SUP_REJECTED":    true,
}

var fillTable = []float64{0, 25, 42, 58.5, 75, 92, 100}

func progressKey(raw string) string {
	return status.ProgressKey(status.MigrateLegacy(raw))
}

// StageIndex is the zero-based position of raw on the forward track, or -1
// when raw resolves to no stage.
func StageIndex(raw string) int {
	key := progressKey(raw)
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	for i, stage := range order {
		if stage == key {
			return i
		}
	}
	return -1
}

// FillPercent maps a stage index to how far the progress line is drawn.
// Indexes outside the track clamp to its ends.
func FillPercent(stageIndex int) float64 {
	i := stageIndex + 1
	if i < 0 {
		i = 0
	}
	if i >= len(fillTable) {
		i = len(fillTable) - 1
	}
	return fillTable[i]
}

// IsDenied reports whether raw is a rejection that is drawn in the denied
// style.
func IsDenied(raw string) bool {
	return deniedKeys[progressKey(raw)]
}

// StageView is one step of the progress track.
type StageView struct {
	Key     string     `json:"key"`
	Label   string     `json:"label"`
	Done    bool       `json:"done"`
	Current bool       `json:"current"`
	Denied  bool       `json:"denied"`
	At      *time.Time `json:"at,omitempty"`
}

// Progress is the progress track for one status.
type Progress struct {
	StageIndex  int         `json:"stage_index"`
	FillPercent float64     `json:"fill_percent"`
	Stages      []StageView `json:"stages"`
}

// Stages lays out the six steps for raw. Steps up to the stage index are
// done and the next one is current. A denied policy relabels the last step.
// at optionally carries a timestamp per stage key.
func Stages(raw string, at map[string]time.Time) Progress {
	idx := StageIndex(raw)
	denied := IsDenied(raw)
	last := len(order) - 1

	progress := Progress{StageIndex: idx, FillPercent: FillPercent(idx)}
	for i, key := range order {
		view := StageView{
			Key:     key,
			Label:   labels[key],
			Done:    i <= idx,
			Current: i == idx+1,
		}
		if denied && i == idx {
			view.Denied = true
			if i == last {
				view.Label = status.LabelPolicyDenied
			}
		}
		if ts, ok := at[key]; ok && !ts.IsZero() {
			stamp := ts
			view.At = &stamp
		}
		progress.Stages = append(progress.Stages, view)
	}
	return progress
}
