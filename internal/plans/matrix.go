// Package plans reconciles the four plan selection sets of a proposal into
// one renderable matrix and summarizes upstream combination packages.
package plans

import (
	"errors"
	"strings"

	"proposaldesk/api/internal/reconcile"
)

// Mode selects which columns a matrix renders and which are interactive.
type Mode string

const (
	ModeAnalysis   Mode = "analysis"
	ModeSupervisor Mode = "supervisor"
	ModeApprovals  Mode = "approvals"
)

// ParseMode defaults unknown values to analysis.
func ParseMode(raw string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeSupervisor, ModeApprovals:
		return m
	default:
		return ModeAnalysis
	}
}

// Column identifies a selection column.
type Column string

const (
	ColumnSystem     Column = "system"
	ColumnAgent      Column = "agent"
	ColumnSupervisor Column = "supervisor"
	ColumnClient     Column = "client"
)

var columnTitles = map[Column]string{
	ColumnSystem:     "System proposed plans",
	ColumnAgent:      "Agent proposed plans",
	ColumnSupervisor: "Supervisor approved plans",
	ColumnClient:     "Client Agreed plan(s)",
}

// CellKind says how a selection cell is drawn.
type CellKind string

const (
	CellEmpty    CellKind = "empty"
	CellMark     CellKind = "mark"
	CellToggle   CellKind = "toggle"
	CellDisabled CellKind = "disabled"
)

// Cell is one selection cell. Checked is meaningless for CellEmpty.
type Cell struct {
	Kind    CellKind `json:"kind"`
	Checked bool     `json:"checked"`
}

// Row is a section header, a plan, or the placeholder of an empty section.
// Client is nil outside approvals mode.
type Row struct {
	SectionKey  string `json:"section_key"`
	Header      bool   `json:"header,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Label       string `json:"label"`
	Agent       Cell   `json:"agent"`
	Supervisor  *Cell  `json:"supervisor,omitempty"`
	Client      *Cell  `json:"client,omitempty"`
}

// PlaceholderLabel is shown for a section without plans.
const PlaceholderLabel = "No plans"

// ToggleFunc receives interactive checkbox changes. The matrix never
// persists them.
type ToggleFunc func(plan string, checked bool)

// Options configures BuildMatrix.
type Options struct {
	Mode               Mode
	Order              []string
	Selections         reconcile.Selections
	OnSupervisorToggle ToggleFunc
	OnClientToggle     ToggleFunc
}

// Matrix is the rendered selection table.
type Matrix struct {
	Mode    Mode     `json:"mode"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	// Orphaned lists selected plan names, per column, that no section
	// proposes. They are reported, not rejected.
	Orphaned map[Column][]string `json:"orphaned,omitempty"`

	onSupervisor ToggleFunc
	onClient     ToggleFunc
}

var (
	ErrNotInteractive = errors.New("plans: column is not interactive in this mode")
	ErrUnknownPlan    = errors.New("plans: plan is not proposed in any section")
)

// BuildMatrix lays out sections in display order with one cell per visible
// column. Selections that reference unknown plans do not fail the build.
func BuildMatrix(sections []reconcile.PlanSection, opts Options) *Matrix {
	mode := opts.Mode
	if mode == "" {
		mode = ModeAnalysis
	}
	agent := toSet(opts.Selections.AgentSelected)
	supervisor := toSet(opts.Selections.SupervisorApproved)
	client := toSet(opts.Selections.ClientAgreed)

	m := &Matrix{
		Mode:         mode,
		Columns:      []string{columnTitles[ColumnSystem], columnTitles[ColumnAgent]},
		onSupervisor: opts.OnSupervisorToggle,
		onClient:     opts.OnClientToggle,
	}
	// The supervisor column is always drawn: a disabled checkbox in analysis
	// mode, interactive in supervisor mode and a mark in approvals mode.
	showClient := mode == ModeApprovals
	m.Columns = append(m.Columns, columnTitles[ColumnSupervisor])
	if showClient {
		m.Columns = append(m.Columns, columnTitles[ColumnClient])
	}

	proposed := map[string]struct{}{}
	for _, section := range reconcile.OrderPlanSections(sections, opts.Order) {
		m.Rows = append(m.Rows, Row{
			SectionKey: section.Key,
			Header:     true,
			Label:      sectionLabel(section),
			Agent:      Cell{Kind: CellEmpty},
			Supervisor: &Cell{Kind: CellEmpty},
			Client:     optionalCell(showClient, Cell{Kind: CellEmpty}),
		})
		if len(section.Plans) == 0 {
			m.Rows = append(m.Rows, Row{
				SectionKey:  section.Key,
				Placeholder: true,
				Label:       PlaceholderLabel,
				Agent:       Cell{Kind: CellEmpty},
				Supervisor:  &Cell{Kind: CellEmpty},
				Client:      optionalCell(showClient, Cell{Kind: CellEmpty}),
			})
			continue
		}
		for _, plan := range section.Plans {
			proposed[plan] = struct{}{}
			_, agentHas := agent[plan]
			_, supHas := supervisor[plan]
			_, clientHas := client[plan]

			row := Row{
				SectionKey: section.Key,
				Label:      plan,
				Agent:      Cell{Kind: CellMark, Checked: agentHas},
			}
			switch mode {
			case ModeSupervisor:
				row.Supervisor = &Cell{Kind: CellToggle, Checked: supHas}
			case ModeApprovals:
				row.Supervisor = &Cell{Kind: CellMark, Checked: supHas}
				row.Client = &Cell{Kind: CellToggle, Checked: clientHas}
			default:
				row.Supervisor = &Cell{Kind: CellDisabled, Checked: supHas}
			}
			m.Rows = append(m.Rows, row)
		}
	}

	for column, selected := range map[Column][]string{
		ColumnAgent:      opts.Selections.AgentSelected,
		ColumnSupervisor: opts.Selections.SupervisorApproved,
		ColumnClient:     opts.Selections.ClientAgreed,
	} {
		for _, plan := range selected {
			if _, ok := proposed[plan]; ok {
				continue
			}
			if m.Orphaned == nil {
				m.Orphaned = map[Column][]string{}
			}
			m.Orphaned[column] = append(m.Orphaned[column], plan)
		}
	}
	return m
}

// Toggle applies an interactive checkbox change to every row of plan and
// reports it to the column's callback.
func (m *Matrix) Toggle(column Column, plan string, checked bool) error {
	var callback ToggleFunc
	switch {
	case column == ColumnSupervisor && m.Mode == ModeSupervisor:
		callback = m.onSupervisor
	case column == ColumnClient && m.Mode == ModeApprovals:
		callback = m.onClient
	default:
		return ErrNotInteractive
	}

	found := false
	for i := range m.Rows {
		row := &m.Rows[i]
		if row.Header || row.Placeholder || row.Label != plan {
			continue
		}
		found = true
		if column == ColumnSupervisor {
			row.Supervisor.Checked = checked
		} else {
			row.Client.Checked = checked
		}
	}
	if !found {
		return ErrUnknownPlan
	}
	if callback != nil {
		callback(plan, checked)
	}
	return nil
}

// Checked lists the plans checked in column, in row order without repeats.
func (m *Matrix) Checked(column Column) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, row := range m.Rows {
		if row.Header || row.Placeholder {
			continue
		}
		var cell *Cell
		switch column {
		case ColumnAgent:
			cell = &row.Agent
		case ColumnSupervisor:
			cell = row.Supervisor
		case ColumnClient:
			cell = row.Client
		}
		if cell == nil || !cell.Checked {
			continue
		}
		if _, dup := seen[row.Label]; dup {
			continue
		}
		seen[row.Label] = struct{}{}
		out = append(out, row.Label)
	}
	return out
}

func sectionLabel(section reconcile.PlanSection) string {
	if name := strings.TrimSpace(section.Name); name != "" {
		return name
	}
	if section.Key == reconcile.ComprehensiveCover {
		return "Family"
	}
	return section.Key
}

func optionalCell(show bool, cell Cell) *Cell {
	if !show {
		return nil
	}
	return &cell
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
