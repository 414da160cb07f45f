// Package reconcile normalizes stored proposal payloads into canonical
// records. Stored data may hold arrays where scalars belong, comma-joined
// strings, DD/MM/YYYY dates, and the same section both nested and flat;
// everything downstream of Reconcile sees only canonical values.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"proposaldesk/api/internal/session"
)

// Selections holds the four role-scoped plan sets of a proposal.
type Selections struct {
	SystemProposed     []string `json:"system_proposed"`
	AgentSelected      []string `json:"agent_selected"`
	SupervisorApproved []string `json:"supervisor_approved"`
	ClientAgreed       []string `json:"client_agreed"`
}

// ProposalRecord is the canonical view of one proposal.
type ProposalRecord struct {
	UniqueID     string                    `json:"unique_id"`
	RawStatus    string                    `json:"raw_status"`
	Agent        string                    `json:"agent"`
	Fields       map[string]any            `json:"fields"`
	Sections     map[string]map[string]any `json:"sections"`
	Diseases     []Disease                 `json:"diseases"`
	Members      []Member                  `json:"members"`
	Comments     []Comment                 `json:"comments"`
	PlanSections []PlanSection             `json:"plan_sections"`
	Selections   Selections                `json:"selections"`
	Age          *int                      `json:"age,omitempty"`
	BMI          *float64                  `json:"bmi,omitempty"`
}

// ComprehensiveCover is the plan section that always sorts first.
const ComprehensiveCover = "comprehensive_cover"

var statusKeys = []string{"application_status", "supervisor_status", "supervisor_approval_status", "status"}

var fieldBlacklist = map[string]struct{}{
	"comments_noted":             {},
	"user_type":                  {},
	"members":                    {},
	"timestamp":                  {},
	"agent":                      {},
	"form_summary":               {},
	"supervisor_approval_status": {},
	"supervisor_comments":        {},
	"plans_chosen":               {},
	"created_at":                 {},
	"created_by":                 {},
	"modified_at":                {},
	"modified_by":                {},
	"combination_packages":       {},
}

// Reconciler turns raw payloads into canonical records for one session.
type Reconciler struct {
	session session.Session
}

// New returns a Reconciler bound to sess. The session supplies the clock used
// for ages and years-since values.
func New(sess session.Session) *Reconciler {
	return &Reconciler{session: sess}
}

// Reconcile builds the canonical record. The payload is not modified.
func (r *Reconciler) Reconcile(payload RawProposalPayload) ProposalRecord {
	now := r.session.Now()

	record := ProposalRecord{
		Fields:   make(map[string]any, len(payload.Flat)),
		Sections: make(map[string]map[string]any, len(sections)),
	}

	for key, value := range payload.Flat {
		if _, skip := fieldBlacklist[key]; skip {
			continue
		}
		record.Fields[key] = ExtractScalar(value)
	}

	for _, section := range sections {
		merged := MergeSectionData(payload.Nested[section.Key], payload.Flat, section.Fields)
		if section.Key == SectionHealthHistory {
			record.Diseases = SyncDiseases(merged, now)
		}
		record.Sections[section.Key] = canonicalSection(section, merged)
		if section.Key == SectionHealthHistory {
			applyDiseases(record.Sections[section.Key], record.Diseases)
		}
	}

	for _, key := range statusKeys {
		if status := strings.TrimSpace(ScalarString(payload.Flat[key])); status != "" {
			record.RawStatus = status
			break
		}
	}
	record.Agent = strings.TrimSpace(ScalarString(payload.Flat["agent"]))

	primary := record.Sections[SectionPrimaryContact]
	record.UniqueID = firstNonBlank(
		ScalarString(payload.Flat["unique_id"]),
		stringify(primary["unique_id"]),
	)
	if record.UniqueID == "" {
		name := firstNonBlank(stringify(primary["applicant_name"]), ScalarString(payload.Flat["applicant_name"]))
		aadhaar := firstNonBlank(stringify(primary["aadhaar_last5"]), ScalarString(payload.Flat["aadhaar"]))
		if name != "" && aadhaar != "" {
			record.UniqueID = UniqueID(name, aadhaar)
		}
	}
	deriveBodyMetrics(&record, primary, now)

	record.Members = ParseMembers(payload.Members, now)
	record.Comments = newestFirst(payload.Comments)
	record.PlanSections = OrderPlanSections(payload.PlanSections, nil)
	record.Selections = Selections{
		SystemProposed:     systemProposed(record.PlanSections),
		AgentSelected:      stringList(payload.Agent),
		SupervisorApproved: stringList(payload.Supervisor),
		ClientAgreed:       stringList(payload.Client),
	}
	return record
}

// OrderPlanSections returns sections in the caller's order when one is given,
// else in their stored order. The comprehensive cover section always comes
// first. Sections missing from order keep their relative position after the
// ordered ones.
func OrderPlanSections(in []PlanSection, order []string) []PlanSection {
	out := make([]PlanSection, 0, len(in))
	used := make([]bool, len(in))
	take := func(i int) {
		if used[i] {
			return
		}
		used[i] = true
		out = append(out, in[i])
	}

	for i, section := range in {
		if section.Key == ComprehensiveCover {
			take(i)
		}
	}
	for _, key := range order {
		for i, section := range in {
			if section.Key == key {
				take(i)
			}
		}
	}
	for i := range in {
		take(i)
	}
	return out
}

func canonicalSection(section Section, merged map[string]any) map[string]any {
	dates := make(map[string]struct{}, len(section.Dates))
	for _, name := range section.Dates {
		dates[name] = struct{}{}
	}
	out := make(map[string]any, len(merged))
	for key, value := range merged {
		scalar := ExtractScalar(value)
		if s, ok := scalar.(string); ok {
			if _, isDate := dates[key]; isDate || isDateField(key) {
				scalar = NormalizeDate(s)
			}
		}
		out[key] = scalar
	}
	return out
}

func deriveBodyMetrics(record *ProposalRecord, primary map[string]any, now time.Time) {
	if dob, ok := ParseDate(stringify(lookup(primary, "self-dob"))); ok {
		if age, ok := Age(dob, now); ok {
			record.Age = &age
			if isBlank(primary["self-age"]) {
				primary["self-age"] = age
			}
		}
	}
	if bmi, ok := BMI(parseFloat(lookup(primary, "self-weight")), parseFloat(lookup(primary, "self-height"))); ok {
		record.BMI = &bmi
		if isBlank(primary["self-bmi"]) {
			primary["self-bmi"] = bmi
		}
	}
}

func systemProposed(planSections []PlanSection) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, section := range planSections {
		for _, plan := range section.Plans {
			if _, ok := seen[plan]; ok {
				continue
			}
			seen[plan] = struct{}{}
			out = append(out, plan)
		}
	}
	return out
}

func newestFirst(comments []Comment) []Comment {
	out := make([]Comment, len(comments))
	copy(out, comments)
	for _, comment := range out {
		if _, ok := ParseDate(comment.Timestamp); !ok {
			return out
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		left, _ := ParseDate(out[i].Timestamp)
		right, _ := ParseDate(out[j].Timestamp)
		return left.After(right)
	})
	return out
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
