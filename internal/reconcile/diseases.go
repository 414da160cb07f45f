package reconcile

import (
	"strconv"
	"strings"
	"time"
)

// Diseases is the fixed list of conditions the health history asks about.
var Diseases = []string{"cardiac", "diabetes", "hypertension", "cancer", "critical_illness", "other"}

// Disease is the synchronized state of one condition checkbox and its
// detail fields.
type Disease struct {
	Name       string `json:"name"`
	Checked    bool   `json:"checked"`
	Inferred   bool   `json:"inferred,omitempty"`
	Details    string `json:"details,omitempty"`
	SinceYear  string `json:"since_year,omitempty"`
	SinceYears string `json:"since_years,omitempty"`
}

// SyncDiseases derives checkbox state for every known disease from a health
// history map. A disease is checked when it is selected, or when detail data
// exists for it without a selection. Unchecked diseases carry no details.
// Legacy <disease>_start_date values become since_year and since_years.
func SyncDiseases(data map[string]any, now time.Time) []Disease {
	selected := make(map[string]struct{})
	for _, name := range stringList(lookup(data, "disease")) {
		selected[strings.ToLower(name)] = struct{}{}
	}

	out := make([]Disease, 0, len(Diseases))
	for _, name := range Diseases {
		entry := Disease{Name: name}
		// Member health maps key details by the disease name itself.
		if keyed := strings.TrimSpace(ScalarString(lookup(data, name))); keyed != "" {
			selected[name] = struct{}{}
			entry.Details = keyed
		}
		if details := strings.TrimSpace(ScalarString(lookup(data, name+"_details"))); details != "" {
			entry.Details = details
		}
		entry.SinceYear = strings.TrimSpace(ScalarString(lookup(data, name+"_since_year")))
		entry.SinceYears = strings.TrimSpace(ScalarString(lookup(data, name+"_since_years")))

		if entry.SinceYear == "" {
			if started, ok := ParseDate(ScalarString(lookup(data, name+"_start_date"))); ok {
				entry.SinceYear = strconv.Itoa(started.Year())
				entry.SinceYears = ""
			}
		}
		if entry.SinceYears == "" && entry.SinceYear != "" {
			if year, err := strconv.Atoi(entry.SinceYear); err == nil {
				entry.SinceYears = strconv.Itoa(max(0, now.Year()-year))
			}
		}

		_, isSelected := selected[name]
		hasData := entry.Details != "" || entry.SinceYear != "" || entry.SinceYears != ""
		switch {
		case isSelected:
			entry.Checked = true
		case hasData:
			entry.Checked = true
			entry.Inferred = true
		default:
			entry.Details, entry.SinceYear, entry.SinceYears = "", "", ""
		}
		out = append(out, entry)
	}
	return out
}

// applyDiseases writes the synchronized disease state back into a canonical
// health map: the scalar disease field plus detail fields for checked
// conditions only.
func applyDiseases(health map[string]any, diseases []Disease) {
	for _, name := range Diseases {
		for _, suffix := range []string{"_details", "_since_year", "_since_years", "_start_date"} {
			delete(health, name+suffix)
		}
	}
	for _, disease := range diseases {
		if !disease.Checked {
			continue
		}
		if disease.Details != "" {
			health[disease.Name+"_details"] = disease.Details
		}
		if disease.SinceYear != "" {
			health[disease.Name+"_since_year"] = disease.SinceYear
		}
		if disease.SinceYears != "" {
			health[disease.Name+"_since_years"] = disease.SinceYears
		}
	}
}

// lookup reads key from data under any of its candidate spellings.
func lookup(data map[string]any, key string) any {
	for _, candidate := range NameCandidates(key) {
		if value, ok := data[candidate]; ok && !isBlank(value) {
			return value
		}
	}
	return nil
}
