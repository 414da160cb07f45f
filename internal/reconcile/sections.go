package reconcile

// Section describes one logical part of the proposal form.
type Section struct {
	Key      string
	Label    string
	Fields   []string
	Dates    []string
	Required []string
}

const (
	SectionPrimaryContact   = "primaryContact"
	SectionHealthHistory    = "healthHistory"
	SectionCoverAndCost     = "coverAndCost"
	SectionExistingCoverage = "existingCoverage"
	SectionClaimsAndService = "claimsAndService"
	SectionFinanceAndDocs   = "financeAndDocumentation"
)

var sections = []Section{
	{
		Key:   SectionPrimaryContact,
		Label: "Primary Contact",
		Fields: []string{
			"unique_id", "applicant_name", "gender", "occupation", "secondary_occupation",
			"self-dob", "self-age", "self-height", "self-weight", "self-bmi",
			"email", "phone", "aadhaar_last5", "address", "hubs",
			"occupational-risk", "occupational-risk-details",
		},
		Dates:    []string{"self-dob"},
		Required: []string{"unique_id", "applicant_name", "gender", "occupation", "email", "phone"},
	},
	{
		Key:    SectionHealthHistory,
		Label:  "Health History",
		Fields: healthHistoryFields(),
		Dates:  diseaseFieldNames("_start_date"),
	},
	{
		Key:   SectionCoverAndCost,
		Label: "Cover & Cost Preferences",
		Fields: []string{
			"policy-type", "sum-insured", "annual-budget", "annual-income", "room-preference",
			"payment-mode", "policy-term", "co-pay", "ncb-importance", "maternity-cover",
			"opd-cover", "top-up",
		},
		Required: []string{
			"policy-type", "sum-insured", "annual-budget", "annual-income", "room-preference",
			"payment-mode", "policy-term", "co-pay", "ncb-importance", "maternity-cover",
			"opd-cover", "top-up",
		},
	},
	{
		Key:   SectionExistingCoverage,
		Label: "Existing Coverage",
		Fields: []string{
			"existing-policies", "policy-type-category", "insurer-name", "existing-policy-number",
			"existing-sum-insured", "policy-since-date", "port-policy", "critical-illness",
			"worldwide-cover",
		},
		Dates: []string{"policy-since-date"},
		Required: []string{
			"existing-policies", "policy-type-category", "port-policy", "critical-illness",
			"worldwide-cover",
		},
	},
	{
		Key:   SectionClaimsAndService,
		Label: "Claims & Service",
		Fields: []string{
			"past-claims", "claim-issues", "service-expectations",
			"network-hospital-1st", "network-hospital-2nd", "network-hospital-3rd",
		},
		Required: []string{"past-claims", "claim-issues", "service-expectations"},
	},
	{
		Key:      SectionFinanceAndDocs,
		Label:    "Finance & Documentation",
		Fields:   []string{"tax-benefit", "gst-number", "id-proof", "address_proof_details"},
		Required: []string{"tax-benefit", "id-proof", "address_proof_details"},
	},
}

// Sections returns the form sections in display order.
func Sections() []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}

// SectionByKey looks a section up by its canonical key.
func SectionByKey(key string) (Section, bool) {
	for _, section := range sections {
		if section.Key == key {
			return section, true
		}
	}
	return Section{}, false
}

// MergeSectionData prefers the nested section object when it carries at least
// one key, and otherwise picks the section's expected fields out of the flat
// record. Neither input is modified.
func MergeSectionData(nested, flat map[string]any, fields []string) map[string]any {
	if len(nested) > 0 {
		out := make(map[string]any, len(nested))
		for key, value := range nested {
			out[key] = value
		}
		return out
	}

	target := newFieldSet(fields, nil)
	for _, key := range sortedKeys(flat) {
		resolved, ok := ResolveFieldName(key, target.Has)
		if !ok {
			continue
		}
		target.Set(resolved, flat[key])
	}
	return target.values
}

func healthHistoryFields() []string {
	fields := []string{"disease"}
	for _, suffix := range []string{"_details", "_since_year", "_since_years", "_start_date"} {
		fields = append(fields, diseaseFieldNames(suffix)...)
	}
	return fields
}

func diseaseFieldNames(suffix string) []string {
	names := make([]string, 0, len(Diseases))
	for _, disease := range Diseases {
		names = append(names, disease+suffix)
	}
	return names
}
