package lifecycle

import (
	"fmt"
	"regexp"
	"strings"

	"proposaldesk/api/internal/reconcile"
)

// FieldError is one failed check on a proposal field.
type FieldError struct {
	Section string `json:"section"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	uniqueIDPattern = regexp.MustCompile(`^[\p{L}\p{N}']+_\d{5}$`)
	aadhaarPattern  = regexp.MustCompile(`^\d{5}$`)
)

// ValidateRequired checks required fields of every section, the unique ID
// and Aadhaar formats, and that every checked disease has a start year.
// Errors come back in section order.
func ValidateRequired(record reconcile.ProposalRecord) []FieldError {
	var errs []FieldError
	for _, section := range reconcile.Sections() {
		values := record.Sections[section.Key]
		for _, field := range section.Required {
			if strings.TrimSpace(reconcile.ScalarString(values[field])) == "" {
				errs = append(errs, FieldError{
					Section: section.Key,
					Field:   field,
					Message: fieldLabel(field) + " is required",
				})
			}
		}
	}

	primary := record.Sections[reconcile.SectionPrimaryContact]
	if id := strings.TrimSpace(reconcile.ScalarString(primary["unique_id"])); id != "" && !uniqueIDPattern.MatchString(id) {
		errs = append(errs, FieldError{
			Section: reconcile.SectionPrimaryContact,
			Field:   "unique_id",
			Message: "UniqueID must be in the format: FullName_AadhaarLast5Digits.",
		})
	}
	if aadhaar := strings.TrimSpace(reconcile.ScalarString(primary["aadhaar_last5"])); aadhaar != "" && !aadhaarPattern.MatchString(aadhaar) {
		errs = append(errs, FieldError{
			Section: reconcile.SectionPrimaryContact,
			Field:   "aadhaar_last5",
			Message: "Aadhaar must be exactly 5 digits.",
		})
	}

	for _, disease := range record.Diseases {
		if disease.Checked && disease.SinceYear == "" {
			errs = append(errs, FieldError{
				Section: reconcile.SectionHealthHistory,
				Field:   disease.Name + "_since_year",
				Message: fmt.Sprintf("Disease start date for %s is required", fieldLabel(disease.Name)),
			})
		}
	}
	return errs
}

// Summary renders errors as the bullet list shown before a blocked submit.
func Summary(errs []FieldError) string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Please complete all required fields:\n")
	for _, err := range errs {
		b.WriteString("\n• ")
		b.WriteString(err.Message)
	}
	return b.String()
}

func fieldLabel(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool { return r == '-' || r == '_' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
