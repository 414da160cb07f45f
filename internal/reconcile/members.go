package reconcile

import (
	"encoding/json"
	"strings"
	"time"
)

// Member is one insured person besides the primary contact.
type Member struct {
	Name         string         `json:"name"`
	Relationship string         `json:"relationship,omitempty"`
	DOB          string         `json:"dob,omitempty"`
	Age          *int           `json:"age,omitempty"`
	BMI          *float64       `json:"bmi,omitempty"`
	Fields       map[string]any `json:"fields"`
	Diseases     []Disease      `json:"diseases"`
}

var memberNameKeys = []string{"name", "member_name", "full_name", "applicant_name"}

// ParseMembers accepts an array of member objects, a JSON-encoded array, or a
// comma-separated list of names.
func ParseMembers(value any, now time.Time) []Member {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return ParseMembers(decoded, now)
			}
		}
		var members []Member
		for _, name := range stringList(trimmed) {
			members = append(members, Member{Name: name, Fields: map[string]any{"name": name}, Diseases: SyncDiseases(nil, now)})
		}
		return members
	case []any:
		members := make([]Member, 0, len(v))
		for _, item := range v {
			switch entry := item.(type) {
			case map[string]any:
				if member, ok := parseMember(entry, now); ok {
					members = append(members, member)
				}
			case string:
				if name := strings.TrimSpace(entry); name != "" {
					members = append(members, Member{Name: name, Fields: map[string]any{"name": name}, Diseases: SyncDiseases(nil, now)})
				}
			}
		}
		return members
	default:
		return nil
	}
}

func parseMember(raw map[string]any, now time.Time) (Member, bool) {
	fields := make(map[string]any, len(raw))
	var health map[string]any
	for key, value := range raw {
		if key == "healthHistory" || key == "health_history" {
			health = asObject(value)
			continue
		}
		scalar := ExtractScalar(value)
		if s, ok := scalar.(string); ok && isDateField(key) {
			scalar = NormalizeDate(s)
		}
		fields[key] = scalar
	}

	member := Member{Fields: fields}
	for _, key := range memberNameKeys {
		if name := strings.TrimSpace(stringify(fields[key])); name != "" {
			member.Name = name
			break
		}
	}
	if member.Name == "" {
		return Member{}, false
	}
	member.Relationship = strings.TrimSpace(stringify(lookup(fields, "relationship")))
	member.DOB = strings.TrimSpace(stringify(lookup(fields, "dob")))
	if dob, ok := ParseDate(member.DOB); ok {
		if age, ok := Age(dob, now); ok {
			member.Age = &age
		}
	}
	if bmi, ok := BMI(parseFloat(lookup(fields, "weight")), parseFloat(lookup(fields, "height"))); ok {
		member.BMI = &bmi
	}

	// Disease data may live under a nested health map or directly on the member.
	source := raw
	if len(health) > 0 {
		source = health
	}
	member.Diseases = SyncDiseases(source, now)
	if len(health) == 0 {
		for _, name := range Diseases {
			for _, suffix := range []string{"_details", "_since_year", "_since_years", "_start_date"} {
				delete(fields, name+suffix)
			}
		}
	}
	return member, true
}

func isDateField(key string) bool {
	lower := strings.ToLower(key)
	return lower == "dob" || strings.HasSuffix(lower, "-dob") || strings.HasSuffix(lower, "_dob") ||
		strings.HasSuffix(lower, "_date") || strings.HasSuffix(lower, "-date")
}
