package reconcile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// UniqueID builds the proposal identifier from the applicant's name and
// Aadhaar number: the name without spaces or punctuation (apostrophes
// survive), an underscore, then the last five Aadhaar digits.
func UniqueID(name, aadhaar string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
		}
	}

	var digits []rune
	for _, r := range aadhaar {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) > 5 {
		digits = digits[len(digits)-5:]
	}
	return b.String() + "_" + string(digits)
}

// BMI computes weight / (height in metres)^2 rounded to two decimals.
func BMI(weightKg, heightCm float64) (float64, bool) {
	if weightKg <= 0 || heightCm <= 0 {
		return 0, false
	}
	metres := heightCm / 100
	return math.Round(weightKg/(metres*metres)*100) / 100, true
}

// Age returns completed years between dob and now.
func Age(dob, now time.Time) (int, bool) {
	if dob.IsZero() {
		return 0, false
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

func parseFloat(value any) float64 {
	switch v := ExtractScalar(value).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// asObject reads a section that may be stored as an object or as a JSON
// string holding one.
func asObject(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "{") {
			return nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil
		}
		return decoded
	default:
		return nil
	}
}
