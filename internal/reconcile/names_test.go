package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameCandidates(t *testing.T) {
	assert.Equal(t, []string{"selfDob", "self-dob", "selfdob"}, NameCandidates("selfDob"))
	assert.Equal(t, []string{"self_dob", "self-dob"}, NameCandidates("self_dob"))
	assert.Equal(t, []string{"Self-Dob", "Self_Dob", "self-dob"}, NameCandidates("Self-Dob"))
	assert.Equal(t, []string{"email"}, NameCandidates("email"))
}

func TestResolveFieldNameFirstMatchWins(t *testing.T) {
	known := map[string]bool{"self-dob": true, "self_dob": true}
	has := func(name string) bool { return known[name] }

	got, ok := ResolveFieldName("self_dob", has)
	require.True(t, ok)
	assert.Equal(t, "self_dob", got)

	got, ok = ResolveFieldName("selfDob", has)
	require.True(t, ok)
	assert.Equal(t, "self-dob", got)

	_, ok = ResolveFieldName("unknown", has)
	assert.False(t, ok)
}

func TestBindSkipsUnknownAndNormalizesDates(t *testing.T) {
	target := newFieldSet([]string{"self-dob", "applicant_name"}, []string{"self-dob"})
	skipped := Bind(map[string]any{
		"selfDob":        "01/02/1990",
		"applicant_name": "Asha",
		"unknown":        1,
	}, target)

	assert.Equal(t, []string{"unknown"}, skipped)
	assert.Equal(t, "1990-02-01", target.values["self-dob"])
	assert.Equal(t, "Asha", target.values["applicant_name"])
}

func TestFieldSetKeepsNonBlankValue(t *testing.T) {
	target := newFieldSet([]string{"email"}, nil)
	target.Set("email", "a@example.com")
	target.Set("email", "")
	assert.Equal(t, "a@example.com", target.values["email"])
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-03-05", NormalizeDate("5/3/2024"))
	assert.Equal(t, "2024-12-25", NormalizeDate(" 25/12/2024 "))
	assert.Equal(t, "2024-03-05", NormalizeDate("2024-03-05"))
	assert.Equal(t, "soon", NormalizeDate("soon"))
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate("15/08/2015")
	require.True(t, ok)
	assert.Equal(t, time.Date(2015, 8, 15, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseDate("2024-01-02T10:00:00Z")
	assert.True(t, ok)
	_, ok = ParseDate("2024-01-02 10:00:00")
	assert.True(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
	_, ok = ParseDate("last spring")
	assert.False(t, ok)
}

func TestMergeSectionData(t *testing.T) {
	fields := []string{"applicant_name", "self-dob"}
	flat := map[string]any{"applicant_name": "Flat", "self_dob": "01/01/1990", "other": "x"}

	nested := map[string]any{"applicant_name": "Nested"}
	merged := MergeSectionData(nested, flat, fields)
	assert.Equal(t, map[string]any{"applicant_name": "Nested"}, merged)
	merged["applicant_name"] = "changed"
	assert.Equal(t, "Nested", nested["applicant_name"], "nested input must not be modified")

	merged = MergeSectionData(map[string]any{}, flat, fields)
	assert.Equal(t, map[string]any{"applicant_name": "Flat", "self-dob": "01/01/1990"}, merged)
}

func TestUniqueID(t *testing.T) {
	assert.Equal(t, "AnneO'Neil_89012", UniqueID(" Anne O'Neil ", "1234-5678-9012"))
	assert.Equal(t, "Ravi_123", UniqueID("Ravi", "123"))
}

func TestBMIAndAge(t *testing.T) {
	bmi, ok := BMI(70, 175)
	require.True(t, ok)
	assert.Equal(t, 22.86, bmi)

	_, ok = BMI(70, 0)
	assert.False(t, ok)

	now := time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)
	age, ok := Age(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), now)
	require.True(t, ok)
	assert.Equal(t, 35, age)

	age, ok = Age(time.Date(1990, 6, 14, 0, 0, 0, 0, time.UTC), now)
	require.True(t, ok)
	assert.Equal(t, 36, age)

	_, ok = Age(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), now)
	assert.False(t, ok)
}
