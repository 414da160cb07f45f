package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTable(t *testing.T) {
	cases := []struct {
		raw       string
		canonical Status
		label     string
	}{
		{raw: "OPEN", canonical: Open, label: "Open/Draft"},
		{raw: "SUP_REVIEW", canonical: SupReview, label: "Submitted for Review"},
		{raw: "SUP_APPROVED", canonical: SupApproved, label: "Pending Client Agreement"},
		{raw: "SUP_REJECTED", canonical: SupRejected, label: "Supervisor Rejected"},
		{raw: "With_UW", canonical: WithUW, label: "With Underwriter"},
		{raw: "UW_Rejected", canonical: UWRejected, label: "Policy Denied"},
		{raw: "Policy_Created", canonical: PolicyCreated, label: "Completed"},
		{raw: "Completed", canonical: PolicyCreated, label: "Completed"},
		{raw: "Closed", canonical: Closed, label: "Closed"},
		{raw: "Client_Agreed", canonical: ClientAgreed, label: "Client Agreed"},
		{raw: "Client Approved", canonical: ClientAgreed, label: "Client Agreed"},
		{raw: "Client_Approved", canonical: ClientAgreed, label: "Client Agreed"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got := Normalize(tc.raw)
			assert.Equal(t, tc.canonical, got.Canonical)
			assert.Equal(t, tc.label, got.Label)
		})
	}
}

func TestNormalizeIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("SUP_APPROVED").Canonical, Normalize("sup_approved").Canonical)
	assert.Equal(t, "With Underwriter", Normalize("with_uw").Label)
	assert.Equal(t, "Client Agreed", Normalize("  client approved ").Label)
}

func TestNormalizeFallsBackToTitleCase(t *testing.T) {
	got := Normalize("some_legacy_status")
	assert.Equal(t, "Some Legacy Status", got.Label)
	assert.Equal(t, Status("SOME_LEGACY_STATUS"), got.Canonical)

	assert.Equal(t, "Awaiting  Docs", Normalize("AWAITING__DOCS").Label)
}

func TestNormalizeNeverReturnsEmptyLabel(t *testing.T) {
	for _, raw := range []string{"", "   ", "_", "x", "ünïcode_token", "a-b c"} {
		got := Normalize(raw)
		assert.NotEmpty(t, got.Label, "raw %q", raw)
		assert.NotEmpty(t, got.Canonical, "raw %q", raw)
	}
	assert.Equal(t, Result{Canonical: Open, Label: LabelOpen}, Normalize(""))
}

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "WITH_UW", ProgressKey("With_UW"))
	assert.Equal(t, "CLIENT_APPROVED", ProgressKey("Client Approved"))
	assert.Equal(t, "POLICY_CREATED", ProgressKey(" policy - created "))
	assert.Equal(t, "", ProgressKey(""))
}

func TestMigrateLegacy(t *testing.T) {
	assert.Equal(t, "SUP_REVIEW", MigrateLegacy("pending"))
	assert.Equal(t, "OPEN", MigrateLegacy("NA"))
	assert.Equal(t, "OPEN", MigrateLegacy("nA"))
	assert.Equal(t, "SUP_APPROVED", MigrateLegacy("Approved"))
	assert.Equal(t, "SUP_REJECTED", MigrateLegacy("rejected"))
	assert.Equal(t, "With_UW", MigrateLegacy("UW_approved"))
	assert.Equal(t, "Policy_Created", MigrateLegacy("Policy_Created"))
}
