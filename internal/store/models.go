package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	UserID       string
	DisplayName  string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Submission is one proposal row. Status columns hold the tokens as written
// by each stage; legacy supervisor words are migrated on read.
type Submission struct {
	UniqueID string
	Name     string
	Agent    string
	Payload  json.RawMessage

	ApplicationStatus     string
	ApplicationComments   string
	ApplicationModifiedAt *time.Time
	ApplicationModifiedBy string

	SupervisorStatus     string
	SupervisorComments   string
	SupervisorModifiedAt *time.Time
	SupervisorModifiedBy string

	ClientReview   bool
	ClientStatus   string
	ClientComments string

	CloseStatus     string
	CloseComments   string
	CloseModifiedAt *time.Time
	CloseModifiedBy string

	UnderwriterStatus     string
	UnderwriterComments   string
	UnderwriterModifiedAt *time.Time
	UnderwriterModifiedBy string

	PolicyOutcome           string
	PolicyOutcomeComment    string
	PolicyOutcomeModifiedAt *time.Time
	PolicyOutcomeModifiedBy string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// SubmissionSummary is a row of the client list.
type SubmissionSummary struct {
	UniqueID          string
	Name              string
	Agent             string
	ApplicationStatus string
	SupervisorStatus  string
	ModifiedAt        time.Time
}

type Comment struct {
	ID        int64
	UniqueID  string
	Modifier  string
	Comment   string
	CreatedAt time.Time
}

// PlanSelections holds the four stored plan lists of a proposal.
type PlanSelections struct {
	UniqueID             string
	System               []string
	Agent                []string
	Supervisor           []string
	Client               []string
	AgentModifiedAt      *time.Time
	SupervisorModifiedAt *time.Time
	ClientModifiedAt     *time.Time
}

type PolicyDetails struct {
	UniqueID     string
	PolicyNumber string
	PolicyName   string
	MemberNumber string
	MemberName   string
	StartDate    time.Time
	PeriodMonths int
	EndDate      time.Time
	Details      string
	ModifiedAt   time.Time
	ModifiedBy   string
}

// StageWrite is one stage's status write: who set what, and when.
type StageWrite struct {
	UniqueID string
	Status   string
	Comments string
	By       string
	At       time.Time
}

// ClientUpdate records the client's review. A nil Plans leaves the stored
// client plans untouched.
type ClientUpdate struct {
	UniqueID string
	Reviewed bool
	Comments string
	Status   string
	Plans    []string
	By       string
	At       time.Time
}
