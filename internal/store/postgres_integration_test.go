package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func migratedStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestSubmissionLifecyclePostgres(t *testing.T) {
	s, ctx := migratedStore(t)
	uid := "AshaRao_89012"

	created, err := s.SaveSubmission(ctx, Submission{UniqueID: uid, Name: "Asha Rao", Agent: "agent.one", Payload: json.RawMessage(`{"applicant_name":"Asha Rao"}`)})
	if err != nil || !created {
		t.Fatalf("expected created submission, got %v, %v", created, err)
	}
	created, err = s.SaveSubmission(ctx, Submission{UniqueID: uid, Name: "Asha R", Agent: "agent.one", Payload: json.RawMessage(`{}`)})
	if err != nil || created {
		t.Fatalf("expected update of existing submission, got %v, %v", created, err)
	}

	// Legacy words written by older clients are migrated on read.
	if _, err := s.DB().ExecContext(ctx, `UPDATE submissions SET supervisor_status = 'pending' WHERE unique_id = $1`, uid); err != nil {
		t.Fatalf("seed legacy status: %v", err)
	}
	got, err := s.GetSubmission(ctx, uid)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if got.SupervisorStatus != "SUP_REVIEW" || got.Name != "Asha R" {
		t.Fatalf("unexpected submission: %+v", got)
	}

	ok, err := s.UpdateAgentPlans(ctx, uid, []string{"Care Plus"}, time.Now())
	if err != nil || !ok {
		t.Fatalf("update agent plans: %v, %v", ok, err)
	}
	ok, err = s.UpdateAgentPlans(ctx, "missing_00000", []string{"Care Plus"}, time.Now())
	if err != nil || ok {
		t.Fatalf("expected no row for missing id, got %v, %v", ok, err)
	}
	plans, err := s.GetPlanSelections(ctx, uid)
	if err != nil || len(plans.Agent) != 1 || plans.Agent[0] != "Care Plus" {
		t.Fatalf("unexpected plans: %+v, %v", plans, err)
	}

	ok, err = s.UpdateAgentPlans(ctx, uid, nil, time.Now())
	if err != nil || !ok {
		t.Fatalf("clear agent plans: %v, %v", ok, err)
	}
	got, _ = s.GetSubmission(ctx, uid)
	if got.SupervisorStatus != "OPEN" {
		t.Fatalf("expected OPEN after clearing plans, got %s", got.SupervisorStatus)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if ok, err := s.UpdateSupervisorStatus(ctx, StageWrite{UniqueID: uid, Status: "SUP_APPROVED", Comments: "fine", By: "sup", At: at}); err != nil || !ok {
		t.Fatalf("update supervisor status: %v, %v", ok, err)
	}
	if ok, err := s.UpdateClientReview(ctx, ClientUpdate{UniqueID: uid, Reviewed: true, Status: "Client_Agreed", Plans: []string{"Care Plus"}, By: "agent.one", At: at.Add(time.Minute)}); err != nil || !ok {
		t.Fatalf("update client review: %v, %v", ok, err)
	}
	got, _ = s.GetSubmission(ctx, uid)
	if !got.ClientReview || got.CloseStatus != "Client_Agreed" || got.CloseModifiedAt == nil {
		t.Fatalf("unexpected client stage: %+v", got)
	}

	if err := s.SetApplicationStatus(ctx, StageWrite{UniqueID: uid, Status: "Client_Agreed", By: "agent.one", At: at.Add(time.Minute)}); err != nil {
		t.Fatalf("set application status: %v", err)
	}

	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	details := PolicyDetails{
		UniqueID: uid, PolicyNumber: "P-1", MemberNumber: "M-1", MemberName: "Asha",
		StartDate: start, PeriodMonths: 1, EndDate: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		ModifiedAt: at, ModifiedBy: "agent.one",
	}
	if ok, err := s.SavePolicyDetails(ctx, details, "issued"); err != nil || !ok {
		t.Fatalf("save policy details: %v, %v", ok, err)
	}
	stored, err := s.GetPolicyDetails(ctx, uid)
	if err != nil || stored.PolicyNumber != "P-1" {
		t.Fatalf("unexpected policy details: %+v, %v", stored, err)
	}
	got, _ = s.GetSubmission(ctx, uid)
	if got.CloseStatus != "Policy_Created" || got.CloseComments != "issued" {
		t.Fatalf("expected closed submission, got %+v", got)
	}
}

func TestCommentsNewestFirstPostgres(t *testing.T) {
	s, ctx := migratedStore(t)
	uid := "Dev_12345"
	if _, err := s.SaveSubmission(ctx, Submission{UniqueID: uid, Name: "Dev", Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("save submission: %v", err)
	}
	for _, text := range []string{"first", "second"} {
		if _, err := s.InsertComment(ctx, Comment{UniqueID: uid, Modifier: "sup", Comment: text}); err != nil {
			t.Fatalf("insert comment: %v", err)
		}
	}
	comments, err := s.ListComments(ctx, uid)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 || comments[0].Comment != "second" {
		t.Fatalf("expected newest first, got %+v", comments)
	}
}

func TestGetSubmissionMissingPostgres(t *testing.T) {
	s, ctx := migratedStore(t)
	if _, err := s.GetSubmission(ctx, "nobody_00000"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if _, err := s.GetUserByUserID(ctx, "nobody"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
