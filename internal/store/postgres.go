package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"proposaldesk/api/internal/status"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetUserByUserID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, display_name, role, password_hash, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.ID, &user.UserID, &user.DisplayName, &user.Role, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpsertUser creates the user or replaces its name, role and password hash.
func (s *PostgresStore) UpsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, user_id, display_name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			password_hash = EXCLUDED.password_hash,
			updated_at = NOW()
	`, user.ID, user.UserID, user.DisplayName, user.Role, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context) ([]SubmissionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unique_id, name, agent, application_status, supervisor_status, modified_at
		FROM submissions
		ORDER BY modified_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]SubmissionSummary, 0)
	for rows.Next() {
		var item SubmissionSummary
		if err := rows.Scan(&item.UniqueID, &item.Name, &item.Agent, &item.ApplicationStatus, &item.SupervisorStatus, &item.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		item.SupervisorStatus = status.MigrateLegacy(item.SupervisorStatus)
		item.ApplicationStatus = status.MigrateLegacy(item.ApplicationStatus)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}

// GetSubmission returns sql.ErrNoRows for an unknown id.
func (s *PostgresStore) GetSubmission(ctx context.Context, uniqueID string) (Submission, error) {
	var (
		item                                  Submission
		payload                               []byte
		appAt, supAt, closeAt, uwAt, policyAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT unique_id, name, agent, payload,
			application_status, application_comments, application_modified_at, application_modified_by,
			supervisor_status, supervisor_comments, supervisor_modified_at, supervisor_modified_by,
			client_review, client_status, client_comments,
			close_status, close_comments, close_modified_at, close_modified_by,
			underwriter_status, underwriter_comments, underwriter_modified_at, underwriter_modified_by,
			policy_outcome, policy_outcome_comment, policy_outcome_modified_at, policy_outcome_modified_by,
			created_at, modified_at
		FROM submissions
		WHERE unique_id = $1
	`, uniqueID).Scan(
		&item.UniqueID, &item.Name, &item.Agent, &payload,
		&item.ApplicationStatus, &item.ApplicationComments, &appAt, &item.ApplicationModifiedBy,
		&item.SupervisorStatus, &item.SupervisorComments, &supAt, &item.SupervisorModifiedBy,
		&item.ClientReview, &item.ClientStatus, &item.ClientComments,
		&item.CloseStatus, &item.CloseComments, &closeAt, &item.CloseModifiedBy,
		&item.UnderwriterStatus, &item.UnderwriterComments, &uwAt, &item.UnderwriterModifiedBy,
		&item.PolicyOutcome, &item.PolicyOutcomeComment, &policyAt, &item.PolicyOutcomeModifiedBy,
		&item.CreatedAt, &item.ModifiedAt,
	)
	if err != nil {
		return Submission{}, err
	}
	item.Payload = json.RawMessage(payload)
	item.ApplicationModifiedAt = timePtr(appAt)
	item.SupervisorModifiedAt = timePtr(supAt)
	item.CloseModifiedAt = timePtr(closeAt)
	item.UnderwriterModifiedAt = timePtr(uwAt)
	item.PolicyOutcomeModifiedAt = timePtr(policyAt)
	item.SupervisorStatus = status.MigrateLegacy(item.SupervisorStatus)
	item.ApplicationStatus = status.MigrateLegacy(item.ApplicationStatus)
	item.UnderwriterStatus = status.MigrateLegacy(item.UnderwriterStatus)
	return item, nil
}

// SaveSubmission inserts a new proposal or replaces the name, agent and
// payload of an existing one. It reports whether the row was created.
func (s *PostgresStore) SaveSubmission(ctx context.Context, item Submission) (bool, error) {
	var created bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO submissions (unique_id, name, agent, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unique_id) DO UPDATE SET
			name = EXCLUDED.name,
			agent = EXCLUDED.agent,
			payload = EXCLUDED.payload,
			modified_at = NOW()
		RETURNING (xmax = 0)
	`, item.UniqueID, item.Name, item.Agent, []byte(item.Payload)).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("save submission: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ReassignAgent(ctx context.Context, uniqueID, agent string) (bool, error) {
	return s.execUpdated(ctx, "reassign agent", `
		UPDATE submissions SET agent = $2, modified_at = NOW() WHERE unique_id = $1
	`, uniqueID, agent)
}

// UpdateAgentPlans stores the agent's plan selection. An empty selection
// clears it and resets the supervisor status to OPEN.
func (s *PostgresStore) UpdateAgentPlans(ctx context.Context, uniqueID string, plans []string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin agent plans tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if len(plans) == 0 {
		res, err = tx.ExecContext(ctx, `
			UPDATE submissions SET supervisor_status = $2, modified_at = NOW() WHERE unique_id = $1
		`, uniqueID, string(status.Open))
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE submissions SET modified_at = NOW() WHERE unique_id = $1`, uniqueID)
	}
	if err != nil {
		return false, fmt.Errorf("update agent plans: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := upsertPlanColumn(ctx, tx, uniqueID, "agent", plans, at); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit agent plans: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) UpdateSupervisorPlans(ctx context.Context, uniqueID string, plans []string, at time.Time) error {
	return upsertPlanColumn(ctx, s.db, uniqueID, "supervisor", plans, at)
}

func (s *PostgresStore) SaveSystemPlans(ctx context.Context, uniqueID string, plans []string, at time.Time) error {
	return upsertPlanColumn(ctx, s.db, uniqueID, "system", plans, at)
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// planColumns maps a selection kind to its trusted column pair.
var planColumns = map[string][2]string{
	"system":     {"system_plans", "system_modified_at"},
	"agent":      {"agent_plans", "agent_modified_at"},
	"supervisor": {"supervisor_plans", "supervisor_modified_at"},
	"client":     {"client_plans", "client_modified_at"},
}

func upsertPlanColumn(ctx context.Context, db execer, uniqueID, kind string, plans []string, at time.Time) error {
	cols, ok := planColumns[kind]
	if !ok {
		return fmt.Errorf("unknown plan column %q", kind)
	}
	if plans == nil {
		plans = []string{}
	}
	encoded, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("encode %s plans: %w", kind, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO proposed_selected_plans (unique_id, %[1]s, %[2]s)
		VALUES ($1, $2, $3)
		ON CONFLICT (unique_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, %[2]s = EXCLUDED.%[2]s
	`, cols[0], cols[1])
	if _, err := db.ExecContext(ctx, query, uniqueID, encoded, at); err != nil {
		return fmt.Errorf("save %s plans: %w", kind, err)
	}
	return nil
}

// GetPlanSelections returns empty lists when nothing was stored yet.
func (s *PostgresStore) GetPlanSelections(ctx context.Context, uniqueID string) (PlanSelections, error) {
	var (
		system, agent, supervisor, client []byte
		agentAt, supAt, clientAt          sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT system_plans, agent_plans, supervisor_plans, client_plans,
			agent_modified_at, supervisor_modified_at, client_modified_at
		FROM proposed_selected_plans
		WHERE unique_id = $1
	`, uniqueID).Scan(&system, &agent, &supervisor, &client, &agentAt, &supAt, &clientAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanSelections{UniqueID: uniqueID}, nil
	}
	if err != nil {
		return PlanSelections{}, fmt.Errorf("read plan selections: %w", err)
	}

	out := PlanSelections{
		UniqueID:             uniqueID,
		AgentModifiedAt:      timePtr(agentAt),
		SupervisorModifiedAt: timePtr(supAt),
		ClientModifiedAt:     timePtr(clientAt),
	}
	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{{system, &out.System}, {agent, &out.Agent}, {supervisor, &out.Supervisor}, {client, &out.Client}} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return PlanSelections{}, fmt.Errorf("decode plan selections: %w", err)
		}
	}
	return out, nil
}

func (s *PostgresStore) UpdateSupervisorStatus(ctx context.Context, write StageWrite) (bool, error) {
	return s.execUpdated(ctx, "update supervisor status", `
		UPDATE submissions
		SET supervisor_status = $2, supervisor_comments = $3,
			supervisor_modified_at = $4, supervisor_modified_by = $5, modified_at = NOW()
		WHERE unique_id = $1
	`, write.UniqueID, write.Status, write.Comments, write.At, write.By)
}

// UpdateClientReview stores the review flag and mirrors the client status
// into the close stage.
func (s *PostgresStore) UpdateClientReview(ctx context.Context, update ClientUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin client review tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET client_review = $2, client_comments = $3, client_status = $4,
			close_status = $4, close_modified_at = $5, close_modified_by = $6, modified_at = NOW()
		WHERE unique_id = $1
	`, update.UniqueID, update.Reviewed, update.Comments, update.Status, update.At, update.By)
	if err != nil {
		return false, fmt.Errorf("update client review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if update.Plans != nil {
		if err := upsertPlanColumn(ctx, tx, update.UniqueID, "client", update.Plans, update.At); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit client review: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) UpdateUnderwriterStatus(ctx context.Context, write StageWrite) (bool, error) {
	return s.execUpdated(ctx, "update underwriter status", `
		UPDATE submissions
		SET underwriter_status = $2, underwriter_comments = $3,
			underwriter_modified_at = $4, underwriter_modified_by = $5, modified_at = NOW()
		WHERE unique_id = $1
	`, write.UniqueID, write.Status, write.Comments, write.At, write.By)
}

func (s *PostgresStore) UpdatePolicyOutcome(ctx context.Context, write StageWrite) (bool, error) {
	return s.execUpdated(ctx, "update policy outcome", `
		UPDATE submissions
		SET policy_outcome = $2, policy_outcome_comment = $3,
			policy_outcome_modified_at = $4, policy_outcome_modified_by = $5, modified_at = NOW()
		WHERE unique_id = $1
	`, write.UniqueID, write.Status, write.Comments, write.At, write.By)
}

// SetApplicationStatus writes the rolled-up stage stamp onto the row.
func (s *PostgresStore) SetApplicationStatus(ctx context.Context, write StageWrite) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET application_status = $2, application_comments = $3,
			application_modified_at = $4, application_modified_by = $5
		WHERE unique_id = $1
	`, write.UniqueID, write.Status, write.Comments, write.At, write.By)
	if err != nil {
		return fmt.Errorf("set application status: %w", err)
	}
	return nil
}

// SavePolicyDetails stores the issued policy and closes the proposal as
// Policy_Created in the same transaction.
func (s *PostgresStore) SavePolicyDetails(ctx context.Context, details PolicyDetails, closeComments string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin policy details tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET close_status = 'Policy_Created', close_comments = $2,
			close_modified_at = $3, close_modified_by = $4, modified_at = NOW()
		WHERE unique_id = $1
	`, details.UniqueID, closeComments, details.ModifiedAt, details.ModifiedBy)
	if err != nil {
		return false, fmt.Errorf("close submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO policy_details (
			unique_id, policy_number, policy_name, member_number, member_name,
			start_date, period_months, end_date, details, modified_at, modified_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (unique_id) DO UPDATE SET
			policy_number = EXCLUDED.policy_number,
			policy_name = EXCLUDED.policy_name,
			member_number = EXCLUDED.member_number,
			member_name = EXCLUDED.member_name,
			start_date = EXCLUDED.start_date,
			period_months = EXCLUDED.period_months,
			end_date = EXCLUDED.end_date,
			details = EXCLUDED.details,
			modified_at = EXCLUDED.modified_at,
			modified_by = EXCLUDED.modified_by
	`, details.UniqueID, details.PolicyNumber, details.PolicyName, details.MemberNumber, details.MemberName,
		details.StartDate, details.PeriodMonths, details.EndDate, details.Details, details.ModifiedAt, details.ModifiedBy); err != nil {
		return false, fmt.Errorf("save policy details: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit policy details: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) GetPolicyDetails(ctx context.Context, uniqueID string) (PolicyDetails, error) {
	var item PolicyDetails
	err := s.db.QueryRowContext(ctx, `
		SELECT unique_id, policy_number, policy_name, member_number, member_name,
			start_date, period_months, end_date, details, modified_at, modified_by
		FROM policy_details
		WHERE unique_id = $1
	`, uniqueID).Scan(&item.UniqueID, &item.PolicyNumber, &item.PolicyName, &item.MemberNumber, &item.MemberName,
		&item.StartDate, &item.PeriodMonths, &item.EndDate, &item.Details, &item.ModifiedAt, &item.ModifiedBy)
	if err != nil {
		return PolicyDetails{}, err
	}
	return item, nil
}

// ListComments returns the proposal's comments newest first.
func (s *PostgresStore) ListComments(ctx context.Context, uniqueID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unique_id, modifier, comment, created_at
		FROM submission_comments
		WHERE unique_id = $1
		ORDER BY created_at DESC, id DESC
	`, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.UniqueID, &item.Modifier, &item.Comment, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO submission_comments (unique_id, modifier, comment)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, item.UniqueID, item.Modifier, item.Comment).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) execUpdated(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
