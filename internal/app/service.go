package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"proposaldesk/api/internal/auth"
	"proposaldesk/api/internal/authpw"
	"proposaldesk/api/internal/config"
	"proposaldesk/api/internal/lifecycle"
	"proposaldesk/api/internal/metrics"
	"proposaldesk/api/internal/rbac"
	"proposaldesk/api/internal/reconcile"
	"proposaldesk/api/internal/search"
	"proposaldesk/api/internal/session"
	"proposaldesk/api/internal/status"
	"proposaldesk/api/internal/store"
	"proposaldesk/api/internal/util"
)

type dataStore interface {
	GetUserByUserID(context.Context, string) (store.User, error)
	UpsertUser(context.Context, store.User) error
	ListSubmissions(context.Context) ([]store.SubmissionSummary, error)
	GetSubmission(context.Context, string) (store.Submission, error)
	SaveSubmission(context.Context, store.Submission) (bool, error)
	ReassignAgent(context.Context, string, string) (bool, error)
	UpdateAgentPlans(context.Context, string, []string, time.Time) (bool, error)
	UpdateSupervisorPlans(context.Context, string, []string, time.Time) error
	SaveSystemPlans(context.Context, string, []string, time.Time) error
	GetPlanSelections(context.Context, string) (store.PlanSelections, error)
	UpdateSupervisorStatus(context.Context, store.StageWrite) (bool, error)
	UpdateClientReview(context.Context, store.ClientUpdate) (bool, error)
	UpdateUnderwriterStatus(context.Context, store.StageWrite) (bool, error)
	UpdatePolicyOutcome(context.Context, store.StageWrite) (bool, error)
	SetApplicationStatus(context.Context, store.StageWrite) error
	SavePolicyDetails(context.Context, store.PolicyDetails, string) (bool, error)
	GetPolicyDetails(context.Context, string) (store.PolicyDetails, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, session.Session, time.Time) error
	LookupRefreshSession(context.Context, string) (session.Session, error)
	RevokeRefreshSession(context.Context, string) error
	SaveDraft(context.Context, session.Draft) error
	LoadDraft(context.Context, string, string) (session.Draft, error)
	DeleteDraft(context.Context, string, string) error
	Ping(context.Context) error
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexProposal(search.ProposalRecord)
	IndexComment(search.CommentRecord)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	users    *authpw.Service
	search   searchIndex
	metrics  *metrics.Collectors
	now      func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, searchService *search.Service, collectors *metrics.Collectors) *Service {
	var index searchIndex
	if searchService != nil {
		index = searchService
	}
	var refresh sessionStore
	if sessions != nil {
		refresh = sessions
	}
	return newService(cfg, dataStore, refresh, index, collectors)
}

func newService(cfg config.Config, data dataStore, sessions sessionStore, index searchIndex, collectors *metrics.Collectors) *Service {
	return &Service{
		cfg:      cfg,
		store:    data,
		sessions: sessions,
		users:    authpw.NewService(data),
		search:   index,
		metrics:  collectors,
		now:      time.Now,
	}
}

// Users exposes the login service for the CLI.
func (s *Service) Users() *authpw.Service {
	return s.users
}

func (s *Service) Login(ctx context.Context, userID, password, role string) (session.Session, error) {
	user, err := s.users.Login(ctx, authpw.LoginRequest{UserID: userID, Password: password, Role: role})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrMissingCredentials):
			return session.Session{}, domainError(http.StatusBadRequest, "MISSING_CREDENTIALS", "Missing credentials", nil)
		case errors.Is(err, authpw.ErrInvalidRole):
			return session.Session{}, domainError(http.StatusBadRequest, "INVALID_ROLE", "Invalid role specified", nil)
		default:
			return session.Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil)
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (session.Session, error) {
	if err := s.requireSessions(); err != nil {
		return session.Session{}, err
	}
	tokenHash := auth.HashToken(refreshToken)
	stored, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.Session{}, auth.ErrInvalidToken
		}
		return session.Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return session.Session{}, err
	}
	user, err := s.store.GetUserByUserID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, auth.ErrInvalidToken
		}
		return session.Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (session.Session, error) {
	if err := s.requireSessions(); err != nil {
		return session.Session{}, err
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := rbac.Normalize(user.Role)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.UserID,
		Name: user.DisplayName,
		Role: string(role),
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return session.Session{}, err
	}

	sess := session.New(user.UserID, user.DisplayName, role)
	sess.Token = token
	sess.JTI = jti
	sess.ExpiresAt = expiresAt

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), sess, now.Add(s.cfg.RefreshTTL)); err != nil {
		return session.Session{}, err
	}
	sess.RefreshToken = refresh
	return sess, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (session.Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return session.Session{}, err
	}
	user, err := s.store.GetUserByUserID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, auth.ErrInvalidToken
		}
		return session.Session{}, err
	}

	sess := session.New(user.UserID, user.DisplayName, rbac.Normalize(user.Role))
	sess.Token = token
	sess.JTI = claims.JTI
	sess.ExpiresAt = time.Unix(claims.Exp, 0)
	return sess.WithClock(s.now), nil
}

func (s *Service) Logout(ctx context.Context, sess session.Session, refreshToken string) error {
	if refreshToken != "" && s.sessions != nil {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

func (s *Service) authorize(sess session.Session, action rbac.Action) error {
	if !rbac.Can(sess.Role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": string(action)})
	}
	return nil
}

// ClientSummary is one row of the client list.
type ClientSummary struct {
	UniqueID          string `json:"unique_id"`
	Name              string `json:"name"`
	Agent             string `json:"agent"`
	ApplicationStatus string `json:"application_status"`
	SupervisorStatus  string `json:"supervisor_status"`
	StatusLabel       string `json:"status_label"`
}

// ListClients returns the proposals visible to sess, most recently modified
// first.
func (s *Service) ListClients(ctx context.Context, sess session.Session) ([]ClientSummary, error) {
	if err := s.authorize(sess, rbac.ActionRead); err != nil {
		return nil, err
	}
	rows, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	visible := lifecycle.VisibleProposals(sess, rows, func(row store.SubmissionSummary) string { return row.Agent })
	out := make([]ClientSummary, 0, len(visible))
	for _, row := range visible {
		out = append(out, ClientSummary{
			UniqueID:          row.UniqueID,
			Name:              row.Name,
			Agent:             row.Agent,
			ApplicationStatus: row.ApplicationStatus,
			SupervisorStatus:  row.SupervisorStatus,
			StatusLabel:       status.Label(status.MigrateLegacy(row.SupervisorStatus)),
		})
	}
	return out, nil
}

// loadSubmission fetches a submission the session may see.
func (s *Service) loadSubmission(ctx context.Context, sess session.Session, uniqueID string) (store.Submission, error) {
	uniqueID = strings.TrimSpace(uniqueID)
	if uniqueID == "" {
		return store.Submission{}, domainError(http.StatusBadRequest, "INVALID_UNIQUE_ID", "Invalid unique_id", nil)
	}
	item, err := s.store.GetSubmission(ctx, uniqueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Submission{}, errSubmissionNotFound()
		}
		return store.Submission{}, err
	}
	visible, err := s.visibleTo(ctx, sess, item.Agent)
	if err != nil {
		return store.Submission{}, err
	}
	if !visible {
		return store.Submission{}, errOtherAgent()
	}
	return item, nil
}

// visibleTo applies the client list's visibility rule to one proposal.
func (s *Service) visibleTo(ctx context.Context, sess session.Session, agent string) (bool, error) {
	if sess.Role != rbac.RoleAgent && sess.Role != rbac.RoleClient {
		return true, nil
	}
	assigned, err := s.assignments(ctx)
	if err != nil {
		return false, err
	}
	return lifecycle.AssignedTo(sess, assigned, agent), nil
}

// assignments lists the agent of every stored proposal.
func (s *Service) assignments(ctx context.Context) ([]string, error) {
	rows, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	assigned := make([]string, 0, len(rows))
	for _, row := range rows {
		assigned = append(assigned, row.Agent)
	}
	return assigned, nil
}

// GetSubmission returns the stored payload merged under the row's columns.
// Payload keys never override a column that has a value.
func (s *Service) GetSubmission(ctx context.Context, sess session.Session, uniqueID string) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionRead); err != nil {
		return nil, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayloadObject(item.Payload)
	if err != nil {
		return nil, errCorruptedPayload(err)
	}

	data := submissionColumns(item)
	for key, value := range payload {
		if existing, ok := data[key]; !ok || existing == nil || existing == "" {
			data[key] = value
		}
	}
	return data, nil
}

// SubmitInput is the body of POST /submit.
type SubmitInput struct {
	FormData json.RawMessage `json:"formData"`
}

// SubmitResult reports the stored proposal.
type SubmitResult struct {
	SubmissionID string   `json:"submissionId"`
	Message      string   `json:"message"`
	Created      bool     `json:"-"`
	Plans        []string `json:"plans"`
}

// Submit creates or replaces a proposal from the agent's form data. The
// session's identity becomes the proposal's agent.
func (s *Service) Submit(ctx context.Context, sess session.Session, input SubmitInput) (SubmitResult, error) {
	if err := s.authorize(sess, rbac.ActionEdit); err != nil {
		return SubmitResult{}, err
	}
	payload, err := reconcile.ParsePayload(input.FormData)
	if err != nil || len(input.FormData) == 0 {
		return SubmitResult{}, domainError(http.StatusBadRequest, "INVALID_FORM", "Form data, Unique ID, and Full Name are required.", nil)
	}
	record := reconcile.New(sess).Reconcile(payload)
	name := firstNonBlank(
		reconcile.ScalarString(record.Sections[reconcile.SectionPrimaryContact]["applicant_name"]),
		reconcile.ScalarString(record.Fields["applicant_name"]),
	)
	if record.UniqueID == "" || name == "" {
		return SubmitResult{}, domainError(http.StatusBadRequest, "INVALID_FORM", "Form data, Unique ID, and Full Name are required.", nil)
	}

	agent := sess.Identity()
	if existing, err := s.store.GetSubmission(ctx, record.UniqueID); err == nil {
		visible, err := s.visibleTo(ctx, sess, existing.Agent)
		if err != nil {
			return SubmitResult{}, err
		}
		if !visible {
			return SubmitResult{}, errOtherAgent()
		}
		if strings.TrimSpace(existing.Agent) != "" {
			agent = existing.Agent
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return SubmitResult{}, err
	}

	created, err := s.store.SaveSubmission(ctx, store.Submission{
		UniqueID: record.UniqueID,
		Name:     name,
		Agent:    agent,
		Payload:  input.FormData,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	proposed := record.Selections.SystemProposed
	if len(proposed) > 0 {
		if err := s.store.SaveSystemPlans(ctx, record.UniqueID, proposed, s.now().UTC()); err != nil {
			return SubmitResult{}, err
		}
	}
	if s.sessions != nil {
		if err := s.sessions.DeleteDraft(ctx, sess.UserID, record.UniqueID); err != nil {
			log.Printf("drafts: delete %s for %s: %v", record.UniqueID, sess.UserID, err)
		}
	}
	s.indexProposal(record.UniqueID, name, agent, string(status.Open))

	result := SubmitResult{SubmissionID: record.UniqueID, Created: created, Plans: nonNilStrings(proposed)}
	if created {
		result.Message = "Submission created successfully."
	} else {
		result.Message = "Submission updated successfully."
	}
	return result, nil
}

// ReassignAgent hands a proposal to another agent.
func (s *Service) ReassignAgent(ctx context.Context, sess session.Session, uniqueID, agent string) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionReassign); err != nil {
		return nil, err
	}
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, domainError(http.StatusBadRequest, "MISSING_AGENT", "Agent is required", nil)
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.ReassignAgent(ctx, item.UniqueID, agent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errSubmissionNotFound()
	}
	s.indexProposal(item.UniqueID, item.Name, agent, item.ApplicationStatus)
	return map[string]any{"success": true, "unique_id": item.UniqueID, "agent": agent}, nil
}

// CommentView is a stored comment as returned by the API.
type CommentView struct {
	ID        int64     `json:"id"`
	Modifier  string    `json:"modifier"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Service) ListComments(ctx context.Context, sess session.Session, uniqueID string) ([]CommentView, error) {
	if err := s.authorize(sess, rbac.ActionRead); err != nil {
		return nil, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, item.UniqueID)
	if err != nil {
		return nil, err
	}
	out := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		out = append(out, CommentView{ID: comment.ID, Modifier: comment.Modifier, Comment: comment.Comment, Timestamp: comment.CreatedAt})
	}
	return out, nil
}

// AddComment stores a comment. The modifier defaults to the session's name.
func (s *Service) AddComment(ctx context.Context, sess session.Session, uniqueID, modifier, text string) (CommentView, error) {
	if err := s.authorize(sess, rbac.ActionComment); err != nil {
		return CommentView{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return CommentView{}, domainError(http.StatusBadRequest, "MISSING_COMMENT", "Comment is required", nil)
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return CommentView{}, err
	}
	stored, err := s.insertComment(ctx, item, firstNonBlank(modifier, sess.UserName, sess.Identity()), text)
	if err != nil {
		return CommentView{}, err
	}
	return CommentView{ID: stored.ID, Modifier: stored.Modifier, Comment: stored.Comment, Timestamp: stored.CreatedAt}, nil
}

func (s *Service) insertComment(ctx context.Context, item store.Submission, modifier, text string) (store.Comment, error) {
	stored, err := s.store.InsertComment(ctx, store.Comment{UniqueID: item.UniqueID, Modifier: modifier, Comment: text})
	if err != nil {
		return store.Comment{}, err
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:       fmt.Sprintf("%d", stored.ID),
			UniqueID: item.UniqueID,
			Agent:    item.Agent,
			Modifier: stored.Modifier,
			Comment:  stored.Comment,
		})
	}
	return stored, nil
}

// Search runs a full-text search and drops hits the session may not see.
// Search runs query and drops hits the session could not open.
func (s *Service) Search(ctx context.Context, sess session.Session, query search.Query) (search.Response, error) {
	if err := s.authorize(sess, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query.Text}, nil
	}
	resp := s.search.Search(query)
	if resp.Backend != "" {
		s.metrics.Search(resp.Backend)
	}
	visible := resp.Results
	if sess.Role == rbac.RoleAgent || sess.Role == rbac.RoleClient {
		assigned, err := s.assignments(ctx)
		if err != nil {
			return search.Response{}, err
		}
		visible = nil
		for _, result := range resp.Results {
			if lifecycle.AssignedTo(sess, assigned, result.Agent) {
				visible = append(visible, result)
			}
		}
	}
	if len(visible) != len(resp.Results) {
		resp.Total -= len(resp.Results) - len(visible)
	}
	if visible == nil {
		visible = []search.Result{}
	}
	resp.Results = visible
	return resp, nil
}

// SaveDraft caches an unsubmitted proposal payload for the session's user.
func (s *Service) SaveDraft(ctx context.Context, sess session.Session, uniqueID string, payload json.RawMessage) (session.Draft, error) {
	if err := s.authorize(sess, rbac.ActionEdit); err != nil {
		return session.Draft{}, err
	}
	if err := s.requireSessions(); err != nil {
		return session.Draft{}, err
	}
	if _, err := decodePayloadObject(payload); err != nil {
		return session.Draft{}, domainError(http.StatusBadRequest, "INVALID_DRAFT", "Draft must be a JSON object", nil)
	}
	draft := session.Draft{UniqueID: uniqueID, UserID: sess.UserID, Payload: payload, UpdatedAt: s.now().UTC()}
	if err := s.sessions.SaveDraft(ctx, draft); err != nil {
		return session.Draft{}, err
	}
	return draft, nil
}

func (s *Service) LoadDraft(ctx context.Context, sess session.Session, uniqueID string) (session.Draft, error) {
	if err := s.authorize(sess, rbac.ActionEdit); err != nil {
		return session.Draft{}, err
	}
	if err := s.requireSessions(); err != nil {
		return session.Draft{}, err
	}
	draft, err := s.sessions.LoadDraft(ctx, sess.UserID, uniqueID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.Draft{}, domainError(http.StatusNotFound, "DRAFT_NOT_FOUND", "Draft not found", nil)
		}
		return session.Draft{}, err
	}
	return draft, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) requireSessions() error {
	if s.sessions == nil {
		return domainError(http.StatusServiceUnavailable, "SESSIONS_UNAVAILABLE", "Session store not configured", nil)
	}
	return nil
}

// PingSessions checks the Redis session store.
func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return errors.New("session store not configured")
	}
	return s.sessions.Ping(ctx)
}

func (s *Service) indexProposal(uniqueID, name, agent, raw string) {
	if s.search == nil {
		return
	}
	canonical := status.MigrateLegacy(raw)
	s.search.IndexProposal(search.ProposalRecord{
		ID:     uniqueID,
		Name:   name,
		Agent:  agent,
		Status: canonical,
		Label:  status.Label(canonical),
	})
}

func submissionColumns(item store.Submission) map[string]any {
	return map[string]any{
		"unique_id":                  item.UniqueID,
		"name":                       item.Name,
		"agent":                      item.Agent,
		"application_status":         item.ApplicationStatus,
		"application_comments":       item.ApplicationComments,
		"application_modified_at":    item.ApplicationModifiedAt,
		"application_modified_by":    item.ApplicationModifiedBy,
		"supervisor_status":          item.SupervisorStatus,
		"supervisor_comments":        item.SupervisorComments,
		"supervisor_modified_at":     item.SupervisorModifiedAt,
		"supervisor_modified_by":     item.SupervisorModifiedBy,
		"client_review":              boolToInt(item.ClientReview),
		"client_status":              item.ClientStatus,
		"client_comments":            item.ClientComments,
		"close_status":               item.CloseStatus,
		"close_comments":             item.CloseComments,
		"close_modified_at":          item.CloseModifiedAt,
		"close_modified_by":          item.CloseModifiedBy,
		"underwriter_status":         item.UnderwriterStatus,
		"underwriter_comments":       item.UnderwriterComments,
		"underwriter_modified_at":    item.UnderwriterModifiedAt,
		"underwriter_modified_by":    item.UnderwriterModifiedBy,
		"policy_outcome":             item.PolicyOutcome,
		"policy_outcome_comment":     item.PolicyOutcomeComment,
		"policy_outcome_modified_at": item.PolicyOutcomeModifiedAt,
		"policy_outcome_modified_by": item.PolicyOutcomeModifiedBy,
		"created_at":                 item.CreatedAt,
		"modified_at":                item.ModifiedAt,
	}
}

// decodePayloadObject rejects stored payloads that are not JSON objects.
func decodePayloadObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("payload is null")
	}
	return out, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
