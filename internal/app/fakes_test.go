package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"proposaldesk/api/internal/config"
	"proposaldesk/api/internal/search"
	"proposaldesk/api/internal/session"
	"proposaldesk/api/internal/store"
)

// fakeStore is an in-memory dataStore. Function fields override the
// default behaviour where a test needs a failure.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]store.User
	submissions map[string]store.Submission
	selections  map[string]store.PlanSelections
	comments    map[string][]store.Comment
	policies    map[string]store.PolicyDetails
	nextComment int64
	rollups     []store.StageWrite

	pingFn          func(context.Context) error
	getSubmissionFn func(context.Context, string) (store.Submission, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]store.User{},
		submissions: map[string]store.Submission{},
		selections:  map[string]store.PlanSelections{},
		comments:    map[string][]store.Comment{},
		policies:    map[string]store.PolicyDetails{},
	}
}

func (f *fakeStore) GetUserByUserID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) UpsertUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.UserID] = user
	return nil
}

func (f *fakeStore) ListSubmissions(context.Context) ([]store.SubmissionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.SubmissionSummary, 0, len(f.submissions))
	for _, item := range f.submissions {
		out = append(out, store.SubmissionSummary{
			UniqueID:          item.UniqueID,
			Name:              item.Name,
			Agent:             item.Agent,
			ApplicationStatus: item.ApplicationStatus,
			SupervisorStatus:  item.SupervisorStatus,
			ModifiedAt:        item.ModifiedAt,
		})
	}
	return out, nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, uniqueID string) (store.Submission, error) {
	if f.getSubmissionFn != nil {
		return f.getSubmissionFn(ctx, uniqueID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.submissions[uniqueID]
	if !ok {
		return store.Submission{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) SaveSubmission(_ context.Context, item store.Submission) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.submissions[item.UniqueID]
	if !ok {
		item.ApplicationStatus = "OPEN"
		item.SupervisorStatus = "OPEN"
		f.submissions[item.UniqueID] = item
		return true, nil
	}
	existing.Name = item.Name
	existing.Agent = item.Agent
	existing.Payload = item.Payload
	f.submissions[item.UniqueID] = existing
	return false, nil
}

func (f *fakeStore) ReassignAgent(_ context.Context, uniqueID, agent string) (bool, error) {
	return f.update(uniqueID, func(item *store.Submission) { item.Agent = agent }), nil
}

func (f *fakeStore) UpdateAgentPlans(_ context.Context, uniqueID string, plans []string, at time.Time) (bool, error) {
	f.mu.Lock()
	item, ok := f.submissions[uniqueID]
	if !ok {
		f.mu.Unlock()
		return false, nil
	}
	sel := f.selections[uniqueID]
	sel.UniqueID = uniqueID
	sel.Agent = plans
	sel.AgentModifiedAt = &at
	f.selections[uniqueID] = sel
	if len(plans) == 0 {
		item.SupervisorStatus = "OPEN"
		f.submissions[uniqueID] = item
	}
	f.mu.Unlock()
	return true, nil
}

func (f *fakeStore) UpdateSupervisorPlans(_ context.Context, uniqueID string, plans []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := f.selections[uniqueID]
	sel.UniqueID = uniqueID
	sel.Supervisor = plans
	sel.SupervisorModifiedAt = &at
	f.selections[uniqueID] = sel
	return nil
}

func (f *fakeStore) SaveSystemPlans(_ context.Context, uniqueID string, plans []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := f.selections[uniqueID]
	sel.UniqueID = uniqueID
	sel.System = plans
	f.selections[uniqueID] = sel
	return nil
}

func (f *fakeStore) GetPlanSelections(_ context.Context, uniqueID string) (store.PlanSelections, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, ok := f.selections[uniqueID]
	if !ok {
		return store.PlanSelections{UniqueID: uniqueID}, nil
	}
	return sel, nil
}

func (f *fakeStore) UpdateSupervisorStatus(_ context.Context, write store.StageWrite) (bool, error) {
	return f.update(write.UniqueID, func(item *store.Submission) {
		item.SupervisorStatus = write.Status
		item.SupervisorComments = write.Comments
		item.SupervisorModifiedBy = write.By
		at := write.At
		item.SupervisorModifiedAt = &at
	}), nil
}

func (f *fakeStore) UpdateClientReview(_ context.Context, update store.ClientUpdate) (bool, error) {
	ok := f.update(update.UniqueID, func(item *store.Submission) {
		item.ClientReview = update.Reviewed
		item.ClientStatus = update.Status
		item.ClientComments = update.Comments
		if update.Status != "" {
			item.CloseStatus = update.Status
			item.CloseComments = update.Comments
			item.CloseModifiedBy = update.By
			at := update.At
			item.CloseModifiedAt = &at
		}
	})
	if ok && update.Plans != nil {
		f.mu.Lock()
		sel := f.selections[update.UniqueID]
		sel.UniqueID = update.UniqueID
		sel.Client = update.Plans
		at := update.At
		sel.ClientModifiedAt = &at
		f.selections[update.UniqueID] = sel
		f.mu.Unlock()
	}
	return ok, nil
}

func (f *fakeStore) UpdateUnderwriterStatus(_ context.Context, write store.StageWrite) (bool, error) {
	return f.update(write.UniqueID, func(item *store.Submission) {
		item.UnderwriterStatus = write.Status
		item.UnderwriterComments = write.Comments
		item.UnderwriterModifiedBy = write.By
		at := write.At
		item.UnderwriterModifiedAt = &at
	}), nil
}

func (f *fakeStore) UpdatePolicyOutcome(_ context.Context, write store.StageWrite) (bool, error) {
	return f.update(write.UniqueID, func(item *store.Submission) {
		item.PolicyOutcome = write.Status
		item.PolicyOutcomeComment = write.Comments
		item.PolicyOutcomeModifiedBy = write.By
		at := write.At
		item.PolicyOutcomeModifiedAt = &at
	}), nil
}

func (f *fakeStore) SetApplicationStatus(_ context.Context, write store.StageWrite) error {
	f.update(write.UniqueID, func(item *store.Submission) {
		item.ApplicationStatus = write.Status
		item.ApplicationComments = write.Comments
		item.ApplicationModifiedBy = write.By
		at := write.At
		item.ApplicationModifiedAt = &at
	})
	f.mu.Lock()
	f.rollups = append(f.rollups, write)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) SavePolicyDetails(_ context.Context, details store.PolicyDetails, closeComments string) (bool, error) {
	ok := f.update(details.UniqueID, func(item *store.Submission) {
		item.CloseStatus = "Policy_Created"
		item.CloseComments = closeComments
		item.CloseModifiedBy = details.ModifiedBy
		at := details.ModifiedAt
		item.CloseModifiedAt = &at
	})
	if ok {
		f.mu.Lock()
		f.policies[details.UniqueID] = details
		f.mu.Unlock()
	}
	return ok, nil
}

func (f *fakeStore) GetPolicyDetails(_ context.Context, uniqueID string) (store.PolicyDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	details, ok := f.policies[uniqueID]
	if !ok {
		return store.PolicyDetails{}, sql.ErrNoRows
	}
	return details, nil
}

func (f *fakeStore) ListComments(_ context.Context, uniqueID string) ([]store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.comments[uniqueID]
	out := make([]store.Comment, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

func (f *fakeStore) InsertComment(_ context.Context, item store.Comment) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextComment++
	item.ID = f.nextComment
	item.CreatedAt = time.Date(2026, 1, 1, 0, 0, int(f.nextComment), 0, time.UTC)
	f.comments[item.UniqueID] = append(f.comments[item.UniqueID], item)
	return item, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) update(uniqueID string, apply func(*store.Submission)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.submissions[uniqueID]
	if !ok {
		return false
	}
	apply(&item)
	f.submissions[uniqueID] = item
	return true
}

func (f *fakeStore) submission(uniqueID string) store.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[uniqueID]
}

type fakeSessions struct {
	mu      sync.Mutex
	refresh map[string]session.Session
	drafts  map[string]session.Draft
	pingErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: map[string]session.Session{}, drafts: map[string]session.Draft{}}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, sess session.Session, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = sess
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.refresh[tokenHash]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeSessions) SaveDraft(_ context.Context, draft session.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[draft.UserID+"/"+draft.UniqueID] = draft
	return nil
}

func (f *fakeSessions) LoadDraft(_ context.Context, userID, uniqueID string) (session.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	draft, ok := f.drafts[userID+"/"+uniqueID]
	if !ok {
		return session.Draft{}, session.ErrNotFound
	}
	return draft, nil
}

func (f *fakeSessions) DeleteDraft(_ context.Context, userID, uniqueID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, userID+"/"+uniqueID)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error {
	return f.pingErr
}

type fakeSearch struct {
	mu        sync.Mutex
	response  search.Response
	proposals []search.ProposalRecord
	comments  []search.CommentRecord
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	resp := f.response
	resp.Query = q.Text
	return resp
}

func (f *fakeSearch) IndexProposal(p search.ProposalRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposals = append(f.proposals, p)
}

func (f *fakeSearch) IndexComment(c search.CommentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, c)
}

// testClock returns a clock that advances one minute per call. It starts at
// the wall clock so issued tokens are not already expired.
func testClock() func() time.Time {
	var mu sync.Mutex
	current := time.Now().UTC().Truncate(time.Second)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Minute)
		return current
	}
}

func newTestService(fs *fakeStore, sessions *fakeSessions, index *fakeSearch) *Service {
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	var refresh sessionStore
	if sessions != nil {
		refresh = sessions
	}
	var idx searchIndex
	if index != nil {
		idx = index
	}
	svc := newService(cfg, fs, refresh, idx, nil)
	svc.now = testClock()
	return svc
}
