package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"proposaldesk/api/internal/authpw"
	"proposaldesk/api/internal/metrics"
)

func newTestServer(t *testing.T) (*HTTPServer, *Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	svc := newTestService(fs, newFakeSessions(), &fakeSearch{})
	for _, user := range []authpw.CreateUserRequest{
		{UserID: "agent.one", DisplayName: "Agent One", Role: "agent", Password: "agent-pass"},
		{UserID: "sup.one", DisplayName: "Sup One", Role: "supervisor", Password: "super-pass"},
	} {
		if _, err := svc.Users().CreateUser(context.Background(), user); err != nil {
			t.Fatalf("create user %s: %v", user.UserID, err)
		}
	}
	return NewHTTPServer(svc, "*", metrics.New()), svc, fs
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func login(t *testing.T, server *HTTPServer, userID, password, role string) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"user_id": userID, "password": password, "role": role})
	rr := doJSON(t, server, http.MethodPost, "/api/auth/login", "", string(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d body=%s", userID, rr.Code, rr.Body.String())
	}
	return decodeMap(t, rr)
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ok := decodeMap(t, rr)["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	server, _, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodOptions, "/submit", "", "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, svc, fs := newTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	svc.sessions.(*fakeSessions).pingErr = errors.New("redis down")
	rr = doJSON(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	payload := decodeMap(t, rr)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	if db := checks["database"].(map[string]any); db["error"] != "connection refused" {
		t.Errorf("unexpected database check %v", db)
	}
	if redis := checks["sessions"].(map[string]any); redis["error"] != "redis down" {
		t.Errorf("unexpected sessions check %v", redis)
	}
}

func TestLoginReturnsContract(t *testing.T) {
	server, _, _ := newTestServer(t)
	payload := login(t, server, "agent.one", "agent-pass", "agent")

	if token, _ := payload["token"].(string); token == "" {
		t.Fatal("expected token")
	}
	if refresh, _ := payload["refreshToken"].(string); refresh == "" {
		t.Fatal("expected refreshToken")
	}
	if payload["userName"] != "Agent One" || payload["userId"] != "agent.one" || payload["role"] != "agent" {
		t.Fatalf("unexpected login payload %v", payload)
	}
}

func TestLoginErrors(t *testing.T) {
	server, _, _ := newTestServer(t)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed", body: `{"user_id":`, status: http.StatusBadRequest, code: "INVALID_BODY"},
		{name: "missing password", body: `{"user_id":"agent.one","role":"agent"}`, status: http.StatusBadRequest, code: "MISSING_CREDENTIALS"},
		{name: "client role", body: `{"user_id":"agent.one","password":"agent-pass","role":"client"}`, status: http.StatusBadRequest, code: "INVALID_ROLE"},
		{name: "wrong role", body: `{"user_id":"agent.one","password":"agent-pass","role":"supervisor"}`, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
		{name: "wrong password", body: `{"user_id":"agent.one","password":"nope-nope","role":"agent"}`, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
		{name: "unknown user", body: `{"user_id":"ghost","password":"agent-pass","role":"agent"}`, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, server, http.MethodPost, "/api/auth/login", "", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d body=%s", tt.status, rr.Code, rr.Body.String())
			}
			if code := decodeMap(t, rr)["code"]; code != tt.code {
				t.Fatalf("expected code %s, got %v", tt.code, code)
			}
		})
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	server, _, _ := newTestServer(t)
	first := login(t, server, "agent.one", "agent-pass", "agent")
	refresh := first["refreshToken"].(string)

	rr := doJSON(t, server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refresh+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rotated := decodeMap(t, rr)
	if rotated["refreshToken"] == refresh || rotated["token"] == "" {
		t.Fatalf("expected a new token pair, got %v", rotated)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refresh+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused refresh token to be rejected, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/session/logout", "", `{"refreshToken":"`+rotated["refreshToken"].(string)+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+rotated["refreshToken"].(string)+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked refresh token to be rejected, got %d", rr.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/api/session", "", "")
	if decodeMap(t, rr)["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %s", rr.Body.String())
	}

	token := login(t, server, "sup.one", "super-pass", "supervisor")["token"].(string)
	rr = doJSON(t, server, http.MethodGet, "/api/session", token, "")
	payload := decodeMap(t, rr)
	if payload["authenticated"] != true || payload["role"] != "supervisor" {
		t.Fatalf("unexpected session payload %v", payload)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	server, _, _ := newTestServer(t)
	for _, path := range []string{"/clients", "/submission/AshaRao_89012", "/api/search?q=x"} {
		rr := doJSON(t, server, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rr.Code)
		}
	}
	rr := doJSON(t, server, http.MethodGet, "/clients", "not-a-token", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad token, got %d", rr.Code)
	}
}

func TestProposalFlowOverHTTP(t *testing.T) {
	server, _, fs := newTestServer(t)
	agentToken := login(t, server, "agent.one", "agent-pass", "agent")["token"].(string)
	supToken := login(t, server, "sup.one", "super-pass", "supervisor")["token"].(string)

	form, _ := json.Marshal(map[string]any{"formData": json.RawMessage(proposalForm(t))})
	rr := doJSON(t, server, http.MethodPost, "/submit", agentToken, string(form))
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if id := decodeMap(t, rr)["submissionId"]; id != testUniqueID {
		t.Fatalf("unexpected submission id %v", id)
	}

	rr = doJSON(t, server, http.MethodGet, "/clients", agentToken, "")
	var clients []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &clients); err != nil || len(clients) != 1 {
		t.Fatalf("expected one client, got %s (%v)", rr.Body.String(), err)
	}

	rr = doJSON(t, server, http.MethodPost, "/update_chosen_plans/"+testUniqueID, agentToken, `{"selected_plans":["Plan A"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("chosen plans: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/update_approval_status/"+testUniqueID, agentToken, `{"supervisor_approval_status":"SUP_REVIEW"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("proceed: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/update_approval_status/"+testUniqueID, supToken, `{"supervisor_approval_status":"approved"}`)
	if rr.Code != http.StatusBadRequest || decodeMap(t, rr)["error"] != "Supervisor comments are required." {
		t.Fatalf("expected comments required, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/update_approval_status/"+testUniqueID, supToken, `{"status":"approved","comments":"ok"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if label := decodeMap(t, rr)["label"]; label != "Pending Client Agreement" {
		t.Fatalf("unexpected label %v", label)
	}

	rr = doJSON(t, server, http.MethodGet, "/submission/"+testUniqueID+"/view?mode=approvals", agentToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("view: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	can := decodeMap(t, rr)["can"].(map[string]any)
	if can["agree"] != true || can["proceed"] != false {
		t.Fatalf("unexpected permissions %v", can)
	}

	rr = doJSON(t, server, http.MethodPost, "/update_client_plans/"+testUniqueID, agentToken, `{"client_review":true,"client_agreed_plans":["Plan A"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("client review: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/policy_details/"+testUniqueID, agentToken,
		`{"policy_number":"P-1","member_number":"M-1","member_name":"Asha Rao","policy_start_date":"01/04/2026","policy_period_months":12}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("policy details: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if end := decodeMap(t, rr)["policy_end_date"]; end != "2027-04-01" {
		t.Fatalf("unexpected end date %v", end)
	}
	if got := fs.submission(testUniqueID).ApplicationStatus; got != "Policy_Created" {
		t.Fatalf("expected Policy_Created, got %q", got)
	}

	rr = doJSON(t, server, http.MethodGet, "/submission/Nobody_00000", agentToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown proposal, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/update_chosen_plans/"+testUniqueID, agentToken, "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestDraftRoutes(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := login(t, server, "agent.one", "agent-pass", "agent")["token"].(string)

	rr := doJSON(t, server, http.MethodGet, "/drafts/"+testUniqueID, token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before save, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodPut, "/drafts/"+testUniqueID, token, `{"payload":{"step":3}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("save draft: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodGet, "/drafts/"+testUniqueID, token, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"step":3`) {
		t.Fatalf("expected stored draft, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSearchRouteNeedsQuery(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := login(t, server, "agent.one", "agent-pass", "agent")["token"].(string)
	rr := doJSON(t, server, http.MethodGet, "/api/search?q=%20", token, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/api/search?q=asha", token, "")
	if rr.Code != http.StatusOK || decodeMap(t, rr)["query"] != "asha" {
		t.Fatalf("expected search echo, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMetricsEndpointCollapsesProposalIDs(t *testing.T) {
	server, _, _ := newTestServer(t)
	token := login(t, server, "agent.one", "agent-pass", "agent")["token"].(string)
	doJSON(t, server, http.MethodGet, "/submission/A_11111", token, "")
	doJSON(t, server, http.MethodGet, "/submission/B_22222", token, "")

	rr := doJSON(t, server, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `proposaldesk_http_requests_total{code="404",method="GET",route="/submission/{uid}"} 2`) {
		t.Fatalf("expected collapsed route label in metrics output:\n%s", body)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := []struct{ path, want string }{
		{"/submission/X_1/view", "/submission/{uid}/view"},
		{"/update_chosen_plans/Y_2", "/update_chosen_plans/{uid}"},
		{"/clients", "/clients"},
		{"/api/session/refresh", "/api/session/refresh"},
		{"/", "/"},
	}
	for _, tc := range cases {
		if got := routeLabel(tc.path); got != tc.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
