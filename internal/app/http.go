package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"proposaldesk/api/internal/auth"
	"proposaldesk/api/internal/metrics"
	"proposaldesk/api/internal/search"
	"proposaldesk/api/internal/session"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    *metrics.Collectors
}

func NewHTTPServer(service *Service, corsOrigin string, collectors *metrics.Collectors) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, metrics: collectors}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// uidRoutes are first path segments followed by a proposal unique ID.
var uidRoutes = map[string]bool{
	"submission":              true,
	"update_chosen_plans":     true,
	"update_supervisor_plans": true,
	"update_approval_status":  true,
	"update_client_plans":     true,
	"underwriter_status":      true,
	"policy_outcome":          true,
	"policy_details":          true,
	"reassign_agent":          true,
	"drafts":                  true,
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.metrics != nil {
		s.metrics.Handler().ServeHTTP(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && (r.URL.Path == "/api/auth/login" || r.URL.Path == "/api/session/login") {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": sess.UserName, "userId": sess.UserID, "role": sess.Role})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			var domainErr *DomainError
			if errors.As(err, &domainErr) {
				writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(sess))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		sess := session.Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				sess = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), sess, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/clients" {
		clients, err := s.service.ListClients(r.Context(), sess)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, clients)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/submit" {
		var body SubmitInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Submit(r.Context(), sess, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		code := http.StatusOK
		if result.Created {
			code = http.StatusCreated
		}
		writeJSON(w, code, result)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, sess)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && uidRoutes[parts[0]] {
		s.handleProposal(w, r, sess, parts[0], parts[1], parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"sessions": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingSessions(ctx); err != nil {
		ready = false
		checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
	}

	statusCode := http.StatusOK
	state := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": state,
		"checks": checks,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Login(r.Context(), firstNonBlank(body.UserID, body.Username), body.Password, body.Role)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func sessionPayload(sess session.Session) map[string]any {
	return map[string]any{
		"token":        sess.Token,
		"refreshToken": sess.RefreshToken,
		"userId":       sess.UserID,
		"userName":     sess.UserName,
		"role":         sess.Role,
		"expiresAt":    sess.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, sess session.Session) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "Query parameter q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	resp, err := s.service.Search(r.Context(), sess, search.Query{
		Text:       text,
		FilterType: search.ResultType(query.Get("type")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleProposal(w http.ResponseWriter, r *http.Request, sess session.Session, route, uniqueID string, rest []string) {
	ctx := r.Context()

	switch {
	case route == "submission" && len(rest) == 0 && r.Method == http.MethodGet:
		payload, err := s.service.GetSubmission(ctx, sess, uniqueID)
		respond(w, http.StatusOK, payload, err)
		return

	case route == "submission" && len(rest) == 1 && rest[0] == "view" && r.Method == http.MethodGet:
		query := r.URL.Query()
		var order []string
		if raw := strings.TrimSpace(query.Get("order")); raw != "" {
			order = strings.Split(raw, ",")
		}
		view, err := s.service.GetView(ctx, sess, uniqueID, query.Get("mode"), order)
		respond(w, http.StatusOK, view, err)
		return

	case route == "submission" && len(rest) == 1 && rest[0] == "comments":
		switch r.Method {
		case http.MethodGet:
			comments, err := s.service.ListComments(ctx, sess, uniqueID)
			respond(w, http.StatusOK, comments, err)
		case http.MethodPost:
			var body struct {
				Modifier string `json:"modifier"`
				Comment  string `json:"comment"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			comment, err := s.service.AddComment(ctx, sess, uniqueID, body.Modifier, body.Comment)
			respond(w, http.StatusCreated, comment, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case route == "drafts" && len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			draft, err := s.service.LoadDraft(ctx, sess, uniqueID)
			respond(w, http.StatusOK, draft, err)
		case http.MethodPut:
			var body struct {
				Payload json.RawMessage `json:"payload"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			draft, err := s.service.SaveDraft(ctx, sess, uniqueID, body.Payload)
			respond(w, http.StatusOK, draft, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch route {
	case "update_chosen_plans":
		var body struct {
			SelectedPlans []string `json:"selected_plans"`
			ChosenPlans   []string `json:"chosen_plans"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		selected := body.SelectedPlans
		if selected == nil {
			selected = body.ChosenPlans
		}
		payload, err := s.service.UpdateChosenPlans(ctx, sess, uniqueID, selected)
		respond(w, http.StatusOK, payload, err)

	case "update_supervisor_plans":
		var body struct {
			SupervisorPlans []string `json:"supervisor_plans"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateSupervisorPlans(ctx, sess, uniqueID, body.SupervisorPlans)
		respond(w, http.StatusOK, payload, err)

	case "update_approval_status":
		var body struct {
			Status                   string `json:"status"`
			Comments                 string `json:"comments"`
			SupervisorApprovalStatus string `json:"supervisor_approval_status"`
			SupervisorComments       string `json:"supervisor_comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.UpdateApprovalStatus(ctx, sess, uniqueID,
			firstNonBlank(body.Status, body.SupervisorApprovalStatus),
			firstNonBlank(body.Comments, body.SupervisorComments))
		respond(w, http.StatusOK, result, err)

	case "update_client_plans":
		var body ClientReviewInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateClientReview(ctx, sess, uniqueID, body)
		respond(w, http.StatusOK, payload, err)

	case "underwriter_status":
		var body struct {
			Status  string `json:"status"`
			Comment string `json:"comment"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateUnderwriterStatus(ctx, sess, uniqueID, body.Status, body.Comment)
		respond(w, http.StatusOK, payload, err)

	case "policy_outcome":
		var body struct {
			Outcome string `json:"outcome"`
			Comment string `json:"comment"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetPolicyOutcome(ctx, sess, uniqueID, body.Outcome, body.Comment)
		respond(w, http.StatusOK, payload, err)

	case "policy_details":
		var body PolicyDetailsInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SavePolicyDetails(ctx, sess, uniqueID, body)
		respond(w, http.StatusOK, payload, err)

	case "reassign_agent":
		var body struct {
			Agent string `json:"agent"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ReassignAgent(ctx, sess, uniqueID, body.Agent)
		respond(w, http.StatusOK, payload, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return session.Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return session.Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return session.Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.metrics.ObserveRequest(routeLabel(r.URL.Path), r.Method, writer.status, elapsed)
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			elapsed.Milliseconds(),
		)
	})
}

// routeLabel collapses proposal ids so metric labels stay bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	if len(parts) >= 2 && uidRoutes[parts[0]] {
		parts[1] = "{uid}"
	}
	return "/" + strings.Join(parts, "/")
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	return uuid.NewString()
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
