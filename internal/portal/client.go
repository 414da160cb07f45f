// Package portal talks to the proposal API over HTTP and applies lifecycle
// effects against it.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	MsgNotFound  = "Unique ID does not exist."
	MsgCorrupted = "Data is corrupted. Please re-submit your information."
)

// APIError is a non-2xx answer from the proposal API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) IsNotFound() bool  { return e.Status == http.StatusNotFound }
func (e *APIError) IsCorrupted() bool { return e.Status == http.StatusUnprocessableEntity }

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	apiErr := &APIError{Status: status, Code: payload.Code, Message: strings.TrimSpace(payload.Error)}
	switch {
	case status == http.StatusNotFound:
		apiErr.Message = MsgNotFound
	case status == http.StatusUnprocessableEntity:
		apiErr.Message = MsgCorrupted
	case apiErr.Message == "":
		apiErr.Message = fmt.Sprintf("Server error (%d). Please try again.", status)
	}
	return apiErr
}

// Client calls the proposal API as one signed-in user.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. token is sent as a bearer token
// when set.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

type ClientSummary struct {
	UniqueID          string `json:"unique_id"`
	Name              string `json:"name"`
	Agent             string `json:"agent"`
	ApplicationStatus string `json:"application_status"`
	SupervisorStatus  string `json:"supervisor_status"`
	StatusLabel       string `json:"status_label"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Modifier  string    `json:"modifier"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusResult struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	Status             string `json:"status"`
	Label              string `json:"label"`
	SupervisorComments string `json:"supervisor_comments"`
}

// ListClients returns the proposals visible to the signed-in user.
func (c *Client) ListClients(ctx context.Context) ([]ClientSummary, error) {
	var out []ClientSummary
	if err := c.do(ctx, http.MethodGet, "/clients", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSubmission returns the stored payload merged with its status columns.
func (c *Client) GetSubmission(ctx context.Context, uniqueID string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/submission/"+url.PathEscape(uniqueID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateChosenPlans stores the agent's selection. An empty list clears it.
func (c *Client) UpdateChosenPlans(ctx context.Context, uniqueID string, plans []string) error {
	if plans == nil {
		plans = []string{}
	}
	body := map[string]any{"selected_plans": plans}
	return c.do(ctx, http.MethodPost, "/update_chosen_plans/"+url.PathEscape(uniqueID), body, nil)
}

func (c *Client) UpdateApprovalStatus(ctx context.Context, uniqueID, status, comments string) (StatusResult, error) {
	var out StatusResult
	body := map[string]any{"status": status, "comments": comments}
	err := c.do(ctx, http.MethodPost, "/update_approval_status/"+url.PathEscape(uniqueID), body, &out)
	return out, err
}

// ListComments returns comments newest first.
func (c *Client) ListComments(ctx context.Context, uniqueID string) ([]Comment, error) {
	var out []Comment
	if err := c.do(ctx, http.MethodGet, "/submission/"+url.PathEscape(uniqueID)+"/comments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddComment(ctx context.Context, uniqueID, modifier, comment string) (Comment, error) {
	var out Comment
	body := map[string]any{"modifier": modifier, "comment": comment}
	err := c.do(ctx, http.MethodPost, "/submission/"+url.PathEscape(uniqueID)+"/comments", body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
