// Package cliclient is the thin HTTP shell pipelinectl drives (spec §6):
// every verb except `config` and `serve` is a single request against a
// running coordinatord, decoded into the same domain/httpapi wire types the
// server already emits. It owns no business logic of its own.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/genbatch/pipeline/internal/domain"
)

// Client calls a coordinatord HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{baseURL: baseURL, token: token, http: &http.Client{Timeout: 30 * time.Second}}
}

// APIError is the decoded errorBody the server returns on non-2xx (spec §6:
// "{error_type, error_message, details?}").
type APIError struct {
	StatusCode int
	ErrorType  string         `json:"error_type"`
	Message    string         `json:"error_message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Err: err}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ConnectionError wraps a transport-level failure (server unreachable,
// timeout) so callers map it to exit code 3 (spec §6).
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %s", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// CreateRunRequest mirrors httpapi's createRunRequest.
type CreateRunRequest struct {
	ProjectID   string           `json:"project_id"`
	Config      domain.RunConfig `json:"config"`
	Tags        []string         `json:"tags"`
	Priority    int              `json:"priority"`
	RequestedBy string           `json:"requested_by"`
}

func (c *Client) CreateRun(ctx context.Context, req CreateRunRequest) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/runs", req, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

func (c *Client) ListRuns(ctx context.Context, projectID, status string, limit, offset int) ([]domain.Run, error) {
	path := "/runs?"
	if projectID != "" {
		path += "project_id=" + projectID + "&"
	}
	if status != "" {
		path += "status=" + status + "&"
	}
	if limit > 0 {
		path += "limit=" + strconv.Itoa(limit) + "&"
	}
	if offset > 0 {
		path += "offset=" + strconv.Itoa(offset) + "&"
	}
	var out []domain.Run
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	var out domain.Run
	err := c.do(ctx, http.MethodGet, "/runs/"+runID, nil, &out)
	return out, err
}

func (c *Client) StartRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/runs/"+runID+"/start", nil, nil)
}

func (c *Client) CancelRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/runs/"+runID+"/cancel", nil, nil)
}

func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodDelete, "/runs/"+runID, nil, nil)
}

type AddDocumentRequest struct {
	Kind          domain.SourceKind `json:"kind"`
	DisplayName   string            `json:"display_name"`
	Repository    string            `json:"repository"`
	Ref           string            `json:"ref"`
	Path          string            `json:"path"`
	InlineContent []byte            `json:"inline_content"`
	Filename      string            `json:"filename"`
	MIMEType      string            `json:"mime_type"`
}

func (c *Client) AddDocument(ctx context.Context, runID string, req AddDocumentRequest) error {
	return c.do(ctx, http.MethodPost, "/runs/"+runID+"/documents", req, nil)
}

func (c *Client) ListDocuments(ctx context.Context, runID string) ([]domain.RunDocument, error) {
	var out []domain.RunDocument
	err := c.do(ctx, http.MethodGet, "/runs/"+runID+"/documents", nil, &out)
	return out, err
}

func (c *Client) RemoveDocument(ctx context.Context, runID, documentID string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+documentID+"?run_id="+runID, nil, nil)
}

type EvaluateStatus struct {
	Run      domain.Run                          `json:"run"`
	Timeline any                                 `json:"timeline"`
	Tasks    map[domain.TaskKind]map[string]int  `json:"tasks"`
}

func (c *Client) EvaluateStatus(ctx context.Context, runID string) (EvaluateStatus, error) {
	var out EvaluateStatus
	err := c.do(ctx, http.MethodGet, "/runs/"+runID+"/evaluate/status", nil, &out)
	return out, err
}

type EvaluateResults struct {
	EloRatings     []domain.EloRating     `json:"elo_ratings"`
	EvaluationRows []domain.EvaluationRow `json:"evaluation_rows"`
}

func (c *Client) EvaluateResults(ctx context.Context, runID string) (EvaluateResults, error) {
	var out EvaluateResults
	err := c.do(ctx, http.MethodGet, "/runs/"+runID+"/evaluate/results", nil, &out)
	return out, err
}
