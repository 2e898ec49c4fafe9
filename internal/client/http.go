package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

// HTTPBackend talks to the tracker server's /api/v1 endpoints.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend for the server at baseURL.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks connectivity to the server.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	return b.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, nil)
}

// Login opens a server session.
func (b *HTTPBackend) Login(ctx context.Context, username, password string) (*Session, error) {
	var resp types.LoginResponse
	if err := b.do(ctx, http.MethodPost, "/api/v1/login", nil, types.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &Session{Token: resp.SessionToken, User: resp.User, LoginTime: time.Now()}, nil
}

// Logout ends the server session.
func (b *HTTPBackend) Logout(ctx context.Context, sess *Session) error {
	return b.do(ctx, http.MethodPost, "/api/v1/logout", sess, nil, nil)
}

// Profile returns the session's user.
func (b *HTTPBackend) Profile(ctx context.Context, sess *Session) (*types.ProfileResponse, error) {
	var resp types.ProfileResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/profile", sess, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadProgress fetches the saved task list.
func (b *HTTPBackend) LoadProgress(ctx context.Context, sess *Session) (*Snapshot, error) {
	var resp types.ProgressResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/progress", sess, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Tasks == nil {
		return nil, nil
	}
	snap := &Snapshot{Tasks: resp.Tasks}
	if resp.LastUpdated != nil {
		snap.LastUpdated = *resp.LastUpdated
	}
	return snap, nil
}

// SaveProgress replaces the saved task list.
func (b *HTTPBackend) SaveProgress(ctx context.Context, sess *Session, tasks []checklist.Task) (time.Time, error) {
	if tasks == nil {
		tasks = []checklist.Task{}
	}
	var resp types.SaveProgressResponse
	if err := b.do(ctx, http.MethodPost, "/api/v1/progress", sess, types.SaveProgressRequest{Tasks: tasks}, &resp); err != nil {
		return time.Time{}, err
	}
	return resp.LastUpdated, nil
}

// ResetProgress deletes the saved task list.
func (b *HTTPBackend) ResetProgress(ctx context.Context, sess *Session) error {
	return b.do(ctx, http.MethodDelete, "/api/v1/progress", sess, nil, nil)
}

// Summary fetches the server-derived stage summary.
func (b *HTTPBackend) Summary(ctx context.Context, sess *Session) (*types.ProgressSummaryResponse, error) {
	var resp types.ProgressSummaryResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/progress/summary", sess, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AllProgress lists every user's progress. Requires an admin session.
func (b *HTTPBackend) AllProgress(ctx context.Context, sess *Session) (*types.AllProgressResponse, error) {
	var resp types.AllProgressResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/admin/all-progress", sess, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return &resp, nil
}

// do sends a JSON request and decodes a JSON response into out. Transport
// failures wrap ErrUnavailable; 401 responses return ErrUnauthorized.
func (b *HTTPBackend) do(ctx context.Context, method, path string, sess *Session, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil && sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && path != "/api/v1/login" {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&problem) == nil {
			apiErr.Title, apiErr.Detail = problem.Title, problem.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
