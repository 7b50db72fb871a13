// Package authclient talks to the clinic API's authentication endpoints.
//
// Only two calls are made: the login exchange and the first-access password
// change. Timeouts come from the transport; there is no retry policy.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clinic-console/internal/model"
	"clinic-console/internal/requestid"
)

const (
	loginPath          = "/auth/login"
	changePasswordPath = "/auth/change-password"

	// maxResponseSize bounds how much of an upstream body is read.
	maxResponseSize = 1 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type LoginResult struct {
	User        model.User
	AccessToken string
	Role        string
	FirstAccess bool
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	User        json.RawMessage `json:"user"`
	AccessToken string          `json:"access_token"`
	Role        string          `json:"role"`
	FirstAccess bool            `json:"first_access"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse API base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("API base URL must be http or https, got %q", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("API base URL has no host: %q", baseURL)
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login performs the login exchange. Every failure is an
// *model.AuthenticationError.
func (c *Client) Login(ctx context.Context, email string, password string) (LoginResult, error) {
	status, body, err := c.post(ctx, loginPath, "", loginRequest{Email: email, Senha: password})
	if err != nil {
		return LoginResult{}, &model.AuthenticationError{Err: err}
	}

	if status < 200 || status > 299 {
		cause := model.ErrUpstreamRejected
		if status == http.StatusUnauthorized || status == http.StatusBadRequest {
			cause = model.ErrInvalidCredentials
		}
		return LoginResult{}, &model.AuthenticationError{Status: status, Err: withUpstreamMessage(cause, body)}
	}

	var parsed loginResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return LoginResult{}, &model.AuthenticationError{Status: status, Err: fmt.Errorf("%w: decode login response: %v", model.ErrUpstreamRejected, err)}
	}

	if strings.TrimSpace(parsed.AccessToken) == "" || len(parsed.User) == 0 {
		return LoginResult{}, &model.AuthenticationError{Status: status, Err: fmt.Errorf("%w: login response missing user or access_token", model.ErrUpstreamRejected)}
	}

	var user model.User
	if err := json.Unmarshal(parsed.User, &user); err != nil {
		return LoginResult{}, &model.AuthenticationError{Status: status, Err: fmt.Errorf("%w: decode user: %v", model.ErrUpstreamRejected, err)}
	}

	return LoginResult{
		User:        user,
		AccessToken: parsed.AccessToken,
		Role:        parsed.Role,
		FirstAccess: parsed.FirstAccess,
	}, nil
}

// ChangePassword sends the new password with the bearer token attached. Every
// failure is an *model.PasswordChangeError.
func (c *Client) ChangePassword(ctx context.Context, token string, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return &model.PasswordChangeError{Err: model.ErrNoSession}
	}

	status, body, err := c.post(ctx, changePasswordPath, token, changePasswordRequest{NewPassword: newPassword})
	if err != nil {
		return &model.PasswordChangeError{Err: err}
	}

	if status < 200 || status > 299 {
		return &model.PasswordChangeError{Status: status, Err: withUpstreamMessage(model.ErrUpstreamRejected, body)}
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, token string, payload any) (int, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	reqID := requestid.FromOrNew(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestid.Header, reqID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("auth service call failed", "path", path, "request_id", reqID, "error", err)
		return 0, nil, fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read response: %v", model.ErrUpstreamUnavailable, err)
	}

	slog.Debug("auth service call",
		"path", path,
		"request_id", reqID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return resp.StatusCode, body, nil
}

func withUpstreamMessage(cause error, body []byte) error {
	var parsed upstreamError
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		if msg != "" {
			return fmt.Errorf("%w: %s", cause, msg)
		}
	}
	return cause
}

// IsUnavailable reports whether err came from a transport failure rather than
// an answer from the auth service.
func IsUnavailable(err error) bool {
	return errors.Is(err, model.ErrUpstreamUnavailable)
}
