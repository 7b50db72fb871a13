package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-console/internal/model"
	"clinic-console/internal/requestid"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New("ftp://clinic.example", time.Second)
	assert.Error(t, err)

	_, err = New("http://", time.Second)
	assert.Error(t, err)

	c, err := New("https://api.clinic.example/", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://api.clinic.example", c.BaseURL())
}

func TestLoginSuccess(t *testing.T) {
	var gotBody map[string]string
	var gotRequestID string

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		gotRequestID = r.Header.Get(requestid.Header)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":         map[string]any{"id": 3, "nome": "Maria", "email": "maria@example.com"},
			"access_token": "tok-123",
			"role":         "patient",
			"first_access": true,
		})
	})

	ctx := requestid.With(context.Background(), "req-7")
	result, err := c.Login(ctx, "maria@example.com", "temp123")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"email": "maria@example.com", "senha": "temp123"}, gotBody)
	assert.Equal(t, "req-7", gotRequestID)
	assert.Equal(t, "tok-123", result.AccessToken)
	assert.Equal(t, "patient", result.Role)
	assert.True(t, result.FirstAccess)
	assert.Equal(t, "3", result.User.ID)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "bad credentials", status: http.StatusUnauthorized, body: `{"error":"credenciais inválidas"}`, wantErr: model.ErrInvalidCredentials},
		{name: "server error", status: http.StatusInternalServerError, body: `{"message":"db down"}`, wantErr: model.ErrUpstreamRejected},
		{name: "missing token", status: http.StatusOK, body: `{"user":{"id":1}}`, wantErr: model.ErrUpstreamRejected},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: model.ErrUpstreamRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.Login(context.Background(), "a@b.c", "secret")
			var authErr *model.AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tc.status, authErr.Status)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestLoginUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "a@b.c", "secret")
	assert.True(t, IsUnavailable(err))
	var authErr *model.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, authErr.Status)
}

func TestChangePassword(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/change-password", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if gotBody["new_password"] == "rejected" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"senha fraca"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.ChangePassword(context.Background(), "tok-1", "novaSenha"))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "novaSenha", gotBody["new_password"])

	err := c.ChangePassword(context.Background(), "tok-1", "rejected")
	var changeErr *model.PasswordChangeError
	require.ErrorAs(t, err, &changeErr)
	assert.Equal(t, http.StatusBadRequest, changeErr.Status)
	assert.Contains(t, err.Error(), "senha fraca")

	err = c.ChangePassword(context.Background(), "", "novaSenha")
	assert.ErrorIs(t, err, model.ErrNoSession)
}
