//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"clinic-console/internal/app"
	"clinic-console/internal/authstub"
	"clinic-console/internal/config"
)

const (
	patientEmail    = "maria@example.com"
	patientPassword = "temp123"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type sessionView struct {
	Session struct {
		Loading     bool `json:"loading"`
		Signed      bool `json:"signed"`
		FirstAccess bool `json:"first_access"`
	} `json:"session"`
	Navigation []struct {
		Name string `json:"name"`
		Href string `json:"href"`
	} `json:"navigation"`
	Next string `json:"next"`
}

func newAuthStub(t *testing.T) (*authstub.Server, string) {
	t.Helper()

	stub, err := authstub.New(authstub.Config{Secret: "integration-secret", TokenTTL: time.Hour, HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	require.NoError(t, stub.AddPatient("Maria", patientEmail, patientPassword, true))

	upstream := httptest.NewServer(stub.Handler())
	t.Cleanup(upstream.Close)

	return stub, upstream.URL
}

func testConfig(apiURL string, sessionFile string) *config.Config {
	return &config.Config{
		ServerPort:         "0",
		ServerReadTimeout:  15 * time.Second,
		ServerWriteTimeout: 30 * time.Second,
		ServerIdleTimeout:  120 * time.Second,
		RequestTimeout:     10 * time.Second,
		APIBaseURL:         apiURL,
		APITimeout:         5 * time.Second,
		SessionBackend:     config.BackendFile,
		SessionNamespace:   "default",
		SessionFile:        sessionFile,
		CORSOrigins:        []string{"http://localhost:5173"},
		RateLimitRPM:       1000,
		AuthRateLimitRPM:   1000,
	}
}

// startConsole boots a console the way cmd/server does and waits for the
// stored session to be restored.
func startConsole(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	console, err := app.Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(console.Close)

	server := httptest.NewServer(console.Handler())
	t.Cleanup(server.Close)

	console.Start(ctx)

	require.Eventually(t, func() bool {
		return !getSession(t, server.URL).Session.Loading
	}, 5*time.Second, 20*time.Millisecond)

	return server
}

func sessionFilePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.json")
}

// noRedirectClient exposes the 303s the access gate answers with.
var noRedirectClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
	Timeout: 10 * time.Second,
}

func doJSON(t *testing.T, method string, url string, body any) (*http.Response, envelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := noRedirectClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func getSession(t *testing.T, baseURL string) sessionView {
	t.Helper()

	resp, env := doJSON(t, http.MethodGet, baseURL+"/api/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view sessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func login(t *testing.T, baseURL string, email string, password string) sessionView {
	t.Helper()

	resp, env := doJSON(t, http.MethodPost, baseURL+"/api/session/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view sessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func navNames(view sessionView) []string {
	out := make([]string, 0, len(view.Navigation))
	for _, entry := range view.Navigation {
		out = append(out, entry.Name)
	}
	return out
}
