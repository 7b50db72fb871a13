package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"clinic-console/internal/access"
	"clinic-console/internal/authclient"
	"clinic-console/internal/authstub"
	"clinic-console/internal/event"
	"clinic-console/internal/middleware"
	"clinic-console/internal/model"
	"clinic-console/internal/notice"
	"clinic-console/internal/password"
	"clinic-console/internal/session"
	"clinic-console/internal/storage"
	"clinic-console/internal/testutil"
	"clinic-console/pkg/apierror"
)

const (
	patientEmail    = "maria@example.com"
	patientPassword = "temp123"
)

type fixture struct {
	stub     *authstub.Server
	kv       *storage.MemoryStore
	sessions *session.Store
	notices  *testutil.NoticeRecorder
	router   http.Handler
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub, err := authstub.New(authstub.Config{Secret: "handler-test", TokenTTL: time.Hour, HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	require.NoError(t, stub.AddPatient("Maria", patientEmail, patientPassword, true))

	upstream := httptest.NewServer(stub.Handler())
	t.Cleanup(upstream.Close)

	api, err := authclient.New(upstream.URL, 5*time.Second)
	require.NoError(t, err)

	bus := event.NewBus()
	kv := storage.NewMemoryStore()
	notices := &testutil.NoticeRecorder{}
	sessions := session.NewStore()
	controller := session.NewController(sessions, kv, api, bus, notices)
	controller.Restore(context.Background())

	gate := access.NewGate(sessions, bus)
	flow := password.NewFlow(controller, sessions, notices)

	sessionHandler := NewSessionHandler(controller, gate)
	passwordHandler := NewPasswordHandler(flow)
	viewHandler := NewViewHandler(sessions, flow)

	r := chi.NewRouter()
	r.Get("/login", viewHandler.Login)
	for _, route := range []access.Route{
		access.RouteDashboard, access.RouteAppointments, access.RouteUsers,
		access.RouteProfile, access.RouteChangePassword,
	} {
		r.With(middleware.Guard(gate, route)).Get(string(route), viewHandler.Route)
	}
	r.Get("/api/session", sessionHandler.Get)
	r.Post("/api/session/login", sessionHandler.Login)
	r.Post("/api/session/logout", sessionHandler.Logout)
	r.Get("/api/session/password", passwordHandler.Status)
	r.Post("/api/session/password", passwordHandler.Submit)
	r.Post("/api/session/password/open", passwordHandler.Open)
	r.Post("/api/session/password/dismiss", passwordHandler.Dismiss)
	r.Get("/api/navigation", sessionHandler.Navigation)

	return &fixture{stub: stub, kv: kv, sessions: sessions, notices: notices, router: r}
}

func (f *fixture) do(t *testing.T, method string, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (f *fixture) login(t *testing.T, email string, password string) SessionView {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/api/session/login", model.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func navNames(nav []access.Entry) []string {
	out := make([]string, 0, len(nav))
	for _, entry := range nav {
		out = append(out, entry.Name)
	}
	return out
}

func TestSessionSignedOut(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.False(t, view.Session.Signed)
	assert.Equal(t, access.RouteLogin, view.Next)
	assert.Empty(t, view.Navigation)

	rec, _ = f.do(t, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLoginAdmin(t *testing.T) {
	f := newFixture(t)

	view := f.login(t, authstub.DefaultAdminEmail, authstub.DefaultAdminPassword)

	assert.True(t, view.Session.Signed)
	assert.Equal(t, access.RouteDashboard, view.Next)
	assert.Equal(t, access.DashboardStaffStatistics, view.Dashboard)
	assert.Equal(t,
		[]string{"Dashboard", "Patients", "Appointments", "Procedures", "Users", "Audit", "My Profile"},
		navNames(view.Navigation),
	)
	require.NotNil(t, view.Session.User)
	assert.Equal(t, "Administrador", view.Session.User.Name)

	token, err := f.kv.Get(context.Background(), storage.KeyToken)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	rec, env := f.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var route RouteView
	require.NoError(t, json.Unmarshal(env.Data, &route))
	assert.Equal(t, "Users", route.Title)

	rec, _ = f.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/session/login", model.LoginRequest{Email: authstub.DefaultAdminEmail, Password: "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/session/login", model.LoginRequest{Email: authstub.DefaultAdminEmail})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(model.ReasonRequired), env.Error.Reason)
	assert.Equal(t, "password", env.Error.Details)

	req := httptest.NewRequest(http.MethodPost, "/api/session/login", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	f.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	assert.False(t, f.sessions.Snapshot().Signed)
	assert.Zero(t, f.kv.Len())
}

func TestPatientFirstAccess(t *testing.T) {
	f := newFixture(t)

	view := f.login(t, patientEmail, patientPassword)
	assert.True(t, view.Session.FirstAccess)
	assert.Equal(t, access.RouteChangePassword, view.Next)
	assert.Empty(t, view.Navigation)

	rec, _ := f.do(t, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/change-password", rec.Header().Get("Location"))

	rec, env := f.do(t, http.MethodGet, "/change-password", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var route RouteView
	require.NoError(t, json.Unmarshal(env.Data, &route))
	require.NotNil(t, route.Password)
	assert.True(t, route.Password.Open)
	assert.False(t, route.Password.Dismissable)
	assert.Empty(t, route.Navigation)

	rec, env = f.do(t, http.MethodPost, "/api/session/password", model.ChangePasswordRequest{NewPassword: "abcdef", ConfirmPassword: "abcxyz"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(model.ReasonMismatch), env.Error.Reason)

	rec, env = f.do(t, http.MethodPost, "/api/session/password", model.ChangePasswordRequest{NewPassword: "abc", ConfirmPassword: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(model.ReasonTooShort), env.Error.Reason)

	rec, env = f.do(t, http.MethodPost, "/api/session/password/dismiss", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PASSWORD_CHANGE_REQUIRED", env.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/session/password", model.ChangePasswordRequest{NewPassword: "novaSenha1", ConfirmPassword: "novaSenha1"})
	require.Equal(t, http.StatusOK, rec.Code)

	firstAccess, ok := f.stub.FirstAccess(patientEmail)
	require.True(t, ok)
	assert.False(t, firstAccess)
	assert.False(t, f.sessions.Snapshot().FirstAccess)

	stored, err := f.kv.Get(context.Background(), storage.KeyUser)
	require.NoError(t, err)
	var persisted model.User
	require.NoError(t, json.Unmarshal([]byte(stored), &persisted))
	assert.False(t, persisted.FirstAccess)
	assert.Equal(t, "Maria", persisted.Name)

	rec, env = f.do(t, http.MethodGet, "/appointments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &route))
	assert.Equal(t, "Appointments", route.Title)

	rec, _ = f.do(t, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &route))
	assert.Equal(t, access.DashboardPatientSummary, route.Dashboard)

	rec, env = f.do(t, http.MethodGet, "/api/navigation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nav []access.Entry
	require.NoError(t, json.Unmarshal(env.Data, &nav))
	assert.Equal(t, []string{"Dashboard", "Appointments", "My Profile"}, navNames(nav))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t, authstub.DefaultAdminEmail, authstub.DefaultAdminPassword)

	rec, env := f.do(t, http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.False(t, view.Session.Signed)
	assert.Equal(t, access.RouteLogin, view.Next)
	assert.Zero(t, f.kv.Len())

	last, ok := f.notices.Last()
	require.True(t, ok)
	assert.Equal(t, notice.SignedOut, last)
}

func TestPasswordModalClosesOnLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t, authstub.DefaultAdminEmail, authstub.DefaultAdminPassword)

	rec, env := f.do(t, http.MethodPost, "/api/session/password/open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status password.Status
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Open)

	rec, _ = f.do(t, http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/api/session/password", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Open)

	f.login(t, authstub.DefaultAdminEmail, authstub.DefaultAdminPassword)
	_, env = f.do(t, http.MethodGet, "/api/session/password", nil)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Open)
}

func TestPasswordSubmitWithoutSession(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/session/password", model.ChangePasswordRequest{NewPassword: "abcdef", ConfirmPassword: "abcdef"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestLoginViewWhileLoading(t *testing.T) {
	sessions := session.NewStore()
	controller := session.NewController(sessions, storage.NewMemoryStore(), &authclient.Client{}, nil, nil)
	flow := password.NewFlow(controller, sessions, nil)

	rec := httptest.NewRecorder()
	NewViewHandler(sessions, flow).Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "api error", err: apierror.New("BAD_REQUEST", "bad", "", http.StatusBadRequest), status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "in flight", err: model.ErrInFlight, status: http.StatusConflict, code: "IN_FLIGHT"},
		{name: "no session", err: model.ErrNoSession, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "upstream down", err: &model.AuthenticationError{Err: model.ErrUpstreamUnavailable}, status: http.StatusBadGateway, code: "UPSTREAM_UNAVAILABLE"},
		{name: "upstream 500", err: &model.AuthenticationError{Status: 500, Err: model.ErrUpstreamRejected}, status: http.StatusBadGateway, code: "UPSTREAM_ERROR"},
		{name: "change rejected", err: &model.PasswordChangeError{Status: 400, Err: model.ErrUpstreamRejected}, status: http.StatusUnprocessableEntity, code: "REJECTED"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}
