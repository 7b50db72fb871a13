package handler

import (
	"net/http"

	"clinic-console/internal/access"
	"clinic-console/internal/model"
	"clinic-console/internal/session"
)

// SessionView is what the UI needs to draw its shell: the session, the
// sidebar and where to go next.
type SessionView struct {
	Session    session.Snapshot        `json:"session"`
	Navigation []access.Entry          `json:"navigation"`
	Dashboard  access.DashboardVariant `json:"dashboard,omitempty"`
	Next       access.Route            `json:"next,omitempty"`
}

type SessionHandler struct {
	controller *session.Controller
	gate       *access.Gate
}

func NewSessionHandler(controller *session.Controller, gate *access.Gate) *SessionHandler {
	if controller == nil || gate == nil {
		panic("handler: session handler requires a controller and a gate")
	}
	return &SessionHandler{controller: controller, gate: gate}
}

func (h *SessionHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.view(h.controller.Store().Snapshot()))
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.controller.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.view(snap))
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	snap := h.controller.Logout(r.Context())
	writeSuccess(w, http.StatusOK, h.view(snap))
}

func (h *SessionHandler) Navigation(w http.ResponseWriter, _ *http.Request) {
	nav := h.gate.Navigation()
	if nav == nil {
		nav = []access.Entry{}
	}
	writeSuccess(w, http.StatusOK, nav)
}

func (h *SessionHandler) view(snap session.Snapshot) SessionView {
	view := SessionView{Session: snap, Navigation: []access.Entry{}}

	switch {
	case snap.Loading:
	case !snap.Signed || snap.User == nil:
		view.Next = access.RouteLogin
	case snap.FirstAccess:
		view.Next = access.RouteChangePassword
	default:
		view.Navigation = access.BuildNavigation(snap.User.Identity)
		view.Dashboard = access.DashboardFor(snap.User.Identity)
		view.Next = access.RouteDashboard
	}

	return view
}
