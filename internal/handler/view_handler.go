package handler

import (
	"net/http"

	"clinic-console/internal/access"
	"clinic-console/internal/middleware"
	"clinic-console/internal/model"
	"clinic-console/internal/password"
	"clinic-console/internal/session"
	"clinic-console/pkg/apierror"
)

// RouteView stands in for a rendered page.
type RouteView struct {
	Route      access.Route            `json:"route"`
	Title      string                  `json:"title"`
	Navigation []access.Entry          `json:"navigation"`
	Dashboard  access.DashboardVariant `json:"dashboard,omitempty"`
	User       *model.User             `json:"user,omitempty"`
	Password   *password.Status        `json:"password,omitempty"`
}

type ViewHandler struct {
	sessions *session.Store
	flow     *password.Flow
}

func NewViewHandler(sessions *session.Store, flow *password.Flow) *ViewHandler {
	if sessions == nil || flow == nil {
		panic("handler: view handler requires a session store and a password flow")
	}
	return &ViewHandler{sessions: sessions, flow: flow}
}

// Route serves a view behind middleware.Guard.
func (h *ViewHandler) Route(w http.ResponseWriter, r *http.Request) {
	decision, ok := middleware.DecisionFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrNoSession)
		return
	}

	snap := h.sessions.Snapshot()
	if snap.User == nil {
		writeError(w, model.ErrNoSession)
		return
	}

	view := RouteView{
		Route:      decision.Route,
		Navigation: access.BuildNavigation(snap.User.Identity),
		User:       snap.User,
	}

	switch {
	case decision.Route == access.RouteChangePassword:
		view.Title = "Change Password"
		view.Navigation = []access.Entry{}
		if !snap.FirstAccess {
			view.Navigation = access.BuildNavigation(snap.User.Identity)
		}
		status := h.flow.Status()
		view.Password = &status
	case decision.Entry != nil:
		view.Title = decision.Entry.Name
	}

	if decision.Route == access.RouteDashboard {
		view.Dashboard = access.DashboardFor(snap.User.Identity)
	}

	writeSuccess(w, http.StatusOK, view)
}

// Login is public; a signed operator is sent to the dashboard instead.
func (h *ViewHandler) Login(w http.ResponseWriter, _ *http.Request) {
	snap := h.sessions.Snapshot()
	if snap.Loading {
		w.Header().Set("Retry-After", "1")
		writeError(w, apierror.New("SESSION_LOADING", "session is being restored", "", http.StatusServiceUnavailable))
		return
	}

	if snap.Signed {
		w.Header().Set("Location", string(access.RouteDashboard))
		writeSuccess(w, http.StatusSeeOther, RouteView{Route: access.RouteDashboard, Navigation: []access.Entry{}})
		return
	}

	writeSuccess(w, http.StatusOK, RouteView{Route: access.RouteLogin, Title: "Sign in", Navigation: []access.Entry{}})
}
