package access

import "clinic-console/internal/model"

type Route string

const (
	RouteLogin          Route = "/login"
	RouteDashboard      Route = "/"
	RoutePatients       Route = "/patients"
	RouteAppointments   Route = "/appointments"
	RouteProcedures     Route = "/procedures"
	RouteUsers          Route = "/users"
	RouteAudit          Route = "/audit"
	RouteProfile        Route = "/profile"
	RouteChangePassword Route = "/change-password"
)

type Entry struct {
	Name  string `json:"name"`
	Href  Route  `json:"href"`
	Scope string `json:"scope,omitempty"`
}

const ScopePatient = "patient"

// BuildNavigation derives the sidebar from the identity alone. Entries are
// appended in a fixed order: Dashboard, the staff or patient section, the
// admin section, and My Profile last.
func BuildNavigation(identity model.Identity) []Entry {
	nav := []Entry{{Name: "Dashboard", Href: RouteDashboard}}

	if identity.IsPatient() {
		nav = append(nav, Entry{Name: "Appointments", Href: RouteAppointments, Scope: ScopePatient})
	} else {
		nav = append(nav,
			Entry{Name: "Patients", Href: RoutePatients},
			Entry{Name: "Appointments", Href: RouteAppointments},
			Entry{Name: "Procedures", Href: RouteProcedures},
		)
	}

	if identity.IsAdmin() {
		nav = append(nav,
			Entry{Name: "Users", Href: RouteUsers},
			Entry{Name: "Audit", Href: RouteAudit},
		)
	}

	return append(nav, Entry{Name: "My Profile", Href: RouteProfile})
}

func contains(nav []Entry, route Route) (Entry, bool) {
	for _, entry := range nav {
		if entry.Href == route {
			return entry, true
		}
	}
	return Entry{}, false
}

type DashboardVariant string

const (
	DashboardPatientSummary  DashboardVariant = "patient-summary"
	DashboardStaffStatistics DashboardVariant = "staff-statistics"
)

func DashboardFor(identity model.Identity) DashboardVariant {
	if identity.IsPatient() {
		return DashboardPatientSummary
	}
	return DashboardStaffStatistics
}
