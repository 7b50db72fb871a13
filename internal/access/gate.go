// Package access decides, per navigation attempt, whether the console renders
// a route, redirects, or waits for the session to finish restoring.
package access

import (
	"context"
	"log/slog"
	"sync"

	"clinic-console/internal/event"
	"clinic-console/internal/session"
)

type State int

const (
	StateLoading State = iota
	StateDenied
	StatePasswordChangeRequired
	StateForbidden
	StateGranted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateDenied:
		return "denied"
	case StatePasswordChangeRequired:
		return "password_change_required"
	case StateForbidden:
		return "forbidden"
	case StateGranted:
		return "granted"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Decision struct {
	State    State  `json:"state"`
	Route    Route  `json:"route"`
	Redirect Route  `json:"redirect,omitempty"`
	Entry    *Entry `json:"entry,omitempty"`
}

type SessionReader interface {
	Snapshot() session.Snapshot
}

// Gate reads the session on every decision, so it never acts on stale state.
// Run keeps a cached navigation in step with session events and announces
// each change so attached UIs can redraw without a reload.
type Gate struct {
	sessions SessionReader
	bus      event.Bus

	mu      sync.RWMutex
	nav     []Entry
	version uint64
}

func NewGate(sessions SessionReader, bus event.Bus) *Gate {
	if sessions == nil {
		panic("access: gate requires a session reader")
	}
	return &Gate{sessions: sessions, bus: bus}
}

// Authorize applies, in order: loading, signed, first access, reachability.
func (g *Gate) Authorize(route Route) Decision {
	snap := g.sessions.Snapshot()
	return decide(snap, route)
}

func decide(snap session.Snapshot, route Route) Decision {
	if snap.Loading {
		return Decision{State: StateLoading, Route: route}
	}

	if !snap.Signed || snap.User == nil {
		return Decision{State: StateDenied, Route: route, Redirect: RouteLogin}
	}

	if route == RouteChangePassword {
		return Decision{State: StateGranted, Route: route}
	}

	if snap.FirstAccess {
		return Decision{State: StatePasswordChangeRequired, Route: route, Redirect: RouteChangePassword}
	}

	entry, ok := contains(BuildNavigation(snap.User.Identity), route)
	if !ok {
		return Decision{State: StateForbidden, Route: route}
	}

	return Decision{State: StateGranted, Route: route, Entry: &entry}
}

// Navigation is nil while the operator cannot use the sidebar: loading,
// signed out, or pending first-access password change.
func (g *Gate) Navigation() []Entry {
	return navigationFor(g.sessions.Snapshot())
}

func navigationFor(snap session.Snapshot) []Entry {
	if snap.Loading || !snap.Signed || snap.User == nil || snap.FirstAccess {
		return nil
	}
	return BuildNavigation(snap.User.Identity)
}

// Cached returns the navigation computed at the last re-evaluation and its
// version counter.
func (g *Gate) Cached() ([]Entry, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Entry, len(g.nav))
	copy(out, g.nav)
	return out, g.version
}

// Reevaluate recomputes the navigation and publishes access.reevaluated.
func (g *Gate) Reevaluate() []Entry {
	snap := g.sessions.Snapshot()
	nav := navigationFor(snap)

	g.mu.Lock()
	g.nav = nav
	g.version++
	version := g.version
	g.mu.Unlock()

	if g.bus != nil {
		g.bus.Publish(event.New(event.TypeAccessReevaluated, map[string]any{
			"version":      version,
			"signed":       snap.Signed,
			"first_access": snap.FirstAccess,
			"navigation":   nav,
		}))
	}

	return nav
}

// Run re-evaluates on every session event until ctx is done.
func (g *Gate) Run(ctx context.Context) {
	if g.bus == nil {
		return
	}

	events, unsubscribe := g.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if !e.Type.IsSession() {
				continue
			}
			nav := g.Reevaluate()
			slog.Debug("access re-evaluated", "trigger", e.Type, "entries", len(nav))
		}
	}
}
