package routing

import (
	"context"
	"sync"

	"github.com/harun/hwdesk/internal/tracing"
	"github.com/harun/hwdesk/pkg/gateway"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/rs/zerolog/log"
)

// Location is where the navigator currently is
type Location struct {
	Path   string
	Route  Route
	Params map[string]string
	Notice string
}

// Navigator holds the current location and applies the guard to every
// navigation. It also reacts to forced logouts by moving to the login route.
type Navigator struct {
	guard *Guard
	stats *StatisticsTracker

	mu      sync.Mutex
	current Location

	listenersMu sync.RWMutex
	nextID      uint64
	listeners   map[uint64]func(Location)
}

// NewNavigator creates a navigator with no current location
func NewNavigator(guard *Guard) *Navigator {
	return &Navigator{
		guard:     guard,
		stats:     NewStatisticsTracker(),
		listeners: make(map[uint64]func(Location)),
	}
}

// Guard returns the guard every navigation runs through
func (n *Navigator) Guard() *Guard {
	return n.guard
}

// Current returns the current location
func (n *Navigator) Current() Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Statistics returns the per-target guard statistics
func (n *Navigator) Statistics() *StatisticsTracker {
	return n.stats
}

// Navigate moves to target. Redirects are followed until the guard allows a
// location; the returned decision is the first one so callers see why they
// were moved. An unknown target leaves the location unchanged.
func (n *Navigator) Navigate(ctx context.Context, target string) (Decision, Location) {
	first := n.guard.Evaluate(ctx, target)
	n.stats.Record(first)

	d := first
	notice := first.Notice
	for hops := 0; d.Redirected() && hops < maxRedirects; hops++ {
		d = n.guard.Evaluate(ctx, d.Path)
		n.stats.Record(d)
		if notice == "" {
			notice = d.Notice
		}
	}

	if d.Action != ActionAllow {
		return first, n.Current()
	}

	loc := Location{Path: d.Path, Route: d.Route, Params: d.Params, Notice: notice}
	n.mu.Lock()
	n.current = loc
	n.mu.Unlock()

	n.publish(loc)
	return first, loc
}

// OnChange registers fn to be told about every location change. The
// returned function removes the registration.
func (n *Navigator) OnChange(fn func(Location)) func() {
	n.listenersMu.Lock()
	defer n.listenersMu.Unlock()

	n.nextID++
	id := n.nextID
	n.listeners[id] = fn

	return func() {
		n.listenersMu.Lock()
		defer n.listenersMu.Unlock()
		delete(n.listeners, id)
	}
}

// HandleAuthFailure moves to the login route after the server rejected
// the session, unless the user is already there.
func (n *Navigator) HandleAuthFailure(evt gateway.AuthFailure) {
	n.forceLogin(context.Background(), session.Notice(session.ReasonRejected), evt.Path)
}

// HandleForceLogout moves to the login route after the session was cleared
// locally, for example by the expiry sweeper.
func (n *Navigator) HandleForceLogout(evt session.ForceLogout) {
	n.forceLogin(context.Background(), evt.Notice, "")
}

// BindGateway subscribes the navigator to gw's auth failures
func (n *Navigator) BindGateway(gw *gateway.Client) func() {
	return gw.OnAuthFailure(n.HandleAuthFailure)
}

// BindSessions subscribes the navigator to forced logouts
func (n *Navigator) BindSessions(mgr *session.Manager) func() {
	return mgr.OnForceLogout(n.HandleForceLogout)
}

func (n *Navigator) forceLogin(ctx context.Context, notice, cause string) {
	if n.Current().Path == LoginPath {
		return
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().
		Str("from", n.Current().Path).
		Str("cause", cause).
		Msg("Redirecting to login")

	loc := Location{Path: LoginPath, Notice: notice}
	if m, err := n.guard.Table().Resolve(LoginPath); err == nil {
		loc.Route = m.Route
	}

	n.mu.Lock()
	n.current = loc
	n.mu.Unlock()
	n.publish(loc)
}

func (n *Navigator) publish(loc Location) {
	n.listenersMu.RLock()
	handlers := make([]func(Location), 0, len(n.listeners))
	for _, fn := range n.listeners {
		handlers = append(handlers, fn)
	}
	n.listenersMu.RUnlock()

	for _, fn := range handlers {
		fn(loc)
	}
}
