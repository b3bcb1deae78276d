package routing

import (
	"context"
	"errors"

	"github.com/harun/hwdesk/internal/observability"
	"github.com/harun/hwdesk/internal/tracing"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "hwdesk.routing"

// Sessions is the part of the session manager the guard needs
type Sessions interface {
	Token() string
	HasStoredToken(ctx context.Context) bool
	Restore(ctx context.Context) session.RestoreOutcome
	IsExpired() bool
	Clear(ctx context.Context)
	Expire(ctx context.Context, reason session.Reason) bool
}

// Guard decides whether a navigation may proceed
type Guard struct {
	table    *Table
	sessions Sessions
}

// NewGuard creates a guard over table and sessions
func NewGuard(table *Table, sessions Sessions) *Guard {
	observability.EnsureRegistered()
	return &Guard{table: table, sessions: sessions}
}

// Table returns the route table the guard resolves against
func (g *Guard) Table() *Table {
	return g.table
}

// Evaluate runs the guard for target. The only side effects are session
// rehydration and clearing of stale or unreadable sessions.
func (g *Guard) Evaluate(ctx context.Context, target string) Decision {
	ctx = tracing.WithRoute(ctx, target)
	ctx, span := tracing.StartSpan(ctx, tracerName, "routing.guard", attribute.String("route.target", target))
	defer span.End()

	d := g.evaluate(ctx, target)

	span.SetAttributes(attribute.String("route.action", string(d.Action)), attribute.String("route.path", d.Path))
	observability.RecordGuardDecision(string(d.Action))
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("target", target).
		Str("action", string(d.Action)).
		Str("path", d.Path).
		Msg("Route guard evaluated")
	return d
}

func (g *Guard) evaluate(ctx context.Context, target string) Decision {
	if g.sessions.Token() == "" && g.sessions.HasStoredToken(ctx) {
		if g.sessions.Restore(ctx) == session.RestoreDiscarded {
			g.sessions.Clear(ctx)
			return g.toLogin(target, session.Notice(session.ReasonDiscarded))
		}
	}

	expired := false
	if g.sessions.Token() != "" && g.sessions.IsExpired() {
		g.sessions.Expire(ctx, session.ReasonExpired)
		expired = true
	}

	match, err := g.table.Resolve(target)
	if err != nil {
		var rerr *RoutingError
		if errors.As(err, &rerr) && rerr.Code != ErrCodeNotFound {
			logger := tracing.LoggerFromContext(ctx, log.Logger)
			logger.Warn().Err(err).Msg("Route table cannot resolve target")
		}
		return Decision{Action: ActionNotFound, Path: target, From: target}
	}
	meta := match.Route.Meta

	if expired && meta.RequiresAuth {
		return g.toLogin(target, session.Notice(session.ReasonExpired))
	}

	authenticated := g.sessions.Token() != "" && !g.sessions.IsExpired()

	if meta.RequiresGuest && authenticated {
		return Decision{Action: ActionRedirectLanding, Path: LandingPath, From: target}
	}
	if meta.RequiresAuth && !authenticated {
		return g.toLogin(target, "")
	}

	return Decision{
		Action: ActionAllow,
		Path:   match.Path,
		From:   target,
		Route:  match.Route,
		Params: match.Params,
	}
}

func (g *Guard) toLogin(target, notice string) Decision {
	return Decision{Action: ActionRedirectLogin, Path: LoginPath, From: target, Notice: notice}
}
