package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/hwdesk/pkg/gateway"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/harun/hwdesk/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *store.MemoryStore
	clock   *clock
	manager *session.Manager
	guard   *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	c := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	mgr := session.NewManager(st, session.Options{TTL: time.Hour, Now: c.Now})
	table, err := NewTable(DefaultRoutes())
	require.NoError(t, err)
	return &fixture{store: st, clock: c, manager: mgr, guard: NewGuard(table, mgr)}
}

func (f *fixture) login() {
	f.manager.SetSession(context.Background(), session.Patch{
		UserID:   session.String("1001"),
		Username: session.String("2022001"),
		Token:    session.String("tok"),
	})
}

func TestPatternMatcher(t *testing.T) {
	pm := NewPatternMatcher(4)

	t.Run("exact", func(t *testing.T) {
		_, ok := pm.Match("/classes", "/classes")
		assert.True(t, ok)
		_, ok = pm.Match("/classes", "/classes/1")
		assert.False(t, ok)
	})

	t.Run("params", func(t *testing.T) {
		params, ok := pm.Match("/assignments/:classId", "/assignments/42?tab=open")
		require.True(t, ok)
		assert.Equal(t, "42", params["classId"])
	})

	t.Run("trailing slash", func(t *testing.T) {
		_, ok := pm.Match("/profile", "/profile/")
		assert.True(t, ok)
	})

	t.Run("wildcard", func(t *testing.T) {
		params, ok := pm.Match("/files/*", "/files/a/b.txt")
		require.True(t, ok)
		assert.Equal(t, "a/b.txt", params["*"])
	})

	t.Run("cached params are copies", func(t *testing.T) {
		params, _ := pm.Match("/assignment/:assignmentId", "/assignment/7")
		params["assignmentId"] = "mutated"
		again, _ := pm.Match("/assignment/:assignmentId", "/assignment/7")
		assert.Equal(t, "7", again["assignmentId"])
	})

	t.Run("validate", func(t *testing.T) {
		assert.Error(t, pm.Validate("classes"))
		assert.Error(t, pm.Validate("/a/*/b"))
		assert.Error(t, pm.Validate("/a/:"))
		assert.NoError(t, pm.Validate("/a/:id/*"))
	})
}

func TestLRUCacheEvicts(t *testing.T) {
	c := NewLRUCache(2)
	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestTableResolve(t *testing.T) {
	table, err := NewTable(DefaultRoutes())
	require.NoError(t, err)

	m, err := table.Resolve("/")
	require.NoError(t, err)
	assert.Equal(t, "classes", m.Route.Name)
	assert.Equal(t, LandingPath, m.Path)

	m, err = table.Resolve("/submission/9")
	require.NoError(t, err)
	assert.Equal(t, "9", m.Params["submissionId"])

	_, err = table.Resolve("/nope")
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrCodeNotFound, rerr.Code)

	t.Run("redirect loop", func(t *testing.T) {
		loop, err := NewTable([]Route{
			{Name: "a", Pattern: "/a", Redirect: "/b"},
			{Name: "b", Pattern: "/b", Redirect: "/a"},
		})
		require.NoError(t, err)
		_, err = loop.Resolve("/a")
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, ErrCodeCircular, rerr.Code)
	})

	t.Run("rejects invalid routes", func(t *testing.T) {
		_, err := NewTable([]Route{{Name: "x", Pattern: "/x", Meta: Meta{RequiresAuth: true, RequiresGuest: true}}})
		assert.Error(t, err)
		_, err = NewTable([]Route{{Name: "x", Pattern: "/x"}, {Name: "x", Pattern: "/y"}})
		assert.Error(t, err)
	})
}

func TestGuardUnauthenticatedProtectedTarget(t *testing.T) {
	f := newFixture(t)

	d := f.guard.Evaluate(context.Background(), "/classes")
	assert.Equal(t, ActionRedirectLogin, d.Action)
	assert.Equal(t, LoginPath, d.Path)
	assert.Empty(t, d.Notice)
}

func TestGuardAuthenticatedGuestTarget(t *testing.T) {
	f := newFixture(t)
	f.login()

	for _, target := range []string{"/login", "/register"} {
		d := f.guard.Evaluate(context.Background(), target)
		assert.Equal(t, ActionRedirectLanding, d.Action, target)
		assert.Equal(t, LandingPath, d.Path)
	}
}

func TestGuardExpiredProtectedTarget(t *testing.T) {
	f := newFixture(t)
	f.login()
	f.clock.Advance(2 * time.Hour)

	d := f.guard.Evaluate(context.Background(), "/assignments/3")
	assert.Equal(t, ActionRedirectLogin, d.Action)
	assert.Equal(t, session.Notice(session.ReasonExpired), d.Notice)
	assert.Empty(t, f.manager.Token())
	assert.False(t, f.manager.HasStoredToken(context.Background()))
}

func TestGuardExpiredGuestTargetContinues(t *testing.T) {
	f := newFixture(t)
	f.login()
	f.clock.Advance(2 * time.Hour)

	d := f.guard.Evaluate(context.Background(), "/login")
	assert.Equal(t, ActionAllow, d.Action)
	assert.Empty(t, f.manager.Token())
}

func TestGuardRehydratesFromStore(t *testing.T) {
	f := newFixture(t)
	f.login()

	// A fresh manager over the same store simulates a restart.
	fresh := session.NewManager(f.store, session.Options{TTL: time.Hour, Now: f.clock.Now})
	guard := NewGuard(f.guard.Table(), fresh)

	d := guard.Evaluate(context.Background(), "/profile")
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "tok", fresh.Token())
}

func TestGuardDiscardsUnreadableStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, store.KeyToken, "tok"))
	require.NoError(t, f.store.Set(ctx, store.KeyUserInfo, "{not json"))

	d := f.guard.Evaluate(ctx, "/login")
	assert.Equal(t, ActionRedirectLogin, d.Action)
	assert.Equal(t, session.Notice(session.ReasonDiscarded), d.Notice)

	_, ok, err := f.store.Get(ctx, store.KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = f.store.Get(ctx, store.KeyUserInfo)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuardDiscardsCorruptStoreFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	st, err := store.NewFileStore(path)
	require.NoError(t, err)

	f := newFixture(t)
	mgr := session.NewManager(st, session.Options{TTL: time.Hour, Now: f.clock.Now})
	guard := NewGuard(f.guard.Table(), mgr)

	d := guard.Evaluate(ctx, "/classes")
	assert.Equal(t, ActionRedirectLogin, d.Action)
	assert.Equal(t, session.Notice(session.ReasonDiscarded), d.Notice)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestGuardUnknownTargetStillChecksSession(t *testing.T) {
	ctx := context.Background()

	t.Run("expired session is cleared", func(t *testing.T) {
		f := newFixture(t)
		f.login()
		f.clock.Advance(2 * time.Hour)

		d := f.guard.Evaluate(ctx, "/missing")
		assert.Equal(t, ActionNotFound, d.Action)
		assert.Empty(t, f.manager.Token())
		assert.False(t, f.manager.HasStoredToken(ctx))
	})

	t.Run("stored session is rehydrated", func(t *testing.T) {
		f := newFixture(t)
		f.login()
		fresh := session.NewManager(f.store, session.Options{TTL: time.Hour, Now: f.clock.Now})
		guard := NewGuard(f.guard.Table(), fresh)

		d := guard.Evaluate(ctx, "/missing")
		assert.Equal(t, ActionNotFound, d.Action)
		assert.Equal(t, "tok", fresh.Token())
	})
}

func TestGuardAllowsAndResolves(t *testing.T) {
	f := newFixture(t)
	f.login()

	d := f.guard.Evaluate(context.Background(), "/")
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, LandingPath, d.Path)

	d = f.guard.Evaluate(context.Background(), "/assignment/5")
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "5", d.Params["assignmentId"])

	d = f.guard.Evaluate(context.Background(), "/missing")
	assert.Equal(t, ActionNotFound, d.Action)

	f.manager.Clear(context.Background())
	d = f.guard.Evaluate(context.Background(), "/register")
	assert.Equal(t, ActionAllow, d.Action)
}

func TestNavigatorFollowsRedirects(t *testing.T) {
	f := newFixture(t)
	nav := NewNavigator(f.guard)

	var changes []Location
	nav.OnChange(func(loc Location) { changes = append(changes, loc) })

	d, loc := nav.Navigate(context.Background(), "/classes")
	assert.Equal(t, ActionRedirectLogin, d.Action)
	assert.Equal(t, LoginPath, loc.Path)

	f.login()
	d, loc = nav.Navigate(context.Background(), "/login")
	assert.Equal(t, ActionRedirectLanding, d.Action)
	assert.Equal(t, LandingPath, loc.Path)
	assert.Equal(t, "classes", loc.Route.Name)

	_, loc = nav.Navigate(context.Background(), "/nowhere")
	assert.Equal(t, LandingPath, loc.Path)

	require.Len(t, changes, 2)
	stats := nav.Statistics().Get("/classes")
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.Redirected)
	assert.Equal(t, int64(1), nav.Statistics().Get("/nowhere").NotFound)
}

func TestNavigatorExpiredNotice(t *testing.T) {
	f := newFixture(t)
	nav := NewNavigator(f.guard)
	f.login()
	f.clock.Advance(2 * time.Hour)

	_, loc := nav.Navigate(context.Background(), "/submissions")
	assert.Equal(t, LoginPath, loc.Path)
	assert.Equal(t, session.Notice(session.ReasonExpired), loc.Notice)
}

func TestNavigatorHandlesGatewayAuthFailure(t *testing.T) {
	f := newFixture(t)
	f.login()
	nav := NewNavigator(f.guard)
	_, loc := nav.Navigate(context.Background(), "/classes")
	require.Equal(t, LandingPath, loc.Path)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":401,"message":"token expired"}`))
	}))
	defer srv.Close()

	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL}, f.manager)
	require.NoError(t, err)
	defer nav.BindGateway(gw)()

	_, err = gw.Get(context.Background(), "/class/joined", nil)
	require.Error(t, err)

	cur := nav.Current()
	assert.Equal(t, LoginPath, cur.Path)
	assert.Equal(t, session.Notice(session.ReasonRejected), cur.Notice)
	assert.Empty(t, f.manager.Token())
}

func TestNavigatorHandlesForceLogout(t *testing.T) {
	f := newFixture(t)
	f.login()
	nav := NewNavigator(f.guard)
	_, _ = nav.Navigate(context.Background(), "/profile")
	defer nav.BindSessions(f.manager)()

	var changes int
	nav.OnChange(func(Location) { changes++ })

	f.manager.Expire(context.Background(), session.ReasonExpired)
	assert.Equal(t, LoginPath, nav.Current().Path)
	assert.Equal(t, 1, changes)

	// Already on login: no second transition.
	nav.HandleForceLogout(session.ForceLogout{Reason: session.ReasonExpired})
	assert.Equal(t, 1, changes)
}
