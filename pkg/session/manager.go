package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/hwdesk/internal/observability"
	"github.com/harun/hwdesk/internal/tracing"
	"github.com/harun/hwdesk/pkg/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "hwdesk.session"

// Options configures a Manager
type Options struct {
	// TTL stamped onto each new token. Defaults to DefaultTTL.
	TTL time.Duration
	// MissingExpiry decides how a token without expiry is judged. Defaults to MissingExpiryValid.
	MissingExpiry MissingExpiryPolicy
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager is the single source of truth for authentication state and the
// only writer of the persistent store. It is safe for concurrent use.
type Manager struct {
	store         store.Store
	ttl           time.Duration
	missingExpiry MissingExpiryPolicy
	now           func() time.Time

	mu      sync.RWMutex
	current Session

	listenersMu     sync.RWMutex
	nextListenerID  uint64
	sessionHandlers map[uint64]func(Session)
	logoutHandlers  map[uint64]func(ForceLogout)
}

// NewManager creates a Manager backed by st. The session starts empty; call
// Restore to rehydrate it.
func NewManager(st store.Store, opts Options) *Manager {
	observability.EnsureRegistered()

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MissingExpiry == "" {
		opts.MissingExpiry = MissingExpiryValid
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store:           st,
		ttl:             opts.TTL,
		missingExpiry:   opts.MissingExpiry,
		now:             opts.Now,
		sessionHandlers: make(map[uint64]func(Session)),
		logoutHandlers:  make(map[uint64]func(ForceLogout)),
	}
}

// TTL returns the lifetime stamped onto new tokens
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Snapshot returns a copy of the current session
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Token returns the current bearer token, or "" when unauthenticated
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

// HasStoredToken reports whether the persistent store holds a token. Data
// too damaged to read counts as a token so that Restore gets to discard it.
func (m *Manager) HasStoredToken(ctx context.Context) bool {
	token, ok, err := m.store.Get(ctx, store.KeyToken)
	if err != nil {
		return errors.Is(err, store.ErrCorrupt)
	}
	return ok && token != ""
}

// Restore replaces the in-memory session with what the persistent store
// holds. A stored token without a stored profile leaves the session
// unauthenticated. Malformed data is deleted, logged and counted; Restore
// never fails.
func (m *Manager) Restore(ctx context.Context) RestoreOutcome {
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.restore")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	loaded, outcome, parseErr := m.load(ctx)
	if parseErr != nil {
		logger.Warn().Err(parseErr).Msg("Discarding unreadable persisted session")
		observability.RecordStoreParseFailure(parseErr.Key)
		if err := m.store.Delete(ctx, store.KeyToken, store.KeyUserInfo); err != nil {
			logger.Error().Err(err).Msg("Failed to delete unreadable persisted session")
		}
	}
	span.SetAttributes(attribute.String("outcome", outcome.String()))

	m.mu.Lock()
	prev := m.current
	m.current = loaded
	m.mu.Unlock()

	if prev != loaded {
		m.publishSession(loaded)
	}
	observability.SetSessionAuthenticated(loaded.Authenticated())

	if prev.Authenticated() && !loaded.Authenticated() {
		reason := ReasonLogout
		if outcome == RestoreDiscarded {
			reason = ReasonDiscarded
		}
		m.publishForceLogout(ctx, prev, reason)
	}

	logger.Debug().
		Str("outcome", outcome.String()).
		Bool("authenticated", loaded.Authenticated()).
		Msg("Session restored")
	return outcome
}

func (m *Manager) load(ctx context.Context) (Session, RestoreOutcome, *StorageParseError) {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	token, hasToken, err := m.store.Get(ctx, store.KeyToken)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return Session{}, RestoreDiscarded, &StorageParseError{Key: store.KeyToken, Err: err}
		}
		logger.Error().Err(err).Msg("Failed to read persisted token")
		return Session{}, RestoreEmpty, nil
	}
	if !hasToken || token == "" {
		return Session{}, RestoreEmpty, nil
	}

	raw, hasInfo, err := m.store.Get(ctx, store.KeyUserInfo)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return Session{}, RestoreDiscarded, &StorageParseError{Key: store.KeyUserInfo, Err: err}
		}
		logger.Error().Err(err).Msg("Failed to read persisted profile")
		return Session{}, RestoreEmpty, nil
	}
	if !hasInfo || raw == "" {
		logger.Debug().Msg("Stored token has no profile, staying unauthenticated")
		return Session{}, RestoreEmpty, nil
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, RestoreDiscarded, &StorageParseError{Key: store.KeyUserInfo, Err: err}
	}
	if s.TokenExpiresAt != 0 && s.TokenIssuedAt != 0 && s.TokenExpiresAt <= s.TokenIssuedAt {
		return Session{}, RestoreDiscarded, &StorageParseError{
			Key: store.KeyUserInfo,
			Err: fmt.Errorf("expiry %d is not after issue time %d", s.TokenExpiresAt, s.TokenIssuedAt),
		}
	}

	s.Token = token
	return s, RestoreLoaded, nil
}

// SetSession merges patch into the current session and persists the result.
// A non-empty token that differs from the current one is stamped with
// IssuedAt=now and ExpiresAt=now+TTL, overriding any timestamps in patch.
func (m *Manager) SetSession(ctx context.Context, patch Patch) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.set")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	m.mu.Lock()
	prev := m.current
	next := prev
	patch.apply(&next)

	stamped := false
	switch {
	case next.Token == "":
		next.TokenIssuedAt = 0
		next.TokenExpiresAt = 0
	case next.Token != prev.Token:
		now := m.now()
		next.TokenIssuedAt = now.UnixMilli()
		next.TokenExpiresAt = now.Add(m.ttl).UnixMilli()
		stamped = true
	case next.TokenExpiresAt != 0 && next.TokenIssuedAt != 0 && next.TokenExpiresAt <= next.TokenIssuedAt:
		logger.Warn().
			Int64("issued_at", next.TokenIssuedAt).
			Int64("expires_at", next.TokenExpiresAt).
			Msg("Ignoring token timestamps that expire before issue")
		next.TokenIssuedAt = prev.TokenIssuedAt
		next.TokenExpiresAt = prev.TokenExpiresAt
	}

	m.current = next
	m.persistLocked(ctx, next)
	m.mu.Unlock()

	span.SetAttributes(attribute.Bool("token_stamped", stamped))
	observability.SetSessionAuthenticated(next.Authenticated())
	if prev != next {
		m.publishSession(next)
	}

	if stamped {
		observability.RecordTokenStamped()
		observability.RecordSessionAudit(ctx, "token_accepted", next.Username, "success", map[string]interface{}{
			"user_id":    next.UserID,
			"expires_at": next.ExpiresAt().Format(time.RFC3339),
		})
		logger.Info().
			Str("username", next.Username).
			Time("expires_at", next.ExpiresAt()).
			Msg("Session token accepted")
	}
}

func (m *Manager) persistLocked(ctx context.Context, s Session) {
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if s.Token == "" {
		if err := m.store.Delete(ctx, store.KeyToken); err != nil {
			logger.Error().Err(err).Msg("Failed to delete persisted token")
		}
	} else if err := m.store.Set(ctx, store.KeyToken, s.Token); err != nil {
		logger.Error().Err(err).Msg("Failed to persist token")
	}

	data, err := json.Marshal(s)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode session profile")
		return
	}
	if err := m.store.Set(ctx, store.KeyUserInfo, string(data)); err != nil {
		logger.Error().Err(err).Msg("Failed to persist session profile")
	}
}

// IsExpired reports whether the session cannot be used for authenticated
// calls: no token, or an expiry in the past. A token with no recorded expiry
// follows the configured MissingExpiryPolicy.
func (m *Manager) IsExpired() bool {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	return m.expired(s)
}

func (m *Manager) expired(s Session) bool {
	if s.Token == "" {
		return true
	}
	if s.TokenExpiresAt == 0 {
		return m.missingExpiry == MissingExpiryExpired
	}
	return m.now().UnixMilli() > s.TokenExpiresAt
}

// CheckExpiry expires a stale session and returns an AuthExpiredError. It
// returns nil when the session is valid or holds no token.
func (m *Manager) CheckExpiry(ctx context.Context) error {
	s := m.Snapshot()
	if s.Token == "" || !m.expired(s) {
		return nil
	}
	m.Expire(ctx, ReasonExpired)
	return &AuthExpiredError{ExpiredAt: s.ExpiresAt()}
}

// Clear resets the session and deletes the persisted entry. Clearing an
// already empty session is a no-op.
func (m *Manager) Clear(ctx context.Context) {
	m.clear(ctx, ReasonLogout, false)
}

// Expire clears the session and, when a token was present, publishes a
// ForceLogout carrying reason. It reports whether a token was cleared.
func (m *Manager) Expire(ctx context.Context, reason Reason) bool {
	return m.clear(ctx, reason, true)
}

// Reject expires the session after the server refused its credentials.
func (m *Manager) Reject(ctx context.Context) bool {
	return m.Expire(ctx, ReasonRejected)
}

func (m *Manager) clear(ctx context.Context, reason Reason, force bool) bool {
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.clear", attribute.String("reason", string(reason)))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	m.mu.Lock()
	prev := m.current
	m.current = Session{}
	if err := m.store.Delete(ctx, store.KeyToken, store.KeyUserInfo); err != nil {
		logger.Error().Err(err).Msg("Failed to delete persisted session")
	}
	m.mu.Unlock()

	observability.SetSessionAuthenticated(false)
	if prev != (Session{}) {
		m.publishSession(Session{})
	}

	if !prev.Authenticated() {
		return false
	}

	observability.RecordSessionCleared(string(reason))
	observability.RecordSessionAudit(ctx, "session_cleared", prev.Username, "success", map[string]interface{}{
		"reason":  string(reason),
		"user_id": prev.UserID,
	})
	logger.Info().Str("reason", string(reason)).Str("username", prev.Username).Msg("Session cleared")

	if force {
		m.publishForceLogout(ctx, prev, reason)
	}
	return true
}

// Subscribe registers fn to receive every new session state. The returned
// function removes the subscription.
func (m *Manager) Subscribe(fn func(Session)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.nextListenerID++
	id := m.nextListenerID
	m.sessionHandlers[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.sessionHandlers, id)
	}
}

// OnForceLogout registers fn to be told when the session is cleared without
// an explicit logout. The returned function removes the registration.
func (m *Manager) OnForceLogout(fn func(ForceLogout)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.nextListenerID++
	id := m.nextListenerID
	m.logoutHandlers[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.logoutHandlers, id)
	}
}

func (m *Manager) publishSession(s Session) {
	m.listenersMu.RLock()
	handlers := make([]func(Session), 0, len(m.sessionHandlers))
	for _, fn := range m.sessionHandlers {
		handlers = append(handlers, fn)
	}
	m.listenersMu.RUnlock()

	for _, fn := range handlers {
		fn(s)
	}
}

func (m *Manager) publishForceLogout(ctx context.Context, prev Session, reason Reason) {
	evt := ForceLogout{
		Reason:   reason,
		Notice:   Notice(reason),
		Username: prev.Username,
		At:       m.now(),
	}

	m.listenersMu.RLock()
	handlers := make([]func(ForceLogout), 0, len(m.logoutHandlers))
	for _, fn := range m.logoutHandlers {
		handlers = append(handlers, fn)
	}
	m.listenersMu.RUnlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	logger.Warn().
		Str("reason", string(reason)).
		Str("username", prev.Username).
		Msg("Forced logout")

	for _, fn := range handlers {
		fn(evt)
	}
}
