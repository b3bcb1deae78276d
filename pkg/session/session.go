package session

import "time"

// DefaultTTL is the lifetime stamped onto every newly accepted token.
const DefaultTTL = 24 * time.Hour

// Session is the process-wide authenticated identity. Timestamps are epoch
// milliseconds; zero means absent.
type Session struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	DisplayName    string `json:"name"`
	StudentID      string `json:"studentId,omitempty"`
	Token          string `json:"-"`
	TokenIssuedAt  int64  `json:"tokenIssuedAt,omitempty"`
	TokenExpiresAt int64  `json:"tokenExpiresAt,omitempty"`
}

// Authenticated reports whether the session holds a bearer token
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// ExpiresAt returns the expiry as a time, or the zero time when none is recorded
func (s Session) ExpiresAt() time.Time {
	if s.TokenExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.TokenExpiresAt)
}

// Patch lists the fields SetSession merges. Nil fields are left unchanged.
type Patch struct {
	UserID         *string
	Username       *string
	DisplayName    *string
	StudentID      *string
	Token          *string
	TokenIssuedAt  *int64
	TokenExpiresAt *int64
}

// String returns a pointer to s, for building a Patch
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to v, for building a Patch
func Int64(v int64) *int64 {
	return &v
}

func (p Patch) apply(s *Session) {
	if p.UserID != nil {
		s.UserID = *p.UserID
	}
	if p.Username != nil {
		s.Username = *p.Username
	}
	if p.DisplayName != nil {
		s.DisplayName = *p.DisplayName
	}
	if p.StudentID != nil {
		s.StudentID = *p.StudentID
	}
	if p.Token != nil {
		s.Token = *p.Token
	}
	if p.TokenIssuedAt != nil {
		s.TokenIssuedAt = *p.TokenIssuedAt
	}
	if p.TokenExpiresAt != nil {
		s.TokenExpiresAt = *p.TokenExpiresAt
	}
}

// MissingExpiryPolicy decides how a token without a recorded expiry is treated.
type MissingExpiryPolicy string

const (
	// MissingExpiryValid treats a token with no expiry as never expiring.
	MissingExpiryValid MissingExpiryPolicy = "valid"
	// MissingExpiryExpired treats a token with no expiry as already expired.
	MissingExpiryExpired MissingExpiryPolicy = "expired"
)

// Reason explains why a session was cleared
type Reason string

const (
	ReasonLogout    Reason = "logout"
	ReasonExpired   Reason = "expired"
	ReasonRejected  Reason = "rejected"
	ReasonDiscarded Reason = "discarded"
)

// ForceLogout is published when the session is cleared without the user
// asking for it.
type ForceLogout struct {
	Reason   Reason
	Notice   string
	Username string
	At       time.Time
}

// Notice returns the user-facing advisory for reason
func Notice(reason Reason) string {
	switch reason {
	case ReasonExpired:
		return "Your session has expired, please log in again"
	case ReasonRejected:
		return "The server rejected your credentials, please log in again"
	case ReasonDiscarded:
		return "Saved login data was unreadable, please log in again"
	default:
		return "You have been logged out"
	}
}

// RestoreOutcome describes what Restore found in the persistent store
type RestoreOutcome int

const (
	// RestoreEmpty means no usable session was stored.
	RestoreEmpty RestoreOutcome = iota
	// RestoreLoaded means a token and profile were loaded.
	RestoreLoaded
	// RestoreDiscarded means stored data was malformed and has been deleted.
	RestoreDiscarded
)

func (o RestoreOutcome) String() string {
	switch o {
	case RestoreLoaded:
		return "loaded"
	case RestoreDiscarded:
		return "discarded"
	default:
		return "empty"
	}
}
