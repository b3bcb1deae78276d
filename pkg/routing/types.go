package routing

import "fmt"

const (
	LoginPath    = "/login"
	RegisterPath = "/register"
	LandingPath  = "/classes"
)

// Meta carries the authentication requirements of a route
type Meta struct {
	RequiresAuth  bool   `json:"requiresAuth,omitempty"`
	RequiresGuest bool   `json:"requiresGuest,omitempty"`
	Title         string `json:"title,omitempty"`
}

// Route binds a path pattern to its metadata. A route with Redirect set
// forwards to another path and is never rendered itself.
type Route struct {
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Redirect string `json:"redirect,omitempty"`
	Meta     Meta   `json:"meta"`
}

// Match is a resolved navigation target
type Match struct {
	Route  Route
	Path   string
	Params map[string]string
}

// Action is the outcome of a guard evaluation
type Action string

const (
	ActionAllow           Action = "allow"
	ActionRedirectLogin   Action = "redirect_login"
	ActionRedirectLanding Action = "redirect_landing"
	ActionNotFound        Action = "not_found"
)

// Decision is what the guard wants the navigator to do with a target
type Decision struct {
	Action Action
	// Path is the final location: the resolved target for ActionAllow,
	// otherwise the redirect destination.
	Path   string
	From   string
	Notice string
	Route  Route
	Params map[string]string
}

// Redirected reports whether the decision sends the user elsewhere
func (d Decision) Redirected() bool {
	return d.Action == ActionRedirectLogin || d.Action == ActionRedirectLanding
}

// RoutingError reports a problem with the route table or a target path
type RoutingError struct {
	Code    string
	Message string
	Path    string
}

func (e *RoutingError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Path)
}

// Error codes
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeCircular   = "CIRCULAR_REDIRECT"
)
