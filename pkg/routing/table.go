package routing

import (
	"sync"
)

const maxRedirects = 8

// DefaultRoutes returns the client's route table
func DefaultRoutes() []Route {
	return []Route{
		{Name: "root", Pattern: "/", Redirect: LandingPath},
		{Name: "login", Pattern: LoginPath, Meta: Meta{RequiresGuest: true, Title: "Login"}},
		{Name: "register", Pattern: RegisterPath, Meta: Meta{RequiresGuest: true, Title: "Register"}},
		{Name: "classes", Pattern: "/classes", Meta: Meta{RequiresAuth: true, Title: "My classes"}},
		{Name: "assignments", Pattern: "/assignments/:classId", Meta: Meta{RequiresAuth: true, Title: "Assignments"}},
		{Name: "assignment", Pattern: "/assignment/:assignmentId", Meta: Meta{RequiresAuth: true, Title: "Assignment"}},
		{Name: "submissions", Pattern: "/submissions", Meta: Meta{RequiresAuth: true, Title: "My submissions"}},
		{Name: "submission", Pattern: "/submission/:submissionId", Meta: Meta{RequiresAuth: true, Title: "Submission"}},
		{Name: "profile", Pattern: "/profile", Meta: Meta{RequiresAuth: true, Title: "Profile"}},
	}
}

// Table is an ordered route table. The first matching route wins.
type Table struct {
	mu      sync.RWMutex
	routes  []Route
	matcher *PatternMatcher
}

// NewTable builds a table from routes
func NewTable(routes []Route) (*Table, error) {
	t := &Table{matcher: NewPatternMatcher(0)}
	for _, r := range routes {
		if err := t.Add(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add appends a route
func (t *Table) Add(r Route) error {
	if r.Name == "" {
		return &RoutingError{Code: ErrCodeValidation, Message: "Route name is required", Path: r.Pattern}
	}
	if err := t.matcher.Validate(r.Pattern); err != nil {
		return err
	}
	if r.Meta.RequiresAuth && r.Meta.RequiresGuest {
		return &RoutingError{Code: ErrCodeValidation, Message: "Route cannot require both auth and guest", Path: r.Pattern}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.routes {
		if existing.Name == r.Name {
			return &RoutingError{Code: ErrCodeValidation, Message: "Duplicate route name " + r.Name, Path: r.Pattern}
		}
	}
	t.routes = append(t.routes, r)
	return nil
}

// Routes returns a copy of the table
func (t *Table) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Resolve finds the route for path, following redirect routes
func (t *Table) Resolve(path string) (*Match, error) {
	current := normalizePath(path)
	seen := make(map[string]bool)

	for i := 0; i <= maxRedirects; i++ {
		if seen[current] {
			return nil, &RoutingError{Code: ErrCodeCircular, Message: "Redirect loop", Path: path}
		}
		seen[current] = true

		m, ok := t.lookup(current)
		if !ok {
			return nil, &RoutingError{Code: ErrCodeNotFound, Message: "No route matches", Path: current}
		}
		if m.Route.Redirect == "" {
			return m, nil
		}
		current = normalizePath(m.Route.Redirect)
	}
	return nil, &RoutingError{Code: ErrCodeCircular, Message: "Too many redirects", Path: path}
}

func (t *Table) lookup(path string) (*Match, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.routes {
		if params, ok := t.matcher.Match(r.Pattern, path); ok {
			return &Match{Route: r, Path: path, Params: params}, true
		}
	}
	return nil, false
}
