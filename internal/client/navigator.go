package client

import "sync"

// Routes known to the client.
const (
	RouteChat    = "/chat"
	RouteSignup  = "/signup"
	RouteLogin   = "/login"
	RoutePricing = "/pricing"
	RouteAccount = "/account"
)

// Route is a location in the client along with its access rule.
type Route struct {
	Path      string
	Protected bool // requires an account session
}

// Navigator moves the surface between routes. Only components that are
// allowed to redirect receive one.
type Navigator interface {
	Current() Route
	Navigate(path, reason string)
}

// Notifier shows transient feedback and blocking prompts.
type Notifier interface {
	Toast(message string)
	ShowPaywall(message string)
	PromptAuth(reason string)
	OpenURL(url string)
}

// Navigation is one recorded Navigate call.
type Navigation struct {
	Path   string
	Reason string
}

// MemoryNavigator keeps the current route in memory and records history.
type MemoryNavigator struct {
	mu        sync.Mutex
	current   string
	protected map[string]bool
	history   []Navigation
}

// NewMemoryNavigator starts at start; the listed paths require a session.
func NewMemoryNavigator(start string, protected ...string) *MemoryNavigator {
	n := &MemoryNavigator{current: start, protected: make(map[string]bool)}
	for _, p := range protected {
		n.protected[p] = true
	}
	return n
}

func (n *MemoryNavigator) Current() Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Route{Path: n.current, Protected: n.protected[n.current]}
}

func (n *MemoryNavigator) Navigate(path, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
	n.history = append(n.history, Navigation{Path: path, Reason: reason})
}

// History returns every navigation so far.
func (n *MemoryNavigator) History() []Navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Navigation(nil), n.history...)
}
