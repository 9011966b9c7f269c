package websocket

import (
	"fmt"
	"sort"
	"sync"

	"github.com/luciancaetano/wsnext/internal/dispatch"
	"github.com/luciancaetano/wsnext/internal/path"
)

// SessionFactory creates the session of one accepted connection. The server
// fills in the transport, handshake, path parameters, executors, manager,
// logger and close hook; the factory supplies the compiled endpoint and
// container.
type SessionFactory = func(opts dispatch.Options) *dispatch.Session

// Route is one registered endpoint.
type Route struct {
	ID      string
	matcher *path.Matcher
	factory SessionFactory
	manager *dispatch.Manager
}

// Pattern returns the normalized endpoint path.
func (r *Route) Pattern() string {
	return r.matcher.Pattern()
}

// Manager returns the connections of the route.
func (r *Route) Manager() *dispatch.Manager {
	return r.manager
}

// Router maps request paths to endpoints. Static paths take precedence over
// parameterized ones.
type Router struct {
	mu     sync.RWMutex
	routes []*Route
	byID   map[string]*Route
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{byID: make(map[string]*Route)}
}

// RegisterEndpoint registers the endpoint at the normalized path p.
func (r *Router) RegisterEndpoint(p, id string, factory SessionFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("endpoint id %q already registered", id)
	}
	for _, route := range r.routes {
		if route.Pattern() == p {
			return fmt.Errorf("endpoint path %q already registered by %q", p, route.ID)
		}
	}

	route := &Route{
		ID:      id,
		matcher: path.Compile(p),
		factory: factory,
		manager: dispatch.NewManager(id),
	}
	r.routes = append(r.routes, route)
	sort.SliceStable(r.routes, func(i, j int) bool {
		return r.routes[i].matcher.Static() && !r.routes[j].matcher.Static()
	})
	r.byID[id] = route
	return nil
}

// Match finds the route serving requestPath.
func (r *Router) Match(requestPath string) (*Route, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.routes {
		if params, ok := route.matcher.Match(requestPath); ok {
			return route, params, true
		}
	}
	return nil, nil, false
}

// Route returns the route registered under id.
func (r *Router) Route(id string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.byID[id]
	return route, ok
}

// Routes returns the registered routes in match order.
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Route(nil), r.routes...)
}
