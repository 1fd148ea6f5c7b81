package adminserver

import (
	"context"
	"net/http"
)

// HandlerFunc answers one request.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Middleware wraps a HandlerFunc with additional functionality.
type Middleware func(HandlerFunc) HandlerFunc

// Chain chains multiple middlewares together.
// The first middleware is the outermost.
func Chain(h HandlerFunc, middlewares ...Middleware) HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Metric labels for requests that matched no route.
const (
	routeNotFound         = "not_found"
	routeMethodNotAllowed = "method_not_allowed"
)

// Route is an entry of the routing table.
type Route struct {
	Method string
	Path   string
	// Gated routes require a valid bearer token.
	Gated   bool
	Handler HandlerFunc
}

type routeKey struct {
	method string
	path   string
}

// Router matches requests by exact method and path.
type Router struct {
	routes  map[routeKey]Route
	methods map[string]bool
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		routes:  make(map[routeKey]Route),
		methods: make(map[string]bool),
	}
}

// Handle registers a route. Registering the same method and path twice
// replaces the earlier route.
func (r *Router) Handle(method, path string, gated bool, h HandlerFunc) {
	r.routes[routeKey{method, path}] = Route{
		Method:  method,
		Path:    path,
		Gated:   gated,
		Handler: h,
	}
	r.methods[method] = true
}

// Lookup resolves a request to a route. When no route matches, ok is false
// and status is 405 for methods no route uses, 404 otherwise.
func (r *Router) Lookup(method, path string) (route Route, status int, ok bool) {
	if !r.methods[method] {
		return Route{}, http.StatusMethodNotAllowed, false
	}
	route, ok = r.routes[routeKey{method, path}]
	if !ok {
		return Route{}, http.StatusNotFound, false
	}
	return route, http.StatusOK, true
}
