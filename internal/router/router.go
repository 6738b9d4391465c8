// Package router holds the route table that maps (category, name) pairs to
// handlers and dispatches requests through it.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
)

var (
	// ErrRouteExists is returned when registering a (category, name) pair
	// that is already taken.
	ErrRouteExists = errors.New("route already exists")

	// ErrRouteNotFound is returned when no route matches a request.
	ErrRouteNotFound = errors.New("route not found")
)

// Handler serves one request.
type Handler func(ctx context.Context, req *request.Request) (response.Response, error)

// Route binds a handler to a (category, name) pair.
type Route struct {
	Category request.Category
	Name     string
	Handler  Handler
}

func (r Route) String() string {
	return fmt.Sprintf("%s/%s", r.Category, r.Name)
}

// RouteSource is anything that contributes routes, typically a plugin.
type RouteSource interface {
	Name() string
	Routes() []Route
}

type key struct {
	category request.Category
	name     string
}

// Router is the route table. It is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[key]Route
}

// New creates an empty router.
func New() *Router {
	return &Router{routes: make(map[key]Route)}
}

// Register adds a single route. A taken pair fails with ErrRouteExists and
// leaves the table unchanged.
func (r *Router) Register(category request.Category, name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{category, name}
	if _, ok := r.routes[k]; ok {
		return fmt.Errorf("%w: %q in route type %s", ErrRouteExists, name, category)
	}
	r.routes[k] = Route{Category: category, Name: name, Handler: h}
	log.Debug().Str("category", category.String()).Str("route", name).Msg("route registered")
	return nil
}

// Bind registers every route of src. All routes are checked first, so a
// conflict registers none of them.
func (r *Router) Bind(src RouteSource) error {
	routes := src.Routes()

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[key]bool, len(routes))
	for _, rt := range routes {
		k := key{rt.Category, rt.Name}
		if _, ok := r.routes[k]; ok || seen[k] {
			return fmt.Errorf("binding %s: %w: %q in route type %s",
				src.Name(), ErrRouteExists, rt.Name, rt.Category)
		}
		seen[k] = true
	}
	for _, rt := range routes {
		r.routes[key{rt.Category, rt.Name}] = rt
	}
	log.Debug().Str("source", src.Name()).Int("routes", len(routes)).Msg("routes bound")
	return nil
}

// Lookup returns the handler for a (category, name) pair.
func (r *Router) Lookup(category request.Category, name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[key{category, name}]
	if !ok {
		return nil, fmt.Errorf("%w: no route with the name of %q in route type %s",
			ErrRouteNotFound, name, category)
	}
	return rt.Handler, nil
}

// Exec dispatches req to the handler bound to its category and route.
func (r *Router) Exec(ctx context.Context, req *request.Request) (response.Response, error) {
	h, err := r.Lookup(req.Category(), req.Route())
	if err != nil {
		return response.Response{}, err
	}
	log.Debug().Str("category", req.Category().String()).Str("route", req.Route()).Msg("executing route")
	return h(ctx, req)
}

// Routes lists registered routes ordered by category, then name.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of registered routes.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
