package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chatwire/chatwire-go/contracts"
)

// Handler processes an inbound envelope.
type Handler func(ctx context.Context, env *contracts.Envelope) error

// Route binds a (feature, messageType) pair to a handler. Priority is
// informational only, not a queue discipline.
type Route struct {
	Feature     contracts.Feature
	MessageType contracts.MessageType
	Handler     Handler
	Priority    int
	Enabled     bool
}

// ErrorCallback receives handler errors for a feature. Handler errors are
// forwarded here and never propagate into the dispatch of the next message.
type ErrorCallback func(env *contracts.Envelope, err error)

type routeKey struct {
	feature     contracts.Feature
	messageType contracts.MessageType
}

// Router maps (feature, messageType) pairs to handlers and dispatches
// inbound envelopes to the matching handler. One route per pair; a later
// registration replaces an earlier one.
type Router struct {
	mu             sync.RWMutex
	routes         map[routeKey]Route
	errorCallbacks map[contracts.Feature]ErrorCallback
	logger         *slog.Logger
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a new message router.
func NewRouter(options ...RouterOption) *Router {
	r := &Router{
		routes:         make(map[routeKey]Route),
		errorCallbacks: make(map[contracts.Feature]ErrorCallback),
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// RegisterRoute inserts the route for its (feature, messageType) pair.
// Registering a pair that already has a route replaces it: last writer
// wins. The overwrite is logged as a warning so duplicate registrations
// are visible rather than silent.
func (r *Router) RegisterRoute(route Route) {
	key := routeKey{feature: route.Feature, messageType: route.MessageType}

	r.mu.Lock()
	_, existed := r.routes[key]
	r.routes[key] = route
	r.mu.Unlock()

	if existed {
		r.logger.Warn("route overwritten",
			"feature", route.Feature,
			"messageType", route.MessageType,
		)
		return
	}

	r.logger.Debug("route registered",
		"feature", route.Feature,
		"messageType", route.MessageType,
	)
}

// UnregisterRoute removes the route for (feature, messageType). No-op if
// no such route exists.
func (r *Router) UnregisterRoute(feature contracts.Feature, messageType contracts.MessageType) {
	r.mu.Lock()
	delete(r.routes, routeKey{feature: feature, messageType: messageType})
	r.mu.Unlock()
}

// UnregisterFeature removes every route and the error callback for a
// feature. Used by adapter cleanup.
func (r *Router) UnregisterFeature(feature contracts.Feature) {
	r.mu.Lock()
	for key := range r.routes {
		if key.feature == feature {
			delete(r.routes, key)
		}
	}
	delete(r.errorCallbacks, feature)
	r.mu.Unlock()
}

// SetErrorCallback sets the callback that receives handler errors for a
// feature.
func (r *Router) SetErrorCallback(feature contracts.Feature, cb ErrorCallback) {
	r.mu.Lock()
	r.errorCallbacks[feature] = cb
	r.mu.Unlock()
}

// RouteMessage dispatches an envelope to the handler registered for its
// (feature, messageType) pair. Envelopes with no matching route, or whose
// route is disabled, are dropped: unknown message types must not crash the
// pipeline. A handler error is forwarded to the feature's error callback
// and never surfaces to the caller, so one bad message cannot poison the
// dispatch of the next.
func (r *Router) RouteMessage(ctx context.Context, env *contracts.Envelope) {
	if env == nil {
		return
	}

	key := routeKey{feature: env.Feature, messageType: env.MessageType}

	r.mu.RLock()
	route, found := r.routes[key]
	errorCb := r.errorCallbacks[env.Feature]
	r.mu.RUnlock()

	if !found {
		r.logger.Debug("no route for envelope, dropping",
			"feature", env.Feature,
			"messageType", env.MessageType,
			"type", env.Type,
		)
		return
	}
	if !route.Enabled {
		r.logger.Debug("route disabled, dropping",
			"feature", env.Feature,
			"messageType", env.MessageType,
		)
		return
	}

	if err := route.Handler(ctx, env); err != nil {
		r.logger.Error("route handler failed",
			"feature", env.Feature,
			"messageType", env.MessageType,
			"envelopeId", env.ID,
			"error", err,
		)
		if errorCb != nil {
			errorCb(env, err)
		}
	}
}

// HasRoute reports whether a route is registered for the pair.
func (r *Router) HasRoute(feature contracts.Feature, messageType contracts.MessageType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[routeKey{feature: feature, messageType: messageType}]
	return ok
}

// Routes returns a snapshot of the registered routes.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		routes = append(routes, route)
	}
	return routes
}
