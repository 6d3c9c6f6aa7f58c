package eventbus

import (
	"context"
	"errors"
	"fmt"
)

// Router sends each channel to the bus configured for it and everything else
// to a fallback. Routes are keyed by the exact channel or pattern string.
type Router struct {
	fallback Bus
	routes   map[string]Bus
}

func NewRouter(fallback Bus) *Router {
	if fallback == nil {
		panic("eventbus: Router needs a fallback bus")
	}
	return &Router{fallback: fallback, routes: make(map[string]Bus)}
}

// Route sends channel (and subscriptions using it as pattern) to b.
func (r *Router) Route(channel string, b Bus) *Router {
	r.routes[channel] = b
	return r
}

func (r *Router) busFor(channel string) Bus {
	if b, ok := r.routes[channel]; ok {
		return b
	}
	return r.fallback
}

func (r *Router) Publish(ctx context.Context, channel string, payload any) error {
	return r.busFor(channel).Publish(ctx, channel, payload)
}

func (r *Router) Subscribe(pattern string, h Handler) error {
	return r.busFor(pattern).Subscribe(pattern, h)
}

func (r *Router) Start(ctx context.Context) error {
	for _, b := range r.buses() {
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("eventbus: start routed bus: %w", err)
		}
	}
	return nil
}

func (r *Router) Stop() error {
	var errs []error
	for _, b := range r.buses() {
		if err := b.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buses lists each distinct bus once, fallback first.
func (r *Router) buses() []Bus {
	seen := map[Bus]bool{r.fallback: true}
	out := []Bus{r.fallback}
	for _, b := range r.routes {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}
