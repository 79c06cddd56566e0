package push

import (
	"context"
	"fmt"
	"sync"

	"pill-reminder/internal/database"
)

// Router dispatches a message to the transport registered for the recipient's platform.
type Router struct {
	mu         sync.RWMutex
	transports map[database.Platform]Transport
}

func NewRouter() *Router {
	return &Router{transports: make(map[database.Platform]Transport)}
}

func (r *Router) Register(platform database.Platform, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[platform] = t
}

func (r *Router) Supports(platform database.Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.transports[platform]
	return ok
}

func (r *Router) SendTo(ctx context.Context, platform database.Platform, msg Message) (Receipt, error) {
	r.mu.RLock()
	t, ok := r.transports[platform]
	r.mu.RUnlock()
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
	return t.Send(ctx, msg)
}
