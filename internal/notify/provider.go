package notify

import (
	"context"
	"fmt"
	"sync"
)

// Message is the channel-agnostic content handed to a provider.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	// MembershipNumber and TicketToken ride along for providers that need
	// structured fields (the SMS export file, the gateway payload).
	MembershipNumber string
	TicketToken      string
}

// Provider delivers one message to one recipient. Implementations must
// respect ctx cancellation; the dispatcher bounds every call with a
// timeout.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Registry holds the configured providers, selectable per call.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown notification provider %q", name)
	}
	return p, nil
}
