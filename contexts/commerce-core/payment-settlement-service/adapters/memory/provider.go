package memory

import (
	"context"
	"fmt"
	"sync"

	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

// Provider is an in-process stand-in for the hosted checkout provider. It
// records every created session so tests can assert amounts and metadata.
type Provider struct {
	mu       sync.Mutex
	sessions []ports.CheckoutSessionSpec

	// Err, when set, fails the next CreateSession call.
	Err error
}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) CreateSession(_ context.Context, spec ports.CheckoutSessionSpec) (ports.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return ports.CheckoutSession{}, p.Err
	}
	p.sessions = append(p.sessions, spec)
	sessionID := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return ports.CheckoutSession{
		SessionID: sessionID,
		URL:       "https://checkout.example/pay/" + sessionID,
	}, nil
}

func (p *Provider) Sessions() []ports.CheckoutSessionSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.CheckoutSessionSpec(nil), p.sessions...)
}
