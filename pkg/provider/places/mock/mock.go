// Package mock provides a test double for the places.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/conch/pkg/provider/places"
)

// FindNearCall records a single invocation of FindNear.
type FindNearCall struct {
	Ctx   context.Context
	Lat   float64
	Lon   float64
	Query string
}

// Provider is a mock implementation of places.Provider. The zero value returns
// an empty StatusOK result.
type Provider struct {
	mu sync.Mutex

	// Result is returned by FindNear.
	Result places.Result

	// Err, if non-nil, is returned as the error from FindNear.
	Err error

	// FindNearCalls records every invocation of FindNear in order.
	FindNearCalls []FindNearCall
}

// FindNear records the call and returns Result, Err.
func (p *Provider) FindNear(ctx context.Context, lat, lon float64, query string) (places.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FindNearCalls = append(p.FindNearCalls, FindNearCall{Ctx: ctx, Lat: lat, Lon: lon, Query: query})
	if p.Err != nil {
		return places.Result{}, p.Err
	}
	return p.Result, nil
}

// Calls returns a snapshot of the recorded FindNear calls. Thread-safe.
func (p *Provider) Calls() []FindNearCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FindNearCall, len(p.FindNearCalls))
	copy(out, p.FindNearCalls)
	return out
}

var _ places.Provider = (*Provider)(nil)
