// Package places defines the Provider interface for nearby-venue search
// backends and the Venue type shared by every layer that handles venues.
//
// A search either reaches a backend (StatusOK, possibly with zero venues) or
// cannot be attempted at all because the backend is not configured
// (StatusUnavailable). The second case is a Result, not an error: it is an
// expected deployment state. Upstream failures are errors wrapping
// [ErrUnavailable].
package places

import (
	"context"
	"errors"
)

// ErrUnavailable marks errors caused by the upstream search service failing
// (network error, non-200 status, undecodable body).
var ErrUnavailable = errors.New("places: search service unavailable")

// Venue is one place returned by a search.
type Venue struct {
	Name    string
	Address string

	// Latitude and Longitude fall back to the search center when the backend
	// omits coordinates.
	Latitude  float64
	Longitude float64

	// Rating is in [0, 5]; zero when the backend has no rating.
	Rating float64

	// Category is the backend's venue type, e.g. "Pizza restaurant".
	Category string

	// PriceLevel is an optional price indicator such as "$$". Empty when unknown.
	PriceLevel string
}

// Status distinguishes a completed search from one that was never attempted.
type Status int

const (
	// StatusOK means the backend answered. Venues may still be empty.
	StatusOK Status = iota
	// StatusUnavailable means no search was performed.
	StatusUnavailable
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of a FindNear call.
type Result struct {
	Status Status
	Venues []Venue

	// Reason explains a StatusUnavailable result (e.g. "SERPAPI_API_KEY not configured").
	Reason string
}

// Found returns a StatusOK result carrying venues.
func Found(venues []Venue) Result {
	return Result{Status: StatusOK, Venues: venues}
}

// Unavailable returns a StatusUnavailable result with the given reason.
func Unavailable(reason string) Result {
	return Result{Status: StatusUnavailable, Reason: reason}
}

// Provider is the abstraction over any places-search backend.
type Provider interface {
	// FindNear searches for venues matching query around (lat, lon). It makes a
	// single attempt.
	FindNear(ctx context.Context, lat, lon float64, query string) (Result, error)
}

// Unconfigured is a Provider that never searches. It is used when no places
// backend is configured.
type Unconfigured struct {
	// Reason is echoed in every Result.
	Reason string
}

// FindNear implements Provider.
func (u Unconfigured) FindNear(context.Context, float64, float64, string) (Result, error) {
	return Unavailable(u.Reason), nil
}

var _ Provider = Unconfigured{}
