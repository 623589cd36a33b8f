// Package service defines the scrobble service clients: the uniform
// capability surface over each remote backend and the per-service
// authentication state machines.
package service

import (
	"context"
	"errors"
	"sync"
)

// Predefined errors shared by all service variants.
var (
	// ErrNotAuthenticated is returned when a scrobble or now-playing
	// call is made without a valid credential. The caller should
	// trigger Authenticate.
	ErrNotAuthenticated = errors.New("service: not authenticated")

	// ErrAuthorizationCancelled is returned when the user cancels the
	// authorization step of an authentication handshake. Terminal until
	// the caller explicitly restarts the handshake.
	ErrAuthorizationCancelled = errors.New("service: authorization cancelled")

	// ErrNotAccepted is returned when the remote API answered a
	// scrobble without rejecting it but did not count it as accepted.
	ErrNotAccepted = errors.New("service: scrobble not accepted")
)

// State is the authentication state of a service credential.
type State int

const (
	StateUnknown State = iota // persisted credential not yet validated
	StateNeedsAuth
	StateTokenRequested
	StateAwaitingAuthorization
	StateSessionRequested
	StateAuthenticating
	StateAuthenticated
	StateFailed
)

// String returns a human-readable representation of the State.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateNeedsAuth:
		return "needs-auth"
	case StateTokenRequested:
		return "token-requested"
	case StateAwaitingAuthorization:
		return "awaiting-authorization"
	case StateSessionRequested:
		return "session-requested"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Terminal reports whether the state ends a handshake.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// Status is an externally observable snapshot of a service's credential
// state. Detail carries the failure reason or the authenticated account
// name.
type Status struct {
	State  State
	Detail string
}

// Service is the uniform capability surface of one scrobble backend.
type Service interface {
	// ID returns a stable identifier for the service.
	ID() string
	// Name returns a human-readable name.
	Name() string

	// IsAuthenticated reflects the last known credential state. It
	// never triggers network I/O.
	IsAuthenticated() bool

	// Authenticate drives the service-specific handshake to a terminal
	// state. Idempotent when already authenticated.
	Authenticate(ctx context.Context) error

	// Scrobble submits a play record with a timestamp taken at call
	// time. Fails fast with ErrNotAuthenticated without a credential.
	Scrobble(ctx context.Context, artist, track, album string) error

	// UpdateNowPlaying submits a transient now-playing status. Same
	// precondition as Scrobble; no timestamp is sent.
	UpdateNowPlaying(ctx context.Context, artist, track, album string) error

	// SignOut clears local credential state and cached session
	// artifacts. It never waits on outstanding requests.
	SignOut()

	// Status returns the current credential status.
	Status() Status
	// StatusChanges returns a channel receiving status transitions.
	StatusChanges() <-chan Status
}

// Revocable is the optional capability of services that can revoke
// their credential remotely. Queried by interface assertion, never by
// concrete type.
type Revocable interface {
	// Revoke invalidates the remote session, then clears local state.
	Revoke(ctx context.Context) error
}

// CredentialStore is the persistence collaborator for service
// credentials. Satisfied by *store.Store.
type CredentialStore interface {
	Get(ctx context.Context, service, key string) (string, error)
	Set(ctx context.Context, service, key, value string) error
	Delete(ctx context.Context, service string) error
}

// statusTracker is the shared status snapshot + change notification
// plumbing embedded by every service variant.
type statusTracker struct {
	mu      sync.Mutex
	status  Status
	changes chan Status
}

func newStatusTracker() statusTracker {
	return statusTracker{
		status:  Status{State: StateUnknown},
		changes: make(chan Status, 16),
	}
}

// setStatus records a transition and notifies the change channel
// without blocking; a slow consumer loses intermediate transitions but
// always observes the latest on the next read of Status.
func (t *statusTracker) setStatus(state State, detail string) {
	t.mu.Lock()
	t.status = Status{State: state, Detail: detail}
	status := t.status
	t.mu.Unlock()

	select {
	case t.changes <- status:
	default:
	}
}

// Status returns the current credential status.
func (t *statusTracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StatusChanges returns the status transition channel.
func (t *statusTracker) StatusChanges() <-chan Status {
	return t.changes
}
