// Package dispatch fans a single scrobble or now-playing event out to
// every enabled scrobble service concurrently and aggregates the
// per-service outcomes.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/etches/etches/internal/service"
)

// Operation selects which service call a dispatch performs.
type Operation int

const (
	Scrobble Operation = iota
	UpdateNowPlaying
)

// String returns a human-readable representation of the Operation.
func (o Operation) String() string {
	switch o {
	case Scrobble:
		return "scrobble"
	case UpdateNowPlaying:
		return "now-playing"
	default:
		return "unknown"
	}
}

// Outcome is the partitioned result of one fan-out dispatch. Transient;
// produced per call and not persisted here.
type Outcome struct {
	Succeeded []string         // service IDs that accepted the operation
	Failed    map[string]error // service ID -> error for the rest
}

// AnySucceeded reports whether at least one service accepted.
func (o Outcome) AnySucceeded() bool {
	return len(o.Succeeded) > 0
}

// FailedIDs returns the failed service IDs, sorted.
func (o Outcome) FailedIDs() []string {
	ids := make([]string, 0, len(o.Failed))
	for id := range o.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispatcher fans operations out to a set of scrobble services.
type Dispatcher struct {
	mu       sync.RWMutex
	services []service.Service
	logger   zerolog.Logger
}

// New creates a Dispatcher over the given services.
func New(logger zerolog.Logger, services ...service.Service) *Dispatcher {
	return &Dispatcher{
		services: services,
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// Register adds a service to the fan-out set.
func (d *Dispatcher) Register(s service.Service) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = append(d.services, s)
}

// Services returns the registered services.
func (d *Dispatcher) Services() []service.Service {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]service.Service, len(d.services))
	copy(out, d.services)
	return out
}

// Dispatch invokes op against every authenticated service concurrently
// and waits for all of them; there is no early exit. One service's
// error, or even panic, becomes a failure entry in the outcome and
// never reaches a sibling or the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation, artist, track, album string) Outcome {
	d.mu.RLock()
	services := make([]service.Service, len(d.services))
	copy(services, d.services)
	d.mu.RUnlock()

	type result struct {
		id  string
		err error
	}

	var wg sync.WaitGroup
	results := make(chan result, len(services))

	for _, svc := range services {
		if !svc.IsAuthenticated() {
			continue
		}

		wg.Add(1)
		go func(svc service.Service) {
			defer wg.Done()

			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic: %v", r)
					}
				}()
				switch op {
				case Scrobble:
					err = svc.Scrobble(ctx, artist, track, album)
				case UpdateNowPlaying:
					err = svc.UpdateNowPlaying(ctx, artist, track, album)
				}
			}()

			results <- result{id: svc.ID(), err: err}
		}(svc)
	}

	wg.Wait()
	close(results)

	outcome := Outcome{Failed: make(map[string]error)}
	for r := range results {
		if r.err != nil {
			d.logger.Warn().
				Err(r.err).
				Str("service", r.id).
				Str("op", op.String()).
				Str("artist", artist).
				Str("track", track).
				Msg("Dispatch failed")
			outcome.Failed[r.id] = r.err
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, r.id)
	}
	sort.Strings(outcome.Succeeded)

	return outcome
}
