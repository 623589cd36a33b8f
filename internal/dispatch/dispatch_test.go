package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etches/etches/internal/service"
)

// stubService is a scripted scrobble backend for dispatcher tests.
type stubService struct {
	id        string
	authed    bool
	delay     time.Duration
	err       error
	panicMsg  string
	scrobbles atomic.Int64
	nowPlays  atomic.Int64
}

func (s *stubService) ID() string            { return s.id }
func (s *stubService) Name() string          { return s.id }
func (s *stubService) IsAuthenticated() bool { return s.authed }

func (s *stubService) Authenticate(context.Context) error { return nil }
func (s *stubService) SignOut()                           {}

func (s *stubService) Status() service.Status {
	return service.Status{State: service.StateAuthenticated}
}
func (s *stubService) StatusChanges() <-chan service.Status { return nil }

func (s *stubService) Scrobble(ctx context.Context, artist, track, album string) error {
	s.scrobbles.Add(1)
	return s.run(ctx)
}

func (s *stubService) UpdateNowPlaying(ctx context.Context, artist, track, album string) error {
	s.nowPlays.Add(1)
	return s.run(ctx)
}

func (s *stubService) run(ctx context.Context) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.err
}

func TestDispatch_FanOutIsolation(t *testing.T) {
	okA := &stubService{id: "a", authed: true}
	failing := &stubService{id: "b", authed: true, err: errors.New("boom")}
	okC := &stubService{id: "c", authed: true}

	d := New(zerolog.Nop(), okA, failing, okC)
	outcome := d.Dispatch(context.Background(), Scrobble, "artist", "track", "album")

	assert.Equal(t, []string{"a", "c"}, outcome.Succeeded)
	assert.Equal(t, []string{"b"}, outcome.FailedIDs())
	assert.True(t, outcome.AnySucceeded())
	require.Error(t, outcome.Failed["b"])
}

func TestDispatch_PanicBecomesFailureEntry(t *testing.T) {
	ok := &stubService{id: "a", authed: true}
	panicky := &stubService{id: "b", authed: true, panicMsg: "kaboom"}

	d := New(zerolog.Nop(), ok, panicky)
	outcome := d.Dispatch(context.Background(), UpdateNowPlaying, "artist", "track", "album")

	assert.Equal(t, []string{"a"}, outcome.Succeeded)
	require.Contains(t, outcome.Failed, "b")
	assert.Contains(t, outcome.Failed["b"].Error(), "kaboom")
}

func TestDispatch_SkipsUnauthenticated(t *testing.T) {
	authed := &stubService{id: "a", authed: true}
	signedOut := &stubService{id: "b"}

	d := New(zerolog.Nop(), authed, signedOut)
	outcome := d.Dispatch(context.Background(), Scrobble, "artist", "track", "album")

	assert.Equal(t, []string{"a"}, outcome.Succeeded)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, int64(0), signedOut.scrobbles.Load())
}

func TestDispatch_ConcurrentNotSequential(t *testing.T) {
	// Three slow services: the whole dispatch should take about one
	// delay, not three.
	const delay = 100 * time.Millisecond
	services := []service.Service{
		&stubService{id: "a", authed: true, delay: delay},
		&stubService{id: "b", authed: true, delay: delay},
		&stubService{id: "c", authed: true, delay: delay},
	}

	d := New(zerolog.Nop(), services...)

	start := time.Now()
	outcome := d.Dispatch(context.Background(), Scrobble, "artist", "track", "album")
	elapsed := time.Since(start)

	assert.Len(t, outcome.Succeeded, 3)
	assert.Less(t, elapsed, 2*delay, "dispatch latency should be max of individual latencies, not their sum")
}

func TestDispatch_AllFail(t *testing.T) {
	d := New(zerolog.Nop(),
		&stubService{id: "a", authed: true, err: errors.New("x")},
		&stubService{id: "b", authed: true, err: errors.New("y")},
	)

	outcome := d.Dispatch(context.Background(), Scrobble, "artist", "track", "album")

	assert.False(t, outcome.AnySucceeded())
	assert.Equal(t, []string{"a", "b"}, outcome.FailedIDs())
}

func TestDispatch_EmptySet(t *testing.T) {
	d := New(zerolog.Nop())
	outcome := d.Dispatch(context.Background(), Scrobble, "artist", "track", "album")

	assert.Empty(t, outcome.Succeeded)
	assert.Empty(t, outcome.Failed)
}

func TestRegister(t *testing.T) {
	d := New(zerolog.Nop())
	d.Register(&stubService{id: "late", authed: true})

	outcome := d.Dispatch(context.Background(), UpdateNowPlaying, "artist", "track", "album")
	assert.Equal(t, []string{"late"}, outcome.Succeeded)
}
