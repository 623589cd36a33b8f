package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/etches/etches/pkg/lastfm"
)

const (
	// DefaultSettleDelay is the pause between user confirmation and the
	// token exchange. The remote API needs the authorization to
	// propagate before auth.getSession succeeds.
	DefaultSettleDelay = 3 * time.Second

	credKeySessionKey = "session_key"
	credKeyUsername   = "username"
)

// Authorizer is the user-facing authorization surface for the
// challenge/response handshake. An implementation presents the URL to
// the user and blocks until the user confirms or cancels.
type Authorizer interface {
	// Authorize returns true when the user confirmed, false when the
	// user cancelled. An error aborts the handshake.
	Authorize(ctx context.Context, authURL string) (bool, error)
}

// SessionKeyConfig holds SessionKeyService configuration.
type SessionKeyConfig struct {
	ID          string        // service identifier, defaults to "lastfm"
	Name        string        // human-readable name
	SettleDelay time.Duration // 0 means DefaultSettleDelay
	Authorizer  Authorizer
	Store       CredentialStore
	Logger      zerolog.Logger
}

// SessionKeyService is the challenge/response service variant: it
// authenticates by exchanging a one-time token, authorized by the user
// out of band, for a long-lived session key.
type SessionKeyService struct {
	statusTracker

	id          string
	name        string
	client      *lastfm.Client
	store       CredentialStore
	authorizer  Authorizer
	settleDelay time.Duration
	logger      zerolog.Logger
}

// NewSessionKeyService creates a SessionKeyService over the given API
// client. The credential starts in StateUnknown until Restore runs.
func NewSessionKeyService(client *lastfm.Client, cfg SessionKeyConfig) *SessionKeyService {
	id := cfg.ID
	if id == "" {
		id = "lastfm"
	}
	name := cfg.Name
	if name == "" {
		name = "Last.fm"
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	return &SessionKeyService{
		statusTracker: newStatusTracker(),
		id:            id,
		name:          name,
		client:        client,
		store:         cfg.Store,
		authorizer:    cfg.Authorizer,
		settleDelay:   settle,
		logger:        cfg.Logger.With().Str("component", "service").Str("service", id).Logger(),
	}
}

// ID returns the service identifier.
func (s *SessionKeyService) ID() string { return s.id }

// Name returns the human-readable service name.
func (s *SessionKeyService) Name() string { return s.name }

// IsAuthenticated reports whether a validated session key is loaded.
// Never triggers network I/O.
func (s *SessionKeyService) IsAuthenticated() bool {
	return s.Status().State == StateAuthenticated
}

// Restore rehydrates the persisted session key and validates it against
// the remote API. An invalid or expired key is cleared and the service
// lands in StateNeedsAuth.
func (s *SessionKeyService) Restore(ctx context.Context) error {
	key, err := s.store.Get(ctx, s.id, credKeySessionKey)
	if err != nil || key == "" {
		s.setStatus(StateNeedsAuth, "")
		return nil
	}

	s.client.SetSessionKey(key)

	info, err := s.client.Auth().ValidateSession(ctx)
	if err != nil {
		if _, remote := lastfm.IsRemote(err); remote {
			// Stale credential: clear it and start over.
			s.logger.Info().Err(err).Msg("Persisted session key rejected, clearing")
			s.client.SetSessionKey("")
			_ = s.store.Delete(ctx, s.id)
			s.setStatus(StateNeedsAuth, "")
			return nil
		}
		// Transport trouble: keep the credential, stay unknown so a
		// later probe can settle it.
		s.logger.Warn().Err(err).Msg("Could not validate persisted session key")
		return err
	}

	s.logger.Info().Str("user", info.Name).Msg("Session restored")
	s.setStatus(StateAuthenticated, info.Name)
	return nil
}

// Authenticate drives the token handshake to a terminal state.
// Returns immediately when already authenticated.
func (s *SessionKeyService) Authenticate(ctx context.Context) error {
	if s.IsAuthenticated() {
		return nil
	}

	s.setStatus(StateTokenRequested, "")
	token, err := s.client.Auth().GetToken(ctx)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to get auth token: %w", err)
	}

	authURL := s.client.Auth().GetAuthURL(token.Token)
	s.setStatus(StateAwaitingAuthorization, authURL)

	confirmed, err := s.authorizer.Authorize(ctx, authURL)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("authorization failed: %w", err)
	}
	if !confirmed {
		// User cancelled: terminal, and no network call is made.
		s.setStatus(StateFailed, "cancelled")
		return ErrAuthorizationCancelled
	}

	// The remote needs a moment for the authorization to propagate
	// before the token exchange succeeds.
	if !sleep(ctx, s.settleDelay) {
		s.setStatus(StateFailed, ctx.Err().Error())
		return ctx.Err()
	}

	s.setStatus(StateSessionRequested, "")
	session, err := s.client.Auth().GetSession(ctx, token.Token)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to exchange token for session: %w", err)
	}

	return s.adoptSession(ctx, session)
}

// AuthenticateDirect exchanges account credentials directly for a
// session key. Legacy alternate strategy to the token handshake.
func (s *SessionKeyService) AuthenticateDirect(ctx context.Context, username, password string) error {
	if s.IsAuthenticated() {
		return nil
	}

	s.setStatus(StateSessionRequested, "")
	session, err := s.client.Auth().GetMobileSession(ctx, username, password)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to get mobile session: %w", err)
	}

	return s.adoptSession(ctx, session)
}

func (s *SessionKeyService) adoptSession(ctx context.Context, session *lastfm.Session) error {
	s.client.SetSessionKey(session.Key)

	if err := s.store.Set(ctx, s.id, credKeySessionKey, session.Key); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist session key")
	}
	if session.Username != "" {
		if err := s.store.Set(ctx, s.id, credKeyUsername, session.Username); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist username")
		}
	}

	s.logger.Info().Str("user", session.Username).Msg("Authenticated")
	s.setStatus(StateAuthenticated, session.Username)
	return nil
}

// Username returns the persisted account name, if known.
func (s *SessionKeyService) Username(ctx context.Context) string {
	name, err := s.store.Get(ctx, s.id, credKeyUsername)
	if err != nil {
		return ""
	}
	return name
}

// Scrobble submits a play record timestamped at call time. The remote
// acceptance counter must equal 1; an ignored submission reports
// ErrNotAccepted.
func (s *SessionKeyService) Scrobble(ctx context.Context, artist, track, album string) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	resp, err := s.client.Scrobble().Scrobble(ctx, lastfm.Track{
		Artist: artist,
		Track:  track,
		Album:  album,
	}, time.Now())
	if err != nil {
		return err
	}

	if resp.Accepted != 1 {
		if resp.IgnoredMessage != "" {
			return fmt.Errorf("%w: %s", ErrNotAccepted, resp.IgnoredMessage)
		}
		return ErrNotAccepted
	}
	return nil
}

// UpdateNowPlaying submits a transient now-playing status. Any
// non-error response is success; the remote does not echo acceptance
// for this call.
func (s *SessionKeyService) UpdateNowPlaying(ctx context.Context, artist, track, album string) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	return s.client.Scrobble().UpdateNowPlaying(ctx, lastfm.Track{
		Artist: artist,
		Track:  track,
		Album:  album,
	})
}

// SignOut clears the local session key and persisted credentials.
// Outstanding requests carrying the stale key may still complete; their
// failures surface as ErrNotAuthenticated or remote errors.
func (s *SessionKeyService) SignOut() {
	s.client.SetSessionKey("")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, s.id); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear persisted credentials")
	}
	s.setStatus(StateNeedsAuth, "")
}

// sleep waits for the duration or until the context is cancelled.
// Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
