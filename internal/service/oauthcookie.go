package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	credKeyCookies = "cookies"
	credKeyHandle  = "handle"
	credKeyToken   = "oauth_token"
)

// Browser opens a URL in the user's browser. Injected so tests and the
// daemon can substitute their own navigation surface.
type Browser interface {
	Open(url string) error
}

// OAuthCookieConfig holds OAuthCookieService configuration.
type OAuthCookieConfig struct {
	ID           string // service identifier, defaults to "custom"
	Name         string // human-readable name
	BaseURL      string // API base, e.g. https://scrobble.example.com
	ClientID     string
	ClientSecret string
	CallbackAddr string // listen address for the OAuth redirect, defaults to 127.0.0.1:0
	Browser      Browser
	Store        CredentialStore
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// OAuthCookieService is the cookie-session service variant: it
// authenticates through a browser-based OAuth handshake and attaches
// the captured session cookies to every API call.
type OAuthCookieService struct {
	statusTracker

	id           string
	name         string
	baseURL      string
	oauthCfg     *oauth2.Config
	callbackAddr string
	httpClient   *http.Client
	jar          *cookiejar.Jar
	store        CredentialStore
	browser      Browser
	logger       zerolog.Logger
}

// NewOAuthCookieService creates an OAuthCookieService for the custom
// scrobble API at cfg.BaseURL.
func NewOAuthCookieService(cfg OAuthCookieConfig) (*OAuthCookieService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("service: BaseURL is required")
	}

	id := cfg.ID
	if id == "" {
		id = "custom"
	}
	name := cfg.Name
	if name == "" {
		name = "Custom"
	}
	callbackAddr := cfg.CallbackAddr
	if callbackAddr == "" {
		callbackAddr = "127.0.0.1:0"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// Session cookies ride on every request through the jar.
	httpClient.Jar = jar

	base := strings.TrimRight(cfg.BaseURL, "/")
	return &OAuthCookieService{
		statusTracker: newStatusTracker(),
		id:            id,
		name:          name,
		baseURL:       base,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/oauth/authorize",
				TokenURL: base + "/oauth/token",
			},
		},
		callbackAddr: callbackAddr,
		httpClient:   httpClient,
		jar:          jar,
		store:        cfg.Store,
		browser:      cfg.Browser,
		logger:       cfg.Logger.With().Str("component", "service").Str("service", id).Logger(),
	}, nil
}

// ID returns the service identifier.
func (s *OAuthCookieService) ID() string { return s.id }

// Name returns the human-readable service name.
func (s *OAuthCookieService) Name() string { return s.name }

// IsAuthenticated reports the last known credential state without I/O.
func (s *OAuthCookieService) IsAuthenticated() bool {
	return s.Status().State == StateAuthenticated
}

// Restore rehydrates persisted cookies and validates them with a
// lightweight authenticated probe. A failing probe clears local state.
func (s *OAuthCookieService) Restore(ctx context.Context) error {
	cookies, err := s.store.Get(ctx, s.id, credKeyCookies)
	if err != nil || cookies == "" {
		s.setStatus(StateNeedsAuth, "")
		return nil
	}

	s.loadCookies(cookies)
	return s.Probe(ctx)
}

// Probe revalidates the session with a lightweight authenticated call.
// A rejected probe clears local state and reverts to StateNeedsAuth.
func (s *OAuthCookieService) Probe(ctx context.Context) error {
	handle, err := s.fetchHandle(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			s.logger.Info().Msg("Session probe rejected, clearing cookies")
			s.clearLocal()
			return nil
		}
		s.logger.Warn().Err(err).Msg("Session probe failed")
		return err
	}

	s.setStatus(StateAuthenticated, handle)
	return nil
}

// callbackResult carries the OAuth redirect parameters off the local
// listener.
type callbackResult struct {
	code  string
	state string
}

// Authenticate drives the browser OAuth handshake: a local listener
// receives the redirect, the authorization code is exchanged for the
// session, and the cookies set during the exchange are persisted keyed
// by the account handle. Idempotent when already authenticated.
func (s *OAuthCookieService) Authenticate(ctx context.Context) error {
	if s.IsAuthenticated() {
		return nil
	}

	s.setStatus(StateAuthenticating, "")

	listener, err := net.Listen("tcp", s.callbackAddr)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to start callback listener: %w", err)
	}

	redirectURL := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	cfg := *s.oauthCfg
	cfg.RedirectURL = redirectURL

	state, err := randomState()
	if err != nil {
		_ = listener.Close()
		s.setStatus(StateFailed, err.Error())
		return err
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authorization complete</h1><p>You can close this window.</p></body></html>")
		select {
		case results <- callbackResult{code: r.URL.Query().Get("code"), state: r.URL.Query().Get("state")}:
		default:
		}
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = server.Serve(listener) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state)
	if err := s.browser.Open(authURL); err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to open authorization page: %w", err)
	}

	var result callbackResult
	select {
	case <-ctx.Done():
		// Caller cancelled while waiting on the redirect.
		s.setStatus(StateFailed, "cancelled")
		return ErrAuthorizationCancelled
	case result = <-results:
	}

	if result.state != state {
		s.setStatus(StateFailed, "state mismatch")
		return fmt.Errorf("oauth state mismatch")
	}
	if result.code == "" {
		s.setStatus(StateFailed, "authorization denied")
		return ErrAuthorizationCancelled
	}

	// Bind the exchange to our cookie-jar client so the session cookies
	// set by the token endpoint are captured.
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := cfg.Exchange(exchangeCtx, result.code)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	handle, err := s.fetchHandle(ctx)
	if err != nil {
		s.setStatus(StateFailed, err.Error())
		return fmt.Errorf("failed to resolve account handle: %w", err)
	}

	s.persist(ctx, token, handle)
	s.logger.Info().Str("handle", handle).Msg("Authenticated")
	s.setStatus(StateAuthenticated, handle)
	return nil
}

// Scrobble submits a play record to the custom API, timestamped at call
// time.
func (s *OAuthCookieService) Scrobble(ctx context.Context, artist, track, album string) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return s.postJSON(ctx, "/api/track.scrobble", map[string]interface{}{
		"artist":    artist,
		"track":     track,
		"album":     album,
		"timestamp": time.Now().Unix(),
	})
}

// UpdateNowPlaying submits a transient now-playing status to the custom
// API. No timestamp is sent.
func (s *OAuthCookieService) UpdateNowPlaying(ctx context.Context, artist, track, album string) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return s.postJSON(ctx, "/api/track.updateNowPlaying", map[string]interface{}{
		"artist": artist,
		"track":  track,
		"album":  album,
	})
}

// SignOut clears the local cookies and persisted credentials without
// any remote call. In-flight requests carrying the stale cookies may
// still complete; their rejections surface as ErrNotAuthenticated.
func (s *OAuthCookieService) SignOut() {
	s.clearLocal()
}

// Revoke invalidates the remote session before clearing local state.
// OAuthCookieService is the only variant with a remote revoke endpoint.
func (s *OAuthCookieService) Revoke(ctx context.Context) error {
	err := s.postJSON(ctx, "/api/logout", nil)
	s.clearLocal()
	return err
}

func (s *OAuthCookieService) clearLocal() {
	// A fresh jar drops every cached session cookie.
	if jar, err := cookiejar.New(nil); err == nil {
		s.jar = jar
		s.httpClient.Jar = jar
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, s.id); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear persisted credentials")
	}
	s.setStatus(StateNeedsAuth, "")
}

// fetchHandle asks the API who the session belongs to.
func (s *OAuthCookieService) fetchHandle(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/me", nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	var body struct {
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode probe response: %w", err)
	}
	return body.Handle, nil
}

func (s *OAuthCookieService) postJSON(ctx context.Context, path string, payload interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// The remote dropped our session; fall back to needing auth.
		s.clearLocal()
		return ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request to %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (s *OAuthCookieService) persist(ctx context.Context, token *oauth2.Token, handle string) {
	if handle != "" {
		if err := s.store.Set(ctx, s.id, credKeyHandle, handle); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist handle")
		}
	}

	if cookies := s.serializeCookies(); cookies != "" {
		if err := s.store.Set(ctx, s.id, credKeyCookies, cookies); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist cookies")
		}
	}

	if token != nil {
		if data, err := json.Marshal(token); err == nil {
			if err := s.store.Set(ctx, s.id, credKeyToken, string(data)); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to persist token")
			}
		}
	}
}

func (s *OAuthCookieService) serializeCookies() string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}

	cookies := s.jar.Cookies(u)
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

func (s *OAuthCookieService) loadCookies(serialized string) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return
	}

	var cookies []*http.Cookie
	for _, pair := range strings.Split(serialized, "; ") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	s.jar.SetCookies(u, cookies)
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
