package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCustomAPI implements the custom scrobble API: the token exchange
// sets a session cookie, and every /api call checks it.
type fakeCustomAPI struct {
	mu        sync.Mutex
	scrobbles []map[string]interface{}
	nowPlays  []map[string]interface{}
	server    *httptest.Server
	revoked   bool
}

const testSessionCookie = "etches-session-cookie"

func newFakeCustomAPI(t *testing.T) *fakeCustomAPI {
	t.Helper()
	api := &fakeCustomAPI{}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: testSessionCookie, Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"bearer"}`))
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		if !api.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"handle":"alice"}`))
	})
	mux.HandleFunc("/api/track.scrobble", func(w http.ResponseWriter, r *http.Request) {
		if !api.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.scrobbles = append(api.scrobbles, body)
		api.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/track.updateNowPlaying", func(w http.ResponseWriter, r *http.Request) {
		if !api.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.nowPlays = append(api.nowPlays, body)
		api.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.revoked = true
		api.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeCustomAPI) authed(r *http.Request) bool {
	c, err := r.Cookie("session")
	return err == nil && c.Value == testSessionCookie
}

func (a *fakeCustomAPI) recorded(kind string) []map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if kind == "scrobble" {
		return append([]map[string]interface{}(nil), a.scrobbles...)
	}
	return append([]map[string]interface{}(nil), a.nowPlays...)
}

func (a *fakeCustomAPI) wasRevoked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revoked
}

// redirectingBrowser simulates the user approving the OAuth page: it
// follows the redirect URI with a granted code.
type redirectingBrowser struct {
	t    *testing.T
	deny bool
}

func (b *redirectingBrowser) Open(authURL string) error {
	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	q := u.Query()
	redirect := q.Get("redirect_uri")
	state := q.Get("state")

	go func() {
		callback := redirect + "?state=" + url.QueryEscape(state)
		if !b.deny {
			callback += "&code=granted-code"
		}
		resp, err := http.Get(callback)
		if err != nil {
			b.t.Errorf("callback request failed: %v", err)
			return
		}
		_ = resp.Body.Close()
	}()
	return nil
}

func newOAuthService(t *testing.T, api *fakeCustomAPI, st CredentialStore, browser Browser) *OAuthCookieService {
	t.Helper()
	svc, err := NewOAuthCookieService(OAuthCookieConfig{
		BaseURL:      api.server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Browser:      browser,
		Store:        st,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func TestOAuthCookieService_AuthenticateAndScrobble(t *testing.T) {
	api := newFakeCustomAPI(t)
	st := newMemStore()
	svc := newOAuthService(t, api, st, &redirectingBrowser{t: t})

	require.NoError(t, svc.Authenticate(context.Background()))
	assert.True(t, svc.IsAuthenticated())
	assert.Equal(t, "alice", svc.Status().Detail)

	// Cookies and handle persisted keyed by the service.
	cookies, err := st.Get(context.Background(), "custom", "cookies")
	require.NoError(t, err)
	assert.Contains(t, cookies, "session="+testSessionCookie)
	handle, err := st.Get(context.Background(), "custom", "handle")
	require.NoError(t, err)
	assert.Equal(t, "alice", handle)

	require.NoError(t, svc.Scrobble(context.Background(), "Autechre", "Nine", "Amber"))
	scrobbles := api.recorded("scrobble")
	require.Len(t, scrobbles, 1)
	assert.Equal(t, "Autechre", scrobbles[0]["artist"])
	assert.Contains(t, scrobbles[0], "timestamp")

	require.NoError(t, svc.UpdateNowPlaying(context.Background(), "Autechre", "Nine", "Amber"))
	nowPlays := api.recorded("nowplaying")
	require.Len(t, nowPlays, 1)
	assert.NotContains(t, nowPlays[0], "timestamp")
}

func TestOAuthCookieService_AuthorizationDenied(t *testing.T) {
	api := newFakeCustomAPI(t)
	svc := newOAuthService(t, api, newMemStore(), &redirectingBrowser{t: t, deny: true})

	err := svc.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationCancelled)
	assert.Equal(t, StateFailed, svc.Status().State)
}

func TestOAuthCookieService_CancelledWhileWaiting(t *testing.T) {
	api := newFakeCustomAPI(t)
	// A browser that never completes the redirect.
	svc := newOAuthService(t, api, newMemStore(), browserFunc(func(string) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Authenticate(ctx)
	assert.ErrorIs(t, err, ErrAuthorizationCancelled)
	assert.Equal(t, "cancelled", svc.Status().Detail)
}

type browserFunc func(url string) error

func (f browserFunc) Open(url string) error { return f(url) }

func TestOAuthCookieService_RestoreValidCookies(t *testing.T) {
	api := newFakeCustomAPI(t)
	st := newMemStore()
	require.NoError(t, st.Set(context.Background(), "custom", "cookies", "session="+testSessionCookie))

	svc := newOAuthService(t, api, st, nil)
	require.NoError(t, svc.Restore(context.Background()))

	assert.True(t, svc.IsAuthenticated())
	assert.Equal(t, "alice", svc.Status().Detail)
}

func TestOAuthCookieService_FailingProbeClearsState(t *testing.T) {
	api := newFakeCustomAPI(t)
	st := newMemStore()
	require.NoError(t, st.Set(context.Background(), "custom", "cookies", "session=stale-cookie"))

	svc := newOAuthService(t, api, st, nil)
	require.NoError(t, svc.Restore(context.Background()))

	assert.False(t, svc.IsAuthenticated())
	assert.Equal(t, StateNeedsAuth, svc.Status().State)
	_, err := st.Get(context.Background(), "custom", "cookies")
	assert.Error(t, err, "stale cookies should be cleared")
}

func TestOAuthCookieService_SessionDroppedMidFlight(t *testing.T) {
	api := newFakeCustomAPI(t)
	st := newMemStore()
	require.NoError(t, st.Set(context.Background(), "custom", "cookies", "session="+testSessionCookie))

	svc := newOAuthService(t, api, st, nil)
	require.NoError(t, svc.Restore(context.Background()))
	require.True(t, svc.IsAuthenticated())

	// Remote invalidates the session; the next call degrades to
	// ErrNotAuthenticated instead of crashing.
	svc.loadCookies("session=stale-cookie")

	err := svc.Scrobble(context.Background(), "a", "t", "al")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StateNeedsAuth, svc.Status().State)
}

func TestOAuthCookieService_Revoke(t *testing.T) {
	api := newFakeCustomAPI(t)
	st := newMemStore()
	require.NoError(t, st.Set(context.Background(), "custom", "cookies", "session="+testSessionCookie))

	svc := newOAuthService(t, api, st, nil)
	require.NoError(t, svc.Restore(context.Background()))

	// The cookie variant is the one with a remote revoke capability.
	var asService Service = svc
	revocable, ok := asService.(Revocable)
	require.True(t, ok)

	require.NoError(t, revocable.Revoke(context.Background()))
	assert.True(t, api.wasRevoked())
	assert.False(t, svc.IsAuthenticated())
}
