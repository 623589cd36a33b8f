package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestScrobbleService_UpdateNowPlaying(t *testing.T) {
	tests := []struct {
		name     string
		response string
		track    Track
		wantErr  bool
	}{
		{
			name:     "success",
			response: `{"nowplaying":{"artist":{"#text":"The Beatles"},"track":{"#text":"Yesterday"}}}`,
			track:    Track{Artist: "The Beatles", Track: "Yesterday", Album: "Help!"},
		},
		{
			name: "non-decodable 2xx body is still success",
			// Fire-and-forget call: the API does not echo acceptance,
			// so any non-error 2xx counts.
			response: `ok`,
			track:    Track{Artist: "The Beatles", Track: "Yesterday"},
		},
		{
			name:     "api error",
			response: `{"error":9,"message":"Invalid session key"}`,
			track:    Track{Artist: "The Beatles", Track: "Yesterday"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != "POST" {
					t.Errorf("expected POST request, got %s", r.Method)
				}
				if err := r.ParseForm(); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}
				if method := r.FormValue("method"); method != "track.updateNowPlaying" {
					t.Errorf("expected method track.updateNowPlaying, got %s", method)
				}
				if artist := r.FormValue("artist"); artist != tt.track.Artist {
					t.Errorf("expected artist %s, got %s", tt.track.Artist, artist)
				}
				if ts := r.FormValue("timestamp"); ts != "" {
					t.Errorf("updateNowPlaying must not carry a timestamp, got %s", ts)
				}
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, "test-session-key")

			err := client.Scrobble().UpdateNowPlaying(context.Background(), tt.track)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestScrobbleService_Scrobble(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if method := r.FormValue("method"); method != "track.scrobble" {
			t.Errorf("expected method track.scrobble, got %s", method)
		}
		if artist := r.FormValue("artist"); artist != "The Beatles" {
			t.Errorf("expected artist The Beatles, got %s", artist)
		}
		if timestamp := r.FormValue("timestamp"); timestamp == "" {
			t.Error("expected timestamp to be present")
		}
		_, _ = w.Write([]byte(`{"scrobbles":{"@attr":{"accepted":1,"ignored":0},"scrobble":{"artist":{"#text":"The Beatles"}}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "test-session-key")

	resp, err := client.Scrobble().Scrobble(context.Background(), Track{
		Artist: "The Beatles",
		Track:  "Yesterday",
		Album:  "Help!",
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted != 1 {
		t.Errorf("expected accepted 1, got %d", resp.Accepted)
	}
	if resp.Ignored != 0 {
		t.Errorf("expected ignored 0, got %d", resp.Ignored)
	}
}

func TestScrobbleService_Scrobble_Ignored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"scrobbles":{"@attr":{"accepted":0,"ignored":1},"scrobble":{"ignoredMessage":{"code":"1","#text":"Artist was ignored"}}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "test-session-key")

	resp, err := client.Scrobble().Scrobble(context.Background(), Track{Artist: "x", Track: "y"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted != 0 {
		t.Errorf("expected accepted 0, got %d", resp.Accepted)
	}
	if resp.IgnoredMessage != "Artist was ignored" {
		t.Errorf("unexpected ignored message: %q", resp.IgnoredMessage)
	}
}

func TestScrobbleService_RequiresSession(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0", "")

	if err := client.Scrobble().UpdateNowPlaying(context.Background(), Track{Artist: "a", Track: "t"}); !errors.Is(err, ErrNoSessionKey) {
		t.Errorf("expected ErrNoSessionKey, got %v", err)
	}
	if _, err := client.Scrobble().Scrobble(context.Background(), Track{Artist: "a", Track: "t"}, time.Now()); !errors.Is(err, ErrNoSessionKey) {
		t.Errorf("expected ErrNoSessionKey, got %v", err)
	}
}

func TestCall_NetworkErrorClassification(t *testing.T) {
	// Point at a closed port so the dial fails.
	client := newTestClient(t, "http://127.0.0.1:1", "sk")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Scrobble().UpdateNowPlaying(ctx, Track{Artist: "a", Track: "t"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsNetwork(err) {
		t.Errorf("expected network error classification, got %T: %v", err, err)
	}
}
