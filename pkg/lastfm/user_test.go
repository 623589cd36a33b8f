package lastfm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserService_GetFriends(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("expected GET request for read method, got %s", r.Method)
		}
		q := r.URL.Query()
		if method := q.Get("method"); method != "user.getFriends" {
			t.Errorf("expected method user.getFriends, got %s", method)
		}
		if user := q.Get("user"); user != "alice" {
			t.Errorf("expected user alice, got %s", user)
		}
		if page := q.Get("page"); page != "2" {
			t.Errorf("expected page 2, got %s", page)
		}
		if limit := q.Get("limit"); limit != "10" {
			t.Errorf("expected limit 10, got %s", limit)
		}
		if sk := q.Get("sk"); sk != "sk-1" {
			t.Errorf("expected sk sk-1, got %s", sk)
		}

		_, _ = w.Write([]byte(`{"friends":{"user":[
			{"name":"bob","realname":"Bob","url":"https://last.fm/user/bob",
			 "image":[{"size":"small","#text":"s.png"},{"size":"medium","#text":"m.png"}]},
			{"name":"carol","realname":"","url":"https://last.fm/user/carol","image":[]}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "sk-1")

	friends, err := client.User().GetFriends(context.Background(), "alice", 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(friends) != 2 {
		t.Fatalf("expected 2 friends, got %d", len(friends))
	}
	if friends[0].Name != "bob" {
		t.Errorf("expected first friend bob, got %s", friends[0].Name)
	}
	if friends[0].ImageURL != "m.png" {
		t.Errorf("expected medium image m.png, got %s", friends[0].ImageURL)
	}
}

func TestUserService_GetRecentTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if method := q.Get("method"); method != "user.getRecentTracks" {
			t.Errorf("expected method user.getRecentTracks, got %s", method)
		}
		// Public read: no session key attached.
		if sk := q.Get("sk"); sk != "" {
			t.Errorf("expected no sk on public call, got %s", sk)
		}
		if sig := q.Get("api_sig"); sig == "" {
			t.Error("expected api_sig even on public call")
		}

		_, _ = w.Write([]byte(`{"recenttracks":{"track":[
			{"artist":{"#text":"Boards of Canada"},"album":{"#text":"Geogaddi"},
			 "name":"1969","url":"u1","@attr":{"nowplaying":"true"}},
			{"artist":{"#text":"Autechre"},"album":{"#text":"Amber"},
			 "name":"Nine","url":"u2","date":{"uts":"1700000000"}}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")

	tracks, err := client.User().GetRecentTracks(context.Background(), "bob", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}

	if !tracks[0].NowPlaying {
		t.Error("expected head entry to be flagged now playing")
	}
	if !tracks[0].PlayedAt.IsZero() {
		t.Error("expected now-playing entry to carry no timestamp")
	}

	if tracks[1].NowPlaying {
		t.Error("expected second entry not to be now playing")
	}
	if tracks[1].PlayedAt.Unix() != 1700000000 {
		t.Errorf("expected played-at 1700000000, got %d", tracks[1].PlayedAt.Unix())
	}
}

func TestUserService_GetRecentTracks_RequiresUser(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0", "")
	if _, err := client.User().GetRecentTracks(context.Background(), "", 0, 0); err == nil {
		t.Fatal("expected error for empty user")
	}
}
