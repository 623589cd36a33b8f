package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, baseURL, sessionKey string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:     "test-api-key",
		APISecret:  "test-secret",
		SessionKey: sessionKey,
		BaseURL:    baseURL,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestAuthService_GetToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST request, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if method := r.FormValue("method"); method != "auth.getToken" {
			t.Errorf("expected method auth.getToken, got %s", method)
		}
		if format := r.FormValue("format"); format != "json" {
			t.Errorf("expected format json, got %s", format)
		}
		// api_sig must cover method+api_key but never format or api_sig.
		wantSig := Sign(map[string]string{
			"method":  "auth.getToken",
			"api_key": "test-api-key",
		}, "test-secret")
		if sig := r.FormValue("api_sig"); sig != wantSig {
			t.Errorf("expected api_sig %s, got %s", wantSig, sig)
		}

		_, _ = w.Write([]byte(`{"token":"one-time-token"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")

	token, err := client.Auth().GetToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.Token != "one-time-token" {
		t.Errorf("expected token one-time-token, got %s", token.Token)
	}
}

func TestAuthService_GetSession(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		wantErr     bool
		wantCode    int
		errContains string
	}{
		{
			name:     "success",
			response: `{"session":{"name":"alice","key":"session-key-1","subscriber":0}}`,
		},
		{
			name:        "unauthorized token",
			response:    `{"error":14,"message":"This token has not been authorized"}`,
			wantErr:     true,
			wantCode:    ErrCodeUnauthorizedToken,
			errContains: "error 14",
		},
		{
			name:        "expired token",
			response:    `{"error":15,"message":"This token has expired"}`,
			wantErr:     true,
			wantCode:    ErrCodeExpiredToken,
			errContains: "error 15",
		},
		{
			name:        "garbage body",
			response:    `<html>not json</html>`,
			wantErr:     true,
			errContains: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseForm(); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}
				if method := r.FormValue("method"); method != "auth.getSession" {
					t.Errorf("expected method auth.getSession, got %s", method)
				}
				if tok := r.FormValue("token"); tok != "tok" {
					t.Errorf("expected token tok, got %s", tok)
				}
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, "")

			session, err := client.Auth().GetSession(context.Background(), "tok")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantCode != 0 {
					var apiErr *Error
					if !errors.As(err, &apiErr) {
						t.Fatalf("expected *Error, got %T", err)
					}
					if apiErr.Code != tt.wantCode {
						t.Errorf("expected code %d, got %d", tt.wantCode, apiErr.Code)
					}
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error to contain %q, got %v", tt.errContains, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if session.Key != "session-key-1" {
				t.Errorf("expected session key session-key-1, got %s", session.Key)
			}
			if session.Username != "alice" {
				t.Errorf("expected username alice, got %s", session.Username)
			}
		})
	}
}

func TestAuthService_GetMobileSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if method := r.FormValue("method"); method != "auth.getMobileSession" {
			t.Errorf("expected method auth.getMobileSession, got %s", method)
		}
		if user := r.FormValue("username"); user != "alice" {
			t.Errorf("expected username alice, got %s", user)
		}
		if pass := r.FormValue("password"); pass != "hunter2" {
			t.Errorf("expected password hunter2, got %s", pass)
		}
		_, _ = w.Write([]byte(`{"session":{"name":"alice","key":"mobile-key","subscriber":1}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "")

	session, err := client.Auth().GetMobileSession(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Key != "mobile-key" {
		t.Errorf("expected session key mobile-key, got %s", session.Key)
	}
	if !session.Subscriber {
		t.Error("expected subscriber true")
	}
}

func TestAuthService_ValidateSession(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "GET" {
				t.Errorf("expected GET request for read method, got %s", r.Method)
			}
			q := r.URL.Query()
			if method := q.Get("method"); method != "user.getInfo" {
				t.Errorf("expected method user.getInfo, got %s", method)
			}
			if sk := q.Get("sk"); sk != "sk-1" {
				t.Errorf("expected sk sk-1, got %s", sk)
			}
			_, _ = w.Write([]byte(`{"user":{"name":"alice","realname":"Alice","url":"https://last.fm/user/alice"}}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, "sk-1")

		info, err := client.Auth().ValidateSession(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Name != "alice" {
			t.Errorf("expected name alice, got %s", info.Name)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":9,"message":"Invalid session key - Please re-authenticate"}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, "stale")

		_, err := client.Auth().ValidateSession(context.Background())
		apiErr, ok := IsRemote(err)
		if !ok {
			t.Fatalf("expected remote API error, got %v", err)
		}
		if apiErr.Code != ErrCodeInvalidSessionKey {
			t.Errorf("expected code 9, got %d", apiErr.Code)
		}
	})

	t.Run("no session key", func(t *testing.T) {
		client := newTestClient(t, "http://127.0.0.1:0", "")
		_, err := client.Auth().ValidateSession(context.Background())
		if !errors.Is(err, ErrNoSessionKey) {
			t.Errorf("expected ErrNoSessionKey, got %v", err)
		}
	})
}
