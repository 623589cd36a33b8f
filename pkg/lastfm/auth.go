package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuthService provides authentication operations.
type AuthService struct {
	client *Client
}

// sessionEnvelope is the JSON success envelope shared by auth.getSession
// and auth.getMobileSession.
type sessionEnvelope struct {
	Session struct {
		Name       string `json:"name"`
		Key        string `json:"key"`
		Subscriber int    `json:"subscriber"`
	} `json:"session"`
}

// GetToken requests a one-time authentication token.
//
// This is the first step of the desktop authentication flow. After
// obtaining a token, the user must authorize it by visiting the URL
// returned by GetAuthURL, and the token can then be exchanged for a
// session key with GetSession.
func (a *AuthService) GetToken(ctx context.Context) (*Token, error) {
	body, err := a.client.call(ctx, "auth.getToken", nil, false, true)
	if err != nil {
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &DecodeError{Err: err, Body: body}
	}
	if token.Token == "" {
		return nil, &DecodeError{Err: fmt.Errorf("empty token in response"), Body: body}
	}

	return &token, nil
}

// GetAuthURL returns the URL where the user authorizes the token.
func (a *AuthService) GetAuthURL(token string) string {
	return "https://www.last.fm/api/auth/?api_key=" + a.client.apiKey + "&token=" + token
}

// GetSession exchanges an authorized token for a session key.
//
// Must be called only after the user has authorized the token at the
// URL from GetAuthURL. Exchanging an unauthorized or stale token fails
// with *Error (code 14 or 15).
func (a *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	body, err := a.client.call(ctx, "auth.getSession", map[string]string{"token": token}, false, true)
	if err != nil {
		return nil, err
	}
	return decodeSession(body)
}

// GetMobileSession exchanges account credentials directly for a session
// key. This is the legacy authentication path; the token flow via
// GetToken/GetSession is preferred.
func (a *AuthService) GetMobileSession(ctx context.Context, username, password string) (*Session, error) {
	params := map[string]string{
		"username": username,
		"password": password,
	}
	body, err := a.client.call(ctx, "auth.getMobileSession", params, false, true)
	if err != nil {
		return nil, err
	}
	return decodeSession(body)
}

// ValidateSession probes the remote API with a lightweight authenticated
// call to check that the configured session key is still valid. An
// invalid or expired key surfaces as *Error (code 9).
func (a *AuthService) ValidateSession(ctx context.Context) (*UserInfo, error) {
	body, err := a.client.call(ctx, "user.getInfo", nil, true, false)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		User struct {
			Name     string `json:"name"`
			RealName string `json:"realname"`
			URL      string `json:"url"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &DecodeError{Err: err, Body: body}
	}

	return &UserInfo{
		Name:     envelope.User.Name,
		RealName: envelope.User.RealName,
		URL:      envelope.User.URL,
	}, nil
}

func decodeSession(body []byte) (*Session, error) {
	var envelope sessionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &DecodeError{Err: err, Body: body}
	}
	if envelope.Session.Key == "" {
		return nil, &DecodeError{Err: fmt.Errorf("empty session key in response"), Body: body}
	}

	return &Session{
		Key:        envelope.Session.Key,
		Username:   envelope.Session.Name,
		Subscriber: envelope.Session.Subscriber == 1,
	}, nil
}
