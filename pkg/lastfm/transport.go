package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// apiErrorEnvelope is the JSON error envelope returned on failure.
type apiErrorEnvelope struct {
	Error   *int   `json:"error"`
	Message string `json:"message"`
}

// call makes an HTTP request to the API.
//
// Parameters are signed per Sign before "api_sig" and "format" are
// appended. Mutating methods are sent as an application/x-www-form-urlencoded
// POST body; read methods as a GET query string. That split is part of
// the remote API's contract, not a transport choice.
//
// The body is checked for the structured error envelope first; an
// envelope with an error code fails the call with *Error. The raw body
// is returned otherwise and decoding of the success envelope is left to
// the calling method.
//
// No retries happen here. Transport failures surface as *NetworkError
// and the caller owns any retry policy.
func (c *Client) call(ctx context.Context, method string, params map[string]string, requiresAuth, write bool) ([]byte, error) {
	reqParams := make(map[string]string, len(params)+3)
	for k, v := range params {
		reqParams[k] = v
	}
	reqParams["method"] = method
	reqParams["api_key"] = c.apiKey

	if requiresAuth {
		if c.sessionKey == "" {
			return nil, ErrNoSessionKey
		}
		reqParams["sk"] = c.sessionKey
	}

	// Signature covers everything sent so far, never format or api_sig.
	signature := Sign(reqParams, c.apiSecret)

	values := url.Values{}
	for k, v := range reqParams {
		values.Add(k, v)
	}
	values.Add("api_sig", signature)
	values.Add("format", "json")

	var req *http.Request
	var err error
	if write {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(values.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
	}
	req.Header.Set("User-Agent", "etches/1.0")

	c.logDebugf("lastfm: calling %s", method)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	// The API reports its own failures inside 2xx bodies, so check the
	// envelope before the transport status.
	var envelope apiErrorEnvelope
	if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && envelope.Error != nil {
		return nil, &Error{Code: *envelope.Error, Message: envelope.Message}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Err: fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, resp.Status)}
	}

	c.logDebugf("lastfm: %s succeeded", method)
	return body, nil
}
