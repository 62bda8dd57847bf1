package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// AjaxHeader marks a request as an in-app call so the server can
// distinguish it from a page navigation.
const AjaxHeader = "X-Requested-With"

// AjaxHeaderValue is the conventional marker value
const AjaxHeaderValue = "XMLHttpRequest"

// maxBodyBytes caps decoded response bodies
const maxBodyBytes = 1 << 20

// NewJSONRequest builds a credentialed JSON request with the ajax marker.
// A nil body produces a bodyless request; otherwise the body is encoded
// and GetBody is populated so the request can be replayed.
func NewJSONRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(AjaxHeader, AjaxHeaderValue)
	return req, nil
}

// DecodeJSON decodes a JSON response body into out, draining and closing
// the body so the underlying connection is reusable.
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// DrainBody discards and closes a response body
func DrainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
