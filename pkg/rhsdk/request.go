package rhsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// RequestOption adjusts a single Get or Post.
type RequestOption func(*requestOptions)

type requestOptions struct {
	header      http.Header
	raiseErrors bool
	autoLogin   bool
}

func newRequestOptions(opts []RequestOption) requestOptions {
	o := requestOptions{
		header:      http.Header{},
		raiseErrors: true,
		autoLogin:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHeader adds or overrides one header on top of the session defaults.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.header.Set(key, value) }
}

// WithHeaders adds or overrides headers on top of the session defaults.
func WithHeaders(h http.Header) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range h {
			o.header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
}

// WithRaiseErrors controls whether a non-2xx response is returned as an
// *HTTPError (default: true).
func WithRaiseErrors(raise bool) RequestOption {
	return func(o *requestOptions) { o.raiseErrors = raise }
}

// WithAutoLogin controls whether the request logs in first when there is no
// credential and renews the credential once on a 401 (default: true).
func WithAutoLogin(autoLogin bool) RequestOption {
	return func(o *requestOptions) { o.autoLogin = autoLogin }
}

// Get issues an authorized GET with params as the query string.
func (m *SessionManager) Get(ctx context.Context, rawURL string, params url.Values, opts ...RequestOption) (*Response, error) {
	return m.request(ctx, call{method: http.MethodGet, url: rawURL, params: params}, opts)
}

// Post issues an authorized form POST with data as the body.
func (m *SessionManager) Post(ctx context.Context, rawURL string, data url.Values, opts ...RequestOption) (*Response, error) {
	if data == nil {
		data = url.Values{}
	}
	return m.request(ctx, call{method: http.MethodPost, url: rawURL, form: data}, opts)
}

// request sends c, renewing the credential and resending at most once when
// the provider answers 401. A second 401 is returned to the caller.
func (m *SessionManager) request(ctx context.Context, c call, opts []RequestOption) (*Response, error) {
	o := newRequestOptions(opts)
	c.header = o.header

	if o.autoLogin && !m.transport.hasAuthorization() {
		if err := m.Login(ctx); err != nil {
			return nil, err
		}
	}

	sentAuth := m.transport.authorization()
	resp, err := m.transport.do(ctx, c)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && o.autoLogin {
		if err := m.relogin(ctx, sentAuth); err != nil {
			return nil, err
		}

		resp, err = m.transport.do(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	if o.raiseErrors && !resp.OK() {
		return resp, &HTTPError{
			Method:     c.method,
			URL:        m.transport.url(c.url),
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}

	return resp, nil
}

// JSON decodes the body into a generic object. An empty body yields an
// empty map instead of a decode error.
func (r *Response) JSON() (map[string]any, error) {
	out := map[string]any{}
	if len(r.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// Decode unmarshals the body into target. An empty body leaves target untouched.
func (r *Response) Decode(target any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetJSON issues a Get and decodes the body into a T.
func GetJSON[T any](ctx context.Context, m *SessionManager, rawURL string, params url.Values, opts ...RequestOption) (T, error) {
	var out T
	resp, err := m.Get(ctx, rawURL, params, opts...)
	if err != nil {
		return out, err
	}
	err = resp.Decode(&out)
	return out, err
}

// PostJSON issues a Post and decodes the body into a T.
func PostJSON[T any](ctx context.Context, m *SessionManager, rawURL string, data url.Values, opts ...RequestOption) (T, error) {
	var out T
	resp, err := m.Post(ctx, rawURL, data, opts...)
	if err != nil {
		return out, err
	}
	err = resp.Decode(&out)
	return out, err
}
