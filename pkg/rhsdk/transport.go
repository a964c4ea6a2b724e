package rhsdk

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// transport issues requests through a shared client with a set of default
// headers. The Authorization header lives in those defaults so every request
// made after a login carries the new token.
type transport struct {
	client  *http.Client
	baseURL string

	mu      sync.RWMutex
	headers http.Header
}

// newTransport copies headers under canonical keys so a per-call header
// always replaces the default of the same name.
func newTransport(client *http.Client, baseURL string, headers http.Header) *transport {
	h := make(http.Header, len(headers))
	for k, vs := range headers {
		key := http.CanonicalHeaderKey(k)
		h[key] = append(h[key], vs...)
	}
	return &transport{
		client:  client,
		baseURL: baseURL,
		headers: h,
	}
}

// url resolves a path against the base URL. Absolute URLs pass through.
func (t *transport) url(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "/") {
		rawURL = "/" + rawURL
	}
	return t.baseURL + rawURL
}

func (t *transport) authorization() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.headers.Get(headerAuthorization)
}

func (t *transport) hasAuthorization() bool {
	return t.authorization() != ""
}

func (t *transport) setAuthorization(value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers.Set(headerAuthorization, value)
}

func (t *transport) clearAuthorization() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers.Del(headerAuthorization)
}

// call describes one outbound request.
type call struct {
	method string
	url    string
	params url.Values
	form   url.Values
	header http.Header

	// anonymous strips the Authorization header, used for token endpoint calls
	anonymous bool
}

// do performs the call and reads the whole body. Only transport failures are
// returned as errors; any HTTP status is a valid Response.
func (t *transport) do(ctx context.Context, c call) (*Response, error) {
	target := t.url(c.url)
	if len(c.params) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("failed to parse url: %w", err)
		}
		q := u.Query()
		for k, vs := range c.params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var body io.Reader
	if c.form != nil {
		body = strings.NewReader(c.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	t.mu.RLock()
	for k, vs := range t.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	t.mu.RUnlock()

	for k, vs := range c.header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if c.anonymous {
		req.Header.Del(headerAuthorization)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// readBody reads the response body. Accept-Encoding is set explicitly in the
// default headers, which turns off net/http's transparent decompression, so
// gzip and deflate are undone here.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return raw, nil
	}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		// RFC 9110 deflate is zlib-wrapped but some servers send raw deflate.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return raw, nil
	}
}
