package rhsdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type reply struct {
	status int
	body   any
}

// provider is a scripted stand-in for the brokerage API. Each endpoint
// handler returns the status and JSON body to answer with; every request is
// recorded so tests can assert on what was sent.
type provider struct {
	*httptest.Server

	mu sync.Mutex

	onToken     func(form url.Values, r *http.Request) reply
	onChallenge func(id string, form url.Values, r *http.Request) reply
	onRevoke    func(form url.Values) reply
	onAPI       func(r *http.Request, form url.Values) reply

	rec record
}

// record is everything the provider has received so far.
type record struct {
	tokenForms     []url.Values
	tokenAuth      []string
	tokenHeaders   []http.Header
	challengeForms []url.Values
	revokeForms    []url.Values
	revokeAuth     []string
	apiAuth        []string
	apiForms       []url.Values
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	p := &provider{
		onAPI: func(*http.Request, url.Values) reply {
			return reply{http.StatusOK, map[string]any{"ok": true}}
		},
		onRevoke: func(url.Values) reply {
			return reply{http.StatusOK, nil}
		},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

func (p *provider) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := r.PostForm

	var rep reply
	p.mu.Lock()
	switch {
	case r.URL.Path == pathToken:
		p.rec.tokenForms = append(p.rec.tokenForms, form)
		p.rec.tokenAuth = append(p.rec.tokenAuth, r.Header.Get("Authorization"))
		p.rec.tokenHeaders = append(p.rec.tokenHeaders, r.Header.Clone())
		handler := p.onToken
		p.mu.Unlock()
		rep = handler(form, r)

	case strings.HasPrefix(r.URL.Path, "/challenge/"):
		p.rec.challengeForms = append(p.rec.challengeForms, form)
		handler := p.onChallenge
		p.mu.Unlock()
		id := strings.Split(strings.Trim(r.URL.Path, "/"), "/")[1]
		rep = handler(id, form, r)

	case r.URL.Path == pathRevoke:
		p.rec.revokeForms = append(p.rec.revokeForms, form)
		p.rec.revokeAuth = append(p.rec.revokeAuth, r.Header.Get("Authorization"))
		handler := p.onRevoke
		p.mu.Unlock()
		rep = handler(form)

	default:
		p.rec.apiAuth = append(p.rec.apiAuth, r.Header.Get("Authorization"))
		p.rec.apiForms = append(p.rec.apiForms, form)
		handler := p.onAPI
		p.mu.Unlock()
		rep = handler(r, form)
	}

	if rep.body == nil {
		w.WriteHeader(rep.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_ = json.NewEncoder(w).Encode(rep.body)
}

// seen returns a copy of what the provider has received.
func (p *provider) seen() record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return record{
		tokenForms:     slices.Clone(p.rec.tokenForms),
		tokenAuth:      slices.Clone(p.rec.tokenAuth),
		tokenHeaders:   slices.Clone(p.rec.tokenHeaders),
		challengeForms: slices.Clone(p.rec.challengeForms),
		revokeForms:    slices.Clone(p.rec.revokeForms),
		revokeAuth:     slices.Clone(p.rec.revokeAuth),
		apiAuth:        slices.Clone(p.rec.apiAuth),
		apiForms:       slices.Clone(p.rec.apiForms),
	}
}

func (p *provider) handleToken(fn func(form url.Values, r *http.Request) reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onToken = fn
}

func (p *provider) handleChallenge(fn func(id string, form url.Values, r *http.Request) reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChallenge = fn
}

func (p *provider) handleRevoke(fn func(form url.Values) reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRevoke = fn
}

func (p *provider) handleAPI(fn func(r *http.Request, form url.Values) reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAPI = fn
}

func (p *provider) tokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rec.tokenForms)
}

func (p *provider) grantCalls(grant string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.rec.tokenForms {
		if f.Get("grant_type") == grant {
			n++
		}
	}
	return n
}

func (p *provider) apiCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rec.apiAuth)
}

// issueTokens answers password grants with a1/r1 and refresh grants with a
// new numbered pair each time.
func (p *provider) issueTokens() {
	var mu sync.Mutex
	refreshes := 0
	p.handleToken(func(form url.Values, _ *http.Request) reply {
		if form.Get("grant_type") == "refresh_token" {
			mu.Lock()
			refreshes++
			n := refreshes + 1
			mu.Unlock()
			return reply{http.StatusOK, tokenBody(tokenName("a", n), tokenName("r", n))}
		}
		return reply{http.StatusOK, tokenBody("a1", "r1")}
	})
}

func tokenName(prefix string, n int) string {
	return prefix + string(rune('0'+n))
}

func tokenBody(access, refresh string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    86400,
		"token_type":    "Bearer",
		"scope":         "internal",
	}
}

func challengeBody(id string, status ChallengeStatus, attempts int, expires time.Time) map[string]any {
	return map[string]any{
		"id":                 id,
		"user":               "5e3c4a3f-94e4-4b8f-a8c0-2f7c6a1a8d11",
		"type":               "sms",
		"alternate_type":     "email",
		"status":             string(status),
		"remaining_retries":  3,
		"remaining_attempts": attempts,
		"expires_at":         expires.Format(time.RFC3339),
	}
}

// scriptedPrompter hands out pre-recorded codes and records every prompt.
type scriptedPrompter struct {
	mu sync.Mutex

	challengeCodes []string
	mfaCodes       []string

	challenges  []Challenge
	mfaAttempts []int
	notices     []string
}

func (p *scriptedPrompter) ChallengeCode(_ context.Context, ch Challenge) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challenges = append(p.challenges, ch)
	if len(p.challengeCodes) == 0 {
		return "", errors.New("no challenge code scripted")
	}
	code := p.challengeCodes[0]
	p.challengeCodes = p.challengeCodes[1:]
	return code, nil
}

func (p *scriptedPrompter) MFACode(_ context.Context, attempt int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mfaAttempts = append(p.mfaAttempts, attempt)
	if len(p.mfaCodes) == 0 {
		return "", errors.New("no mfa code scripted")
	}
	code := p.mfaCodes[0]
	p.mfaCodes = p.mfaCodes[1:]
	return code, nil
}

func (p *scriptedPrompter) Notify(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points a manager at p with a scripted prompter and fake clock.
func testConfig(p *provider, prompter *scriptedPrompter, clock *fakeClock) Config {
	return Config{
		Username: "user@example.com",
		Password: "pw",
		BaseURL:  p.URL,
		Prompter: prompter,
		Logger:   discardLogger(),
		Now:      clock.Now,
	}
}

func newTestManager(t *testing.T, p *provider, mutate ...func(*Config)) (*SessionManager, *scriptedPrompter, *fakeClock) {
	t.Helper()

	prompter := &scriptedPrompter{}
	clock := newFakeClock()
	cfg := testConfig(p, prompter, clock)
	for _, fn := range mutate {
		fn(&cfg)
	}

	m, err := NewSessionManager(cfg)
	require.NoError(t, err)
	return m, prompter, clock
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
	err    error
}

func (r *recordingPublisher) PublishSessionEvent(_ context.Context, ev SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
