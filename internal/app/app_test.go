package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/rhsession/pkg/cryptox"
)

// fakeAPI issues a1/r1 on every password grant and serves /accounts/ to
// requests carrying that token.
type fakeAPI struct {
	*httptest.Server
	logins  atomic.Int32
	revokes atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth2/token/":
			api.logins.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "a1", "refresh_token": "r1", "expires_in": 86400, "scope": "internal",
			})
		case "/oauth2/revoke_token/":
			api.revokes.Add(1)
		case "/accounts/":
			if r.Header.Get("Authorization") != "Bearer a1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"results":[{"account_number":"5RY00000"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func testAppConfig(api *fakeAPI) Config {
	return Config{
		Username:       "user@example.com",
		Password:       "pw",
		ChallengeType:  "email",
		BaseURL:        api.URL,
		CacheKey:       "login",
		RequestTimeout: 5 * time.Second,
	}
}

// run starts a fresh Application, as a new process would, and runs one command.
func run(t *testing.T, cfg Config, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	application, err := New(cfg,
		WithIO(strings.NewReader(""), &out, io.Discard),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, application.Close()) }()

	err = application.Run(context.Background(), args)
	return out.String(), err
}

func TestFileCacheLifecycle(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDriver = "file"
	cfg.CacheDir = t.TempDir()
	record := filepath.Join(cfg.CacheDir, "login.json")

	out, err := run(t, cfg, "login")
	require.NoError(t, err)
	require.Contains(t, out, "logged in as user@example.com")
	require.FileExists(t, record)

	out, err = run(t, cfg, "status")
	require.NoError(t, err)
	require.Contains(t, out, "state: authenticated")
	require.Contains(t, out, "authenticated: true")

	out, err = run(t, cfg, "get", "/accounts/")
	require.NoError(t, err)
	require.Contains(t, out, `"account_number": "5RY00000"`)
	require.EqualValues(t, 1, api.logins.Load())

	out, err = run(t, cfg, "logout")
	require.NoError(t, err)
	require.Contains(t, out, "logged out user@example.com")
	require.EqualValues(t, 1, api.revokes.Load())
	require.NoFileExists(t, record)

	out, err = run(t, cfg, "status")
	require.NoError(t, err)
	require.Contains(t, out, "authenticated: false")
}

// revokedAPI rejects every refresh and revoke, as the provider does once a
// refresh token has been invalidated server side. Password grants issue a
// new access token each time and only the latest one is accepted.
type revokedAPI struct {
	*httptest.Server

	mu        sync.Mutex
	passwords int
	refreshes int
	devices   []string
	current   string
}

func newRevokedAPI(t *testing.T) *revokedAPI {
	t.Helper()

	api := &revokedAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		api.mu.Lock()
		defer api.mu.Unlock()

		switch r.URL.Path {
		case "/oauth2/token/":
			if r.PostForm.Get("grant_type") == "refresh_token" {
				api.refreshes++
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			api.passwords++
			api.devices = append(api.devices, r.PostForm.Get("device_token"))
			api.current = "a" + strconv.Itoa(api.passwords)
			// expires_in 0 with an opaque token expires immediately
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": api.current, "refresh_token": "dead", "expires_in": 0,
			})
		case "/oauth2/revoke_token/":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		case "/accounts/":
			if r.Header.Get("Authorization") != "Bearer "+api.current {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"results":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func (api *revokedAPI) counts() (passwords, refreshes int) {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.passwords, api.refreshes
}

// revoke invalidates the current access token.
func (api *revokedAPI) revoke() {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.current = "revoked"
}

func TestRejectedRefreshFallsBackToLogin(t *testing.T) {
	t.Parallel()

	api := newRevokedAPI(t)
	cfg := Config{
		Username:       "user@example.com",
		Password:       "pw",
		BaseURL:        api.URL,
		CacheDriver:    "file",
		CacheDir:       t.TempDir(),
		CacheKey:       "login",
		RequestTimeout: 5 * time.Second,
	}
	record := filepath.Join(cfg.CacheDir, "login.json")

	_, err := run(t, cfg, "login")
	require.NoError(t, err)

	out, err := run(t, cfg, "login")
	require.NoError(t, err)
	require.Contains(t, out, "logged in as user@example.com")
	passwords, refreshes := api.counts()
	require.Equal(t, 2, passwords)
	require.Equal(t, 1, refreshes)

	api.mu.Lock()
	require.Equal(t, api.devices[0], api.devices[1])
	api.mu.Unlock()

	api.revoke()
	out, err = run(t, cfg, "get", "/accounts/")
	require.NoError(t, err)
	require.Contains(t, out, `"results": []`)
	passwords, refreshes = api.counts()
	require.Equal(t, 3, passwords)
	require.Equal(t, 2, refreshes)

	_, err = run(t, cfg, "logout")
	require.ErrorContains(t, err, "could not log out: invalid_token")
	require.NoFileExists(t, record)

	_, err = run(t, cfg, "login")
	require.NoError(t, err)
	passwords, refreshes = api.counts()
	require.Equal(t, 4, passwords)
	require.Equal(t, 2, refreshes)
}

func TestCachedSessionForAnotherAccount(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDir = t.TempDir()

	_, err := run(t, cfg, "login")
	require.NoError(t, err)

	cfg.Username = "other@example.com"
	out, err := run(t, cfg, "status")
	require.NoError(t, err)
	require.Contains(t, out, "username: other@example.com")
	require.Contains(t, out, "authenticated: false")
}

func TestSQLiteCache(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDriver = "sqlite"
	cfg.SQLiteFile = filepath.Join(t.TempDir(), "cache", "sessions.db")

	_, err := run(t, cfg, "login")
	require.NoError(t, err)

	out, err := run(t, cfg, "get", "/accounts/")
	require.NoError(t, err)
	require.Contains(t, out, "5RY00000")
	require.EqualValues(t, 1, api.logins.Load())

	cfg.CachePassphrase = "correct horse"
	_, err = run(t, cfg, "login")
	require.NoError(t, err)

	out, err = run(t, cfg, "status")
	require.NoError(t, err)
	require.Contains(t, out, "authenticated: true")
	require.Contains(t, out, "cached_at: ")
}

func TestSealedRedisCache(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDriver = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.RedisTTL = time.Hour
	cfg.CachePassphrase = "correct horse"

	_, err = run(t, cfg, "login")
	require.NoError(t, err)

	raw, err := mr.Get("rhsession:login")
	require.NoError(t, err)
	require.True(t, cryptox.IsSealed([]byte(raw)))
	require.NotContains(t, raw, "user@example.com")
	require.Equal(t, time.Hour, mr.TTL("rhsession:login"))

	out, err := run(t, cfg, "status")
	require.NoError(t, err)
	require.Contains(t, out, "authenticated: true")
	require.NotContains(t, out, "cached_at")
}

func TestEventStream(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDriver = "none"
	cfg.EventsRedisAddr = mr.Addr()
	cfg.EventsTopic = "rhsession.events"

	_, err = run(t, cfg, "login")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	msgs, err := rdb.XRange(context.Background(), "rhsession.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	payload, ok := msgs[0].Values["payload"].(string)
	require.True(t, ok)
	require.Contains(t, payload, `"type":"login"`)
	require.Contains(t, payload, `"username":"user@example.com"`)
	require.NotContains(t, payload, "access_token")
}

func TestNoCache(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDriver = "none"

	_, err := run(t, cfg, "get", "/accounts/")
	require.NoError(t, err)
	_, err = run(t, cfg, "get", "/accounts/")
	require.NoError(t, err)
	require.EqualValues(t, 2, api.logins.Load())
}

func TestUsage(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.CacheDriver = "none"

	for _, args := range [][]string{nil, {"bogus"}, {"get"}, {"get", "/a/", "/b/"}} {
		_, err := run(t, cfg, args...)
		require.ErrorIs(t, err, ErrUsage)
	}
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := New(Config{CacheDriver: "etcd"}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.Error(t, err)
}

func TestLoginFailureIsNotCached(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testAppConfig(api)
	cfg.Password = ""
	cfg.CacheDir = t.TempDir()

	_, err := run(t, cfg, "login")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(cfg.CacheDir, "login.json"))
	require.True(t, os.IsNotExist(statErr))
}
