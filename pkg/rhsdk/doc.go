/*
Package rhsdk provides an authenticated session for the Robinhood private REST API.

# Overview

A SessionManager holds the OAuth2 credential of one account and authorizes every
request made through it. The credential is obtained lazily: the first Get or Post
logs in, and a request rejected with 401 renews the credential and is sent again
exactly once.

	m, err := rhsdk.NewSessionManager(rhsdk.Config{
		Username: "user@example.com",
		Password: password,
	})

	// Logs in on first use
	resp, err := m.Get(ctx, "/positions/", url.Values{"nonzero": {"true"}})

	// Decode straight into a type
	accounts, err := rhsdk.GetJSON[AccountPage](ctx, m, "/accounts/", nil)

# Login Flow

Login posts a password grant to the token endpoint. The provider may answer with:

  - tokens, which are stored and sent as a Bearer header from then on
  - a challenge, a code delivered over email or SMS that is read through the
    Prompter and answered until the provider accepts it or its attempts run out
  - an mfa request, answered with a TOTP code generated from Config.MFASecret or
    read through the Prompter, at most MaxMFAAttempts times
  - anything else, returned as an *AuthenticationError with the provider's message

Once the access token expires, Login exchanges the refresh token instead of
repeating the full flow. If the provider rejects the refresh token the error
matches ErrRefreshRejected and the stale credential stays in place; the caller
recovers with a full login on the same device:

	err := m.Login(ctx)
	if errors.Is(err, rhsdk.ErrRefreshRejected) {
		err = m.Login(ctx, rhsdk.ForceLogin())
	}

Logout revokes the refresh token.

# Persistence

Dump and Load serialize a session so it survives restarts. SaveSession and
LoadSession do the same through a sessioncache.Store. A missing or unreadable
record returns an error wrapping ErrInvalidCache, and the caller is expected to
start a new session:

	m, err := rhsdk.LoadSession(ctx, store, sessioncache.DefaultKey, cfg)
	if errors.Is(err, rhsdk.ErrInvalidCache) {
		m, err = rhsdk.NewSessionManager(cfg)
	}

# Concurrency

A SessionManager is safe for concurrent use. Credential changes are serialized,
and concurrent requests that are rejected with the same stale token share a
single refresh.
*/
package rhsdk
