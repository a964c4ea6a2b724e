package rhsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/rhsession/pkg/sessioncache"
)

// cacheRecord is the persisted form of a SessionManager. The transport is
// rebuilt from Config on load and never serialized.
type cacheRecord struct {
	Username      string        `json:"username"`
	Password      string        `json:"password,omitempty"`
	MFASecret     string        `json:"mfa_secret,omitempty"`
	ChallengeType ChallengeType `json:"challenge_type"`
	DeviceToken   string        `json:"device_token"`
	ExpiresAt     time.Time     `json:"expires_at"`
	OAuth         *Credential   `json:"oauth,omitempty"`
}

// Dump serializes the account details, device token, credential and expiry
// of m to JSON.
func Dump(m *SessionManager) ([]byte, error) {
	m.mu.RLock()
	rec := cacheRecord{
		Username:      m.username,
		Password:      m.password,
		MFASecret:     m.mfaSecret,
		ChallengeType: m.challengeType,
		DeviceToken:   m.deviceToken,
		ExpiresAt:     m.expiresAt.UTC(),
	}
	if !m.credential.IsZero() {
		cred := m.credential
		rec.OAuth = &cred
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

// Load rebuilds a SessionManager from a record produced by Dump. cfg provides
// everything that is not persisted (transport, prompter, logger). The
// record's username and challenge type take precedence over cfg; a password
// or mfa secret set in cfg replaces the stored one, so a changed password is
// picked up on the next full login.
//
// A valid stored credential re-authorizes the transport immediately, so the
// manager is Authenticated until the stored expiry passes. Empty or malformed
// input returns an error wrapping ErrInvalidCache.
func Load(data []byte, cfg Config) (*SessionManager, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidCache)
	}

	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCache, err)
	}
	if rec.Username == "" || rec.DeviceToken == "" {
		return nil, fmt.Errorf("%w: missing username or device token", ErrInvalidCache)
	}
	if rec.OAuth != nil && !rec.OAuth.Valid() && !rec.OAuth.IsZero() {
		return nil, fmt.Errorf("%w: credential has only one of access and refresh token", ErrInvalidCache)
	}
	if rec.MFASecret != "" {
		if err := ValidateMFASecret(rec.MFASecret); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCache, err)
		}
	}

	cfg.Username = rec.Username
	if cfg.Password == "" {
		cfg.Password = rec.Password
	}
	if cfg.MFASecret == "" {
		cfg.MFASecret = rec.MFASecret
	} else if err := ValidateMFASecret(cfg.MFASecret); err != nil {
		return nil, err
	}
	if rec.ChallengeType != "" {
		cfg.ChallengeType = rec.ChallengeType
	}

	m := newSessionManager(cfg.withDefaults(), rec.DeviceToken)

	if rec.OAuth != nil && rec.OAuth.Valid() {
		m.mu.Lock()
		m.credential = *rec.OAuth
		m.expiresAt = rec.ExpiresAt.UTC()
		m.state = StateAuthenticated
		m.mu.Unlock()

		m.transport.setAuthorization(rec.OAuth.authorizationValue())
	}

	return m, nil
}

// SaveSession dumps m into store under key.
func SaveSession(ctx context.Context, store sessioncache.Store, key string, m *SessionManager) error {
	data, err := Dump(m)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession loads the record stored under key. A missing or unreadable
// record returns an error wrapping ErrInvalidCache; other store failures are
// returned as they are.
func LoadSession(ctx context.Context, store sessioncache.Store, key string, cfg Config) (*SessionManager, error) {
	data, err := store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, sessioncache.ErrNotFound) || errors.Is(err, sessioncache.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCache, err)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return Load(data, cfg)
}
