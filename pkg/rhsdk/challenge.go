package rhsdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChallengeType is the out-of-band channel a challenge code is delivered on.
type ChallengeType string

const (
	ChallengeEmail ChallengeType = "email"
	ChallengeSMS   ChallengeType = "sms"
)

// ParseChallengeType validates a channel name.
func ParseChallengeType(s string) (ChallengeType, error) {
	switch ChallengeType(strings.ToLower(strings.TrimSpace(s))) {
	case ChallengeEmail:
		return ChallengeEmail, nil
	case ChallengeSMS:
		return ChallengeSMS, nil
	default:
		return "", fmt.Errorf("challenge type must be email or sms, got %q", s)
	}
}

// UnmarshalText rejects channels other than email and sms. An empty value is
// kept empty; alternate_type is blank for accounts with a single channel.
func (t *ChallengeType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = ""
		return nil
	}
	parsed, err := ParseChallengeType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Label is the capitalised channel name shown in prompts.
func (t ChallengeType) Label() string {
	switch t {
	case ChallengeSMS:
		return "SMS"
	case ChallengeEmail:
		return "Email"
	default:
		return string(t)
	}
}

// ChallengeStatus is the provider-side status of a challenge.
type ChallengeStatus string

const (
	ChallengeIssued    ChallengeStatus = "issued"
	ChallengeValidated ChallengeStatus = "validated"
	ChallengeFailed    ChallengeStatus = "failed"
)

// UnmarshalText rejects unknown statuses.
func (s *ChallengeStatus) UnmarshalText(b []byte) error {
	switch st := ChallengeStatus(b); st {
	case ChallengeIssued, ChallengeValidated, ChallengeFailed:
		*s = st
		return nil
	default:
		return fmt.Errorf("unknown challenge status %q", string(b))
	}
}

// Challenge is a step-up verification issued by the provider in place of a
// token. The retry counters belong to the provider; every response to a
// submitted code carries the updated values.
type Challenge struct {
	ID                uuid.UUID       `json:"id"`
	User              uuid.UUID       `json:"user"`
	Type              ChallengeType   `json:"type"`
	AlternateType     ChallengeType   `json:"alternate_type,omitempty"`
	Status            ChallengeStatus `json:"status"`
	RemainingRetries  int             `json:"remaining_retries"`
	RemainingAttempts int             `json:"remaining_attempts"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

// validate checks the fields the flow depends on.
func (c Challenge) validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("challenge is missing an id")
	}
	if c.Type == "" {
		return fmt.Errorf("challenge is missing a delivery type")
	}
	return nil
}

// CanRetry reports whether the provider will still accept a code for this
// challenge at now.
func (c Challenge) CanRetry(now time.Time) bool {
	return c.RemainingAttempts > 0 && now.Before(c.ExpiresAt)
}
