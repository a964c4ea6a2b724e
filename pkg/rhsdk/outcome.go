package rhsdk

import (
	"encoding/json"
	"fmt"
)

// LoginOutcome is the result of one submission to the token endpoint. It is
// one of Success, ChallengeRequired, MFARequired or Rejected.
type LoginOutcome interface {
	loginOutcome()
}

// Success carries the credential issued by the provider.
type Success struct {
	Credential Credential
}

// ChallengeRequired means the provider blocked the login until a code sent
// over email or SMS is answered.
type ChallengeRequired struct {
	Challenge Challenge
	Detail    string
}

// MFARequired means the account has TOTP enabled and the payload must be
// resubmitted with an mfa_code.
type MFARequired struct {
	Type string
}

// Rejected is any response that is neither a credential nor a step-up
// request. Message keeps the provider's wording.
type Rejected struct {
	StatusCode int
	Message    string
}

func (Success) loginOutcome()           {}
func (ChallengeRequired) loginOutcome() {}
func (MFARequired) loginOutcome()       {}
func (Rejected) loginOutcome()          {}

// tokenResponse is the union of every shape the token endpoint answers with.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`

	MFARequired bool   `json:"mfa_required"`
	MFAType     string `json:"mfa_type"`

	Challenge *Challenge `json:"challenge"`

	providerErrorBody
}

// parseLoginOutcome classifies a token endpoint response. The challenge is
// checked before mfa, and mfa before tokens, because a blocked login can carry
// a detail message alongside the challenge object.
func parseLoginOutcome(resp *Response) (LoginOutcome, error) {
	if len(resp.Body) == 0 {
		return Rejected{StatusCode: resp.StatusCode, Message: "unknown login error"}, nil
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	switch {
	case body.Challenge != nil:
		if err := body.Challenge.validate(); err != nil {
			return nil, fmt.Errorf("failed to decode token response: %w", err)
		}
		return ChallengeRequired{Challenge: *body.Challenge, Detail: body.Detail}, nil

	case body.MFARequired:
		return MFARequired{Type: body.MFAType}, nil

	case resp.OK() && body.AccessToken != "" && body.RefreshToken != "":
		return Success{Credential: Credential{
			AccessToken:  body.AccessToken,
			RefreshToken: body.RefreshToken,
			ExpiresIn:    body.ExpiresIn,
			Scope:        body.Scope,
			TokenType:    body.TokenType,
		}}, nil
	}

	msg := providerMessage(resp.Body)
	if msg == "" {
		msg = "unknown login error"
	}
	return Rejected{StatusCode: resp.StatusCode, Message: msg}, nil
}

// challengeEnvelope is the body of a rejected challenge response.
type challengeEnvelope struct {
	Detail    string     `json:"detail"`
	Challenge *Challenge `json:"challenge"`
}

// parseUpdatedChallenge extracts the refreshed challenge from a non-2xx
// challenge response. ok is false when the body carries no usable challenge.
func parseUpdatedChallenge(body []byte) (Challenge, bool) {
	var env challengeEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Challenge == nil {
		return Challenge{}, false
	}
	if err := env.Challenge.validate(); err != nil {
		return Challenge{}, false
	}
	return *env.Challenge, true
}
