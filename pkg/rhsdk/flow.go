package rhsdk

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// State is a step of the login state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateChallengePending
	StateMFAPending
	StateAuthenticated
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateChallengePending:
		return "challenge_pending"
	case StateMFAPending:
		return "mfa_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	pathToken  = "/oauth2/token/"
	pathRevoke = "/oauth2/revoke_token/"
)

func challengePath(ch Challenge) string {
	return "/challenge/" + ch.ID.String() + "/respond/"
}

// authFlow runs the token endpoint exchanges. It holds no credential itself;
// the session manager stores whatever a successful run returns.
type authFlow struct {
	transport *transport
	prompter  Prompter
	logger    *slog.Logger
	now       func() time.Time

	username      string
	password      string
	mfaSecret     string
	clientID      string
	expiresIn     int
	challengeType ChallengeType
	deviceToken   string

	// onState observes every transition
	onState func(State)
}

func (f *authFlow) enter(s State) {
	f.logger.Debug("auth flow transition", "state", s.String(), "username", f.username)
	if f.onState != nil {
		f.onState(s)
	}
}

// loginPayload is the password grant form. A fresh copy is built per login
// so the mfa_code of one attempt never leaks into the next.
func (f *authFlow) loginPayload() url.Values {
	return url.Values{
		"username":       {f.username},
		"password":       {f.password},
		"grant_type":     {"password"},
		"client_id":      {f.clientID},
		"scope":          {oauthScope},
		"expires_in":     {strconv.Itoa(f.expiresIn)},
		"device_token":   {f.deviceToken},
		"challenge_type": {string(f.challengeType)},
	}
}

// submit posts form to the token endpoint and classifies the answer.
func (f *authFlow) submit(ctx context.Context, form url.Values, header http.Header) (LoginOutcome, error) {
	resp, err := f.transport.do(ctx, call{
		method:    http.MethodPost,
		url:       pathToken,
		form:      form,
		header:    header,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return parseLoginOutcome(resp)
}

// login runs the full password grant, including any challenge or mfa step,
// and returns the issued credential.
func (f *authFlow) login(ctx context.Context) (Credential, error) {
	if f.username == "" || f.password == "" {
		f.enter(StateFailed)
		return Credential{}, authError("username and password must be set before logging in")
	}

	f.enter(StateUnauthenticated)
	payload := f.loginPayload()

	outcome, err := f.submit(ctx, payload, nil)
	for err == nil {
		switch o := outcome.(type) {
		case Success:
			f.enter(StateAuthenticated)
			return o.Credential, nil

		case ChallengeRequired:
			f.enter(StateChallengePending)
			outcome, err = f.resolveChallenge(ctx, payload, o.Challenge)

		case MFARequired:
			f.enter(StateMFAPending)
			outcome, err = f.resolveMFA(ctx, payload)

		case Rejected:
			err = &AuthenticationError{Message: o.Message, StatusCode: o.StatusCode}
		}
	}

	f.enter(StateFailed)

	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return Credential{}, err
	}
	return Credential{}, &AuthenticationError{Message: "login request failed", Err: err}
}

// refresh exchanges the refresh token of cred for a new credential.
func (f *authFlow) refresh(ctx context.Context, cred Credential) (Credential, error) {
	if cred.RefreshToken == "" {
		return Credential{}, authError("cannot refresh login with unset refresh token")
	}

	f.enter(StateRefreshing)

	outcome, err := f.submit(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"client_id":     {f.clientID},
		"scope":         {oauthScope},
		"expires_in":    {strconv.Itoa(f.expiresIn)},
	}, nil)
	if err != nil {
		return Credential{}, &AuthenticationError{Message: "failed to refresh token", Err: err}
	}

	switch o := outcome.(type) {
	case Success:
		f.enter(StateAuthenticated)
		return o.Credential, nil
	case Rejected:
		return Credential{}, &AuthenticationError{
			Message:         "failed to refresh token: " + o.Message,
			StatusCode:      o.StatusCode,
			refreshRejected: o.StatusCode >= 400 && o.StatusCode < 500,
		}
	default:
		return Credential{}, authError("failed to refresh token: provider requested interactive verification")
	}
}

// revoke invalidates the refresh token of cred.
func (f *authFlow) revoke(ctx context.Context, cred Credential) error {
	if cred.RefreshToken == "" {
		return authError("no refresh token to revoke")
	}

	resp, err := f.transport.do(ctx, call{
		method: http.MethodPost,
		url:    pathRevoke,
		form: url.Values{
			"client_id": {f.clientID},
			"token":     {cred.RefreshToken},
		},
	})
	if err != nil {
		return &AuthenticationError{Message: "could not log out", Err: err}
	}
	if !resp.OK() {
		msg := "could not log out"
		if detail := providerMessage(resp.Body); detail != "" {
			msg += ": " + detail
		}
		return &AuthenticationError{Message: msg, StatusCode: resp.StatusCode}
	}

	return nil
}
