package rhsdk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// resolveMFA resubmits the login payload with a TOTP code, up to
// MaxMFAAttempts times. A code generated from the seed is never sent twice:
// if the time step has not moved since the last rejection the flow stops.
func (f *authFlow) resolveMFA(ctx context.Context, payload url.Values) (LoginOutcome, error) {
	var (
		last     Rejected
		rejected string
	)

	for attempt := 1; attempt <= MaxMFAAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := f.mfaCode(ctx, attempt)
		if err != nil {
			return nil, err
		}
		if f.mfaSecret != "" && code == rejected {
			return nil, &AuthenticationError{
				Message:    "mfa code generated from secret was rejected",
				StatusCode: last.StatusCode,
			}
		}

		form := cloneValues(payload)
		form.Set("mfa_code", code)

		outcome, err := f.submit(ctx, form, nil)
		if err != nil {
			return nil, err
		}

		switch o := outcome.(type) {
		case Success:
			return o, nil
		case Rejected:
			last = o
		default:
			last = Rejected{Message: "unexpected response to mfa code"}
		}

		rejected = code
		f.logger.Debug("mfa code rejected", "attempt", attempt, "status", last.StatusCode)
		if f.mfaSecret == "" && attempt < MaxMFAAttempts {
			f.prompter.Notify("Invalid mfa code")
		}
	}

	return nil, &AuthenticationError{
		Message:    "too many incorrect mfa attempts",
		StatusCode: last.StatusCode,
	}
}

// mfaCode generates a code from the configured seed, or asks the prompter
// when there is none.
func (f *authFlow) mfaCode(ctx context.Context, attempt int) (string, error) {
	if f.mfaSecret != "" {
		code, err := totp.GenerateCode(normalizeSecret(f.mfaSecret), f.now())
		if err != nil {
			return "", &AuthenticationError{Message: "failed to generate mfa code", Err: err}
		}
		return code, nil
	}

	code, err := f.prompter.MFACode(ctx, attempt)
	if err != nil {
		return "", &AuthenticationError{Message: "failed to read mfa code", Err: err}
	}
	return code, nil
}

// normalizeSecret strips the spaces authenticator apps insert for
// readability and upper-cases the base32 alphabet.
func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// ValidateMFASecret reports whether secret can produce TOTP codes.
func ValidateMFASecret(secret string) error {
	if _, err := totp.GenerateCode(normalizeSecret(secret), time.Unix(0, 0)); err != nil {
		return fmt.Errorf("invalid mfa secret: %w", err)
	}
	return nil
}
