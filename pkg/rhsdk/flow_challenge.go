package rhsdk

import (
	"context"
	"net/http"
	"net/url"
)

// resolveChallenge prompts for challenge codes until the provider accepts
// one, then resubmits the login payload under the challenge id.
//
// The loop is bounded by the provider's counters only: each rejected code
// returns an updated challenge and the flow stops once that challenge can no
// longer be retried. No local cap is applied on top.
func (f *authFlow) resolveChallenge(ctx context.Context, payload url.Values, ch Challenge) (LoginOutcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := f.prompter.ChallengeCode(ctx, ch)
		if err != nil {
			return nil, &AuthenticationError{Message: "failed to read challenge code", Err: err}
		}

		header := http.Header{}
		header.Set(headerChallengeResponseID, ch.ID.String())

		resp, err := f.transport.do(ctx, call{
			method:    http.MethodPost,
			url:       challengePath(ch),
			form:      url.Values{"response": {code}},
			header:    header,
			anonymous: true,
		})
		if err != nil {
			return nil, err
		}

		if resp.OK() {
			f.logger.Debug("challenge accepted", "challenge_id", ch.ID.String())
			return f.finalizeChallenge(ctx, payload, header)
		}

		updated, ok := parseUpdatedChallenge(resp.Body)
		if !ok || !updated.CanRetry(f.now()) {
			return nil, &AuthenticationError{
				Message:    "exceeded available attempts or code expired",
				StatusCode: resp.StatusCode,
			}
		}

		f.logger.Debug("challenge code rejected",
			"challenge_id", updated.ID.String(),
			"remaining_attempts", updated.RemainingAttempts,
		)
		f.prompter.Notify("Invalid code entered")
		ch = updated
	}
}

// finalizeChallenge resubmits the login payload after a validated challenge.
// A second challenge at this point is treated as a failure so the state
// machine cannot cycle.
func (f *authFlow) finalizeChallenge(ctx context.Context, payload url.Values, header http.Header) (LoginOutcome, error) {
	outcome, err := f.submit(ctx, payload, header)
	if err != nil {
		return nil, err
	}

	switch o := outcome.(type) {
	case Success, MFARequired:
		return o, nil
	case Rejected:
		return nil, &AuthenticationError{
			Message:    "error in finalizing auth token: " + o.Message,
			StatusCode: o.StatusCode,
		}
	default:
		return nil, authError("error in finalizing auth token")
	}
}
