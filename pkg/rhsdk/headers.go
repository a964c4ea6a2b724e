package rhsdk

import "net/http"

const (
	headerAuthorization       = "Authorization"
	headerChallengeResponseID = "X-ROBINHOOD-CHALLENGE-RESPONSE-ID"
)

// DefaultHeaders returns the headers the provider's mobile client sends on
// every request.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Accept", "*/*")
	h.Set("Accept-Encoding", "gzip, deflate")
	h.Set("Accept-Language", "en;q=1, fr;q=0.9, de;q=0.8, ja;q=0.7, nl;q=0.6, it;q=0.5")
	h.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	h.Set("X-Robinhood-API-Version", "1.0.0")
	h.Set("Connection", "keep-alive")
	h.Set("User-Agent", "Robinhood/823 (iPhone; iOS 7.1.2; Scale/2.00)")
	return h
}
