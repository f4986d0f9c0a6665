package relay

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"nachtplan/internal/llm"
)

const (
	MsgRateLimited  = "Rate limit exceeded, please try again in a moment."
	MsgQuota        = "AI usage quota exhausted, please add credits to continue."
	MsgGatewayError = "AI gateway error"
)

// Outcome labels for the requests metric.
const (
	outcomeOK            = "ok"
	outcomeRateLimited   = "rate_limited"
	outcomeQuota         = "quota"
	outcomeUpstreamError = "upstream_error"
	outcomeFailed        = "failed"
)

// ErrorEnvelope is the terminal body returned instead of a stream.
type ErrorEnvelope struct {
	Error string `json:"error"`
}

// StatusFor maps a pre-stream failure onto the response status and the
// message disclosed to the caller.
func StatusFor(err error) (status int, message string) {
	status, message, _ = classify(err)
	return status, message
}

func classify(err error) (int, string, string) {
	var se *llm.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, MsgRateLimited, outcomeRateLimited
		case http.StatusPaymentRequired:
			return http.StatusPaymentRequired, MsgQuota, outcomeQuota
		default:
			return http.StatusInternalServerError, MsgGatewayError, outcomeUpstreamError
		}
	}
	return http.StatusInternalServerError, err.Error(), outcomeFailed
}

func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: message})
}
