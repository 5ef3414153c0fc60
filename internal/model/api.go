package model

import "time"

// ValidateRequest is the body of POST /validate.
type ValidateRequest struct {
	Action ActionPrimitive `json:"action"`
	Agent  AgentContext    `json:"agent"`
}

// ValidateResponse is the body returned by POST /validate. The HTTP status
// is 200 regardless of the verdict decision; DENY is not an HTTP error.
type ValidateResponse struct {
	Verdict Verdict `json:"verdict"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	OntologyReachable bool   `json:"ontology_reachable"`
	Version           string `json:"version,omitempty"`
}

// APIError is the envelope for transport-level failures (malformed body,
// missing auth). Pipeline failures never use it; they surface as DENY
// verdicts inside a 200 response.
type APIError struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transport error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal"
)
