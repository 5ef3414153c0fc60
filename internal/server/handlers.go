package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-labs/vigil/internal/gate"
	"github.com/vigil-labs/vigil/internal/ledger"
	"github.com/vigil-labs/vigil/internal/model"
	"github.com/vigil-labs/vigil/internal/telemetry"
)

// Evaluator is the evaluation pipeline the validate endpoint drives.
type Evaluator interface {
	Evaluate(ctx context.Context, action model.ActionPrimitive, agent model.AgentContext) (model.Verdict, error)
	Healthy(ctx context.Context) bool
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	gate    Evaluator
	ledger  ledger.Ledger
	metrics *telemetry.GateMetrics
	logger  *slog.Logger

	version             string
	maxRequestBodyBytes int64
	completeFailClosed  bool
}

// HandlersDeps holds the dependencies for NewHandlers.
type HandlersDeps struct {
	Gate    Evaluator
	Ledger  ledger.Ledger
	Metrics *telemetry.GateMetrics
	Logger  *slog.Logger

	Version             string
	MaxRequestBodyBytes int64
	CompleteFailClosed  bool
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		gate:                deps.Gate,
		ledger:              deps.Ledger,
		metrics:             deps.Metrics,
		logger:              deps.Logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
		completeFailClosed:  deps.CompleteFailClosed,
	}
}

// HandleValidate evaluates one proposed action. The verdict always comes
// back with HTTP 200; DENY is an answer, not an error. The only non-200
// outcomes are malformed requests (400) and, in complete fail-closed mode,
// a ledger outage (503).
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if h.maxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	}

	var req model.ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	// A token-borne identity overrides whatever the body claims.
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		req.Agent.AgentID = claims.AgentID
		req.Agent.MaturityLevel = claims.MaturityLevel
	}
	if req.Agent.TraceID == "" {
		req.Agent.TraceID = uuid.NewString()
	}

	if err := req.Action.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, err.Error())
		return
	}
	if err := req.Agent.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, err.Error())
		return
	}

	verdict, err := h.gate.Evaluate(r.Context(), req.Action, req.Agent)
	h.metrics.RecordVerdict(r.Context(),
		string(verdict.Decision), verdict.Reason, verdict.Action.Domain,
		verdict.GovernanceLatencyMs, verdict.Certifiable)

	if err != nil && errors.Is(err, gate.ErrLedgerUnavailable) && h.completeFailClosed {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "audit ledger unavailable")
		return
	}

	writeJSON(w, http.StatusOK, model.ValidateResponse{Verdict: verdict})
}

// HandleHealth reports liveness and ontology reachability. Always 200; a
// degraded gate still answers requests, it just denies them.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	reachable := h.gate.Healthy(r.Context())
	status := "ok"
	if !reachable {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:            status,
		OntologyReachable: reachable,
		Version:           h.version,
	})
}

// HandleVerdictsRecent returns the newest ledger rows, newest first.
// Query parameter: limit (default 50, max 1000).
func (h *Handlers) HandleVerdictsRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	verdicts, err := h.ledger.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent verdicts query failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "audit ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verdicts": verdicts})
}

// HandleMetricsSummary returns aggregate decision counts and latency over
// a trailing window. Query parameter: window (Go duration, default 1h).
func (h *Handlers) HandleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if s := r.URL.Query().Get("window"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}

	summary, err := h.ledger.Summarize(r.Context(), time.Now().UTC().Add(-window))
	if err != nil {
		h.logger.Error("metrics summary query failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "audit ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
