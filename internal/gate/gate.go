// Package gate implements the evaluation pipeline: cached health probe,
// semantic authority check, parallel validator dispatch, conservative-veto
// aggregation, verdict signing, and ledger persistence. Every exit path,
// including every failure, produces a signed DENY rather than an error the
// caller could mistake for permission.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vigil-labs/vigil/internal/model"
	"github.com/vigil-labs/vigil/internal/ontology"
	"github.com/vigil-labs/vigil/internal/validator"
)

// ErrLedgerUnavailable marks a verdict whose ledger append failed. The
// verdict itself is complete and signed; callers running in complete
// fail-closed mode refuse to serve it.
var ErrLedgerUnavailable = errors.New("gate: ledger unavailable")

// Ontology is the gate's view of the semantic authority backend.
type Ontology interface {
	Ping(ctx context.Context) error
	ValidateSemanticAuthority(ctx context.Context, action model.ActionPrimitive, maturityLevel int) (ontology.Authority, error)
}

// Ledger is the gate's view of the audit store. Append must be atomic: a
// partially written verdict row is worse than a reported failure.
type Ledger interface {
	Append(ctx context.Context, v model.Verdict) error
}

// Signer computes the verdict MAC.
type Signer interface {
	Sign(v model.Verdict) (string, error)
	KeyVersion() string
}

// Config carries the pipeline budgets and thresholds.
type Config struct {
	TotalBudget     time.Duration
	SemanticTimeout time.Duration
	PersistTimeout  time.Duration
	HealthCacheTTL  time.Duration
	CoverageFloor   float64
	MaxInflight     int
}

// Gate is the evaluation pipeline. Safe for concurrent use; per-request
// state lives on the stack of Evaluate.
type Gate struct {
	cfg      Config
	ontology Ontology
	registry *validator.Registry
	signer   Signer
	ledger   Ledger
	logger   *slog.Logger

	inflight chan struct{}

	healthMu      sync.Mutex
	healthChecked time.Time
	healthErr     error
}

// New assembles the pipeline. All collaborators are required.
func New(cfg Config, ont Ontology, reg *validator.Registry, sig Signer, led Ledger, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		ontology: ont,
		registry: reg,
		signer:   sig,
		ledger:   led,
		logger:   logger,
		inflight: make(chan struct{}, cfg.MaxInflight),
	}
}

// Healthy reports whether the ontology backend answered the most recent
// probe. Probe results are cached for the configured TTL so the health
// check cannot become a per-request dependency storm.
func (g *Gate) Healthy(ctx context.Context) bool {
	return g.probeHealth(ctx) == nil
}

func (g *Gate) probeHealth(ctx context.Context) error {
	g.healthMu.Lock()
	defer g.healthMu.Unlock()

	if !g.healthChecked.IsZero() && time.Since(g.healthChecked) < g.cfg.HealthCacheTTL {
		return g.healthErr
	}

	g.healthErr = g.ontology.Ping(ctx)
	g.healthChecked = time.Now()
	if g.healthErr != nil {
		g.logger.Warn("ontology health probe failed", "error", g.healthErr)
	}
	return g.healthErr
}

// evaluation is the per-request scratch state finalize folds into a Verdict.
type evaluation struct {
	action  model.ActionPrimitive
	agent   model.AgentContext
	started time.Time

	semantic   model.SemanticVerdict
	semanticOK bool
	results    []model.ValidatorVerdict
	timings    model.ComponentTimings
}

// Evaluate runs one action through the full pipeline and returns the signed
// verdict. The returned error is non-nil only for ErrLedgerUnavailable;
// every other failure is folded into the verdict itself as a DENY with a
// named reason.
func (g *Gate) Evaluate(ctx context.Context, action model.ActionPrimitive, agent model.AgentContext) (v model.Verdict, err error) {
	ev := &evaluation{action: action, agent: agent, started: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("evaluation panic", "trace_id", agent.TraceID, "panic", fmt.Sprintf("%v", r))
			v, err = g.finalize(ctx, ev, model.DecisionDeny, model.ReasonGateInternalError)
		}
	}()

	select {
	case g.inflight <- struct{}{}:
		defer func() { <-g.inflight }()
	default:
		return g.finalize(ctx, ev, model.DecisionDeny, model.ReasonOverload)
	}

	bctx, cancel := context.WithTimeout(ctx, g.cfg.TotalBudget)
	defer cancel()

	// Stage 1: cached backend health.
	stageStart := time.Now()
	healthErr := g.probeHealth(bctx)
	ev.timings.HealthMs = msSince(stageStart)
	if healthErr != nil {
		return g.finalize(ctx, ev, model.DecisionDeny, model.ReasonValidatorUnhealthy)
	}

	// Stage 2: semantic authority.
	stageStart = time.Now()
	sctx, scancel := context.WithTimeout(bctx, g.cfg.SemanticTimeout)
	auth, semErr := g.ontology.ValidateSemanticAuthority(sctx, action, agent.MaturityLevel)
	scancel()
	ev.timings.SemanticMs = msSince(stageStart)
	if semErr != nil {
		reason := model.ReasonSemanticError
		switch {
		case bctx.Err() != nil:
			reason = model.ReasonGateTimeout
		case errors.Is(semErr, context.DeadlineExceeded):
			reason = model.ReasonSemanticTimeout
		}
		g.logger.Warn("semantic check failed", "trace_id", agent.TraceID, "reason", reason, "error", semErr)
		return g.finalize(ctx, ev, model.DecisionDeny, reason)
	}
	ev.semantic = auth.Verdict
	ev.semanticOK = true

	if auth.Verdict.Decision == model.DecisionDeny {
		return g.finalize(ctx, ev, model.DecisionDeny, auth.Verdict.Reason)
	}

	// Stage 3: domain validators.
	validators := g.registry.Lookup(action.Domain, action.Verb)
	if len(validators) == 0 && auth.RequiresValidation {
		return g.finalize(ctx, ev, model.DecisionDeny, model.ReasonNoValidators)
	}

	stageStart = time.Now()
	ev.results = dispatch(bctx, validators, action)
	ev.timings.ValidatorsMs = msSince(stageStart)

	if bctx.Err() != nil {
		return g.finalize(ctx, ev, model.DecisionDeny, model.ReasonGateTimeout)
	}

	// Stage 4: conservative veto.
	decision, reason := Aggregate(ev.semantic, ev.results, g.cfg.CoverageFloor)
	return g.finalize(ctx, ev, decision, reason)
}

// finalize builds, signs, and persists the verdict. It runs on every exit
// path, so even an OVERLOAD or internal-error denial leaves a signed ledger
// row. Persistence uses its own timeout detached from the request budget:
// an audit write must not be cancelled because the caller gave up.
func (g *Gate) finalize(ctx context.Context, ev *evaluation, decision model.Decision, reason string) (model.Verdict, error) {
	v := model.Verdict{
		TraceID:          ev.agent.TraceID,
		Decision:         decision,
		Reason:           reason,
		Action:           ev.action,
		AgentID:          ev.agent.AgentID,
		AgentMaturity:    ev.agent.MaturityLevel,
		Semantic:         ev.semantic,
		ValidatorResults: ev.results,
		KeyVersion:       g.signer.KeyVersion(),
		EmittedAt:        time.Now().UTC(),
	}
	if v.ValidatorResults == nil {
		v.ValidatorResults = []model.ValidatorVerdict{}
	}

	signStart := time.Now()
	sig, err := g.signer.Sign(v)
	if err != nil {
		g.logger.Error("verdict signing failed", "trace_id", v.TraceID, "error", err)
		v.Decision = model.DecisionDeny
		v.Reason = model.ReasonSignatureError
		v.Signature = ""
	} else {
		v.Signature = sig
	}
	ev.timings.SignMs = msSince(signStart)

	persisted := g.persist(ctx, ev, &v)

	v.ComponentTimings = ev.timings
	v.GovernanceLatencyMs = ev.timings.TotalMs()
	v.Certifiable = v.Signature != "" && persisted && ev.semanticOK &&
		withinDeclaredTimeouts(v.ValidatorResults) &&
		v.GovernanceLatencyMs <= float64(g.cfg.TotalBudget.Milliseconds())

	g.logger.Info("verdict emitted",
		"trace_id", v.TraceID,
		"decision", v.Decision,
		"reason", v.Reason,
		"domain", v.Action.Domain,
		"verb", v.Action.Verb,
		"latency_ms", v.GovernanceLatencyMs,
		"certifiable", v.Certifiable,
	)

	if !persisted {
		return v, ErrLedgerUnavailable
	}
	return v, nil
}

// persist appends the verdict to the ledger. On failure the verdict is
// downgraded to DENY/LEDGER_ERROR and re-signed, so a caller who ignores
// the error still cannot read the unaudited outcome as permission.
func (g *Gate) persist(ctx context.Context, ev *evaluation, v *model.Verdict) bool {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.PersistTimeout)
	defer cancel()

	persistStart := time.Now()
	err := g.ledger.Append(pctx, *v)
	ev.timings.PersistMs = msSince(persistStart)
	if err == nil {
		return true
	}

	g.logger.Error("CRITICAL: ledger append failed, verdict not audited",
		"trace_id", v.TraceID, "decision", v.Decision, "error", err)

	v.Decision = model.DecisionDeny
	v.Reason = model.ReasonLedgerError
	if sig, serr := g.signer.Sign(*v); serr == nil {
		v.Signature = sig
	} else {
		v.Signature = ""
	}
	return false
}

// withinDeclaredTimeouts reports whether every validator slot holds a real
// result rather than a TIMEOUT denial synthesised by the runner. A verdict
// built on an abandoned validator is still a valid DENY, but it cannot be
// certified as a complete evaluation.
func withinDeclaredTimeouts(results []model.ValidatorVerdict) bool {
	for _, r := range results {
		if r.RuleID == model.RuleTimeout {
			return false
		}
	}
	return true
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
