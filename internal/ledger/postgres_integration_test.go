package ledger_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-labs/vigil/internal/ledger"
	"github.com/vigil-labs/vigil/internal/model"
	"github.com/vigil-labs/vigil/internal/testutil"
	"github.com/vigil-labs/vigil/migrations"
)

// testLedger holds the shared Postgres ledger for all tests in this package.
var testLedger *ledger.Postgres

func TestMain(m *testing.M) {
	if os.Getenv("VIGIL_SKIP_CONTAINER_TESTS") != "" {
		os.Exit(0)
	}

	tc := testutil.MustStartTimescaleDB()
	defer tc.Terminate()

	led, err := tc.NewTestLedger(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	testLedger = led

	code := m.Run()
	_ = testLedger.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func pgVerdict(traceID string, decision model.Decision) model.Verdict {
	return model.Verdict{
		TraceID:  traceID,
		Decision: decision,
		Reason:   model.ReasonAllValidatorsPassed,
		Action: model.ActionPrimitive{
			Verb:       "initiate_payment",
			Resource:   "account:ES91",
			Domain:     "fintech",
			Parameters: map[string]any{"amount": 350.0},
		},
		AgentID:       "agent-9",
		AgentMaturity: 4,
		Semantic: model.SemanticVerdict{
			Decision:           model.DecisionAllow,
			OntologyMatch:      true,
			MaturityAuthorized: true,
			Coverage:           1.0,
			Reason:             model.ReasonSemanticOK,
		},
		ValidatorResults: []model.ValidatorVerdict{
			{ValidatorName: "strong_customer_auth", Decision: decision, RuleID: "PSD2 RTS 2018/389", Rationale: "checked", LatencyMs: 0.1, Confidence: 1.0},
		},
		GovernanceLatencyMs: 8.0,
		Certifiable:         true,
		Signature:           "cafebabe",
		KeyVersion:          "v1",
		EmittedAt:           time.Now().UTC(),
	}
}

func TestPostgresAppendAndRecent(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, testLedger.Append(ctx, pgVerdict("pg-1", model.DecisionAllow)))
	require.NoError(t, testLedger.Append(ctx, pgVerdict("pg-2", model.DecisionDeny)))

	got, err := testLedger.Recent(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)

	seen := map[string]model.Verdict{}
	for _, v := range got {
		seen[v.TraceID] = v
	}
	v1, ok := seen["pg-1"]
	require.True(t, ok)
	assert.Equal(t, model.DecisionAllow, v1.Decision)
	assert.Equal(t, "initiate_payment", v1.Action.Verb)
	assert.Equal(t, map[string]any{"amount": 350.0}, v1.Action.Parameters)
	require.Len(t, v1.ValidatorResults, 1)
	assert.Equal(t, "strong_customer_auth", v1.ValidatorResults[0].ValidatorName)
	assert.Equal(t, "cafebabe", v1.Signature)
}

func TestPostgresSummarize(t *testing.T) {
	ctx := context.Background()
	since := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, testLedger.Append(ctx, pgVerdict("pg-sum-1", model.DecisionEscalate)))

	s, err := testLedger.Summarize(ctx, since)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.Total, int64(1))
	assert.GreaterOrEqual(t, s.Escalated, int64(1))
	assert.Greater(t, s.AvgLatencyMs, 0.0)
	assert.Greater(t, s.CertifiableRate, 0.0)
}

func TestPostgresPing(t *testing.T) {
	assert.NoError(t, testLedger.Ping(context.Background()))
}

func TestPostgresMigrationsIdempotent(t *testing.T) {
	// Second run must skip the already-applied files, not fail.
	assert.NoError(t, testLedger.RunMigrations(context.Background(), migrations.FS))
}
