// Package vigil is the public API for embedding the Vigil validation gate.
//
// Platform consumers import this package to run the gate in-process instead
// of deploying the standalone binary:
//
//	app, err := vigil.New(
//	    vigil.WithVersion(version),
//	    vigil.WithLogger(logger),
//	    vigil.WithValidators("aviation", "reroute_flight", myValidator{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: vigil (root) imports
// internal/*, but internal/* never imports vigil (root).
package vigil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/vigil-labs/vigil/api"
	"github.com/vigil-labs/vigil/internal/auth"
	"github.com/vigil-labs/vigil/internal/config"
	"github.com/vigil-labs/vigil/internal/gate"
	"github.com/vigil-labs/vigil/internal/ledger"
	"github.com/vigil-labs/vigil/internal/ontology"
	"github.com/vigil-labs/vigil/internal/ratelimit"
	"github.com/vigil-labs/vigil/internal/server"
	"github.com/vigil-labs/vigil/internal/signer"
	"github.com/vigil-labs/vigil/internal/telemetry"
	"github.com/vigil-labs/vigil/internal/validator"
	"github.com/vigil-labs/vigil/migrations"
)

const shutdownTimeout = 10 * time.Second

// App is the Vigil server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	led          ledger.Ledger
	ontClient    *ontology.Client // nil when WithOntology supplied an override
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the gate. It connects to the ledger and the ontology store,
// runs migrations, wires the evaluation pipeline, and returns a ready-to-run
// App. It does NOT start any goroutines or accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.ledgerURL != "" {
		cfg.LedgerURL = o.ledgerURL
	}
	if o.ontologyURL != "" {
		cfg.OntologyURL = o.ontologyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("vigil starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to the audit ledger and run migrations.
	led, err := ledger.Open(context.Background(), cfg.LedgerURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("ledger: %w", err)
	}
	if pg, ok := led.(*ledger.Postgres); ok {
		if o.skipMigrations {
			logger.Info("embedded migrations skipped by option")
		} else if err := pg.RunMigrations(context.Background(), migrations.FS); err != nil {
			_ = led.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	// Connect to the ontology graph, unless an override was supplied.
	ont := o.ontology
	var ontClient *ontology.Client
	if ont == nil {
		ontClient, err = ontology.New(context.Background(), cfg.OntologyURL, cfg.OntologyUser, cfg.OntologyPassword, logger)
		if err != nil {
			_ = led.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("ontology: %w", err)
		}
		ont = ontClient
	}

	// Verdict signer.
	sig, err := signer.New(cfg.SignatureSecret, cfg.KeyVersion)
	if err != nil {
		closeAll(ontClient, led, otelShutdown)
		return nil, fmt.Errorf("signer: %w", err)
	}

	// Validator registry: built-in domain validators plus option registrations.
	registry := validator.NewRegistry(cfg.ValidatorTimeout)
	for _, reg := range o.registrations {
		registry.Register(reg.domain, reg.verb, reg.validators...)
	}

	// Gate metrics.
	metrics, err := telemetry.NewGateMetrics("vigil/gate")
	if err != nil {
		closeAll(ontClient, led, otelShutdown)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// Optional bearer-token auth.
	var verifier *auth.Verifier
	if cfg.JWTPublicKeyPath != "" {
		verifier, err = auth.NewVerifier(cfg.JWTPublicKeyPath)
		if err != nil {
			closeAll(ontClient, led, otelShutdown)
			return nil, fmt.Errorf("auth: %w", err)
		}
		logger.Info("auth: bearer tokens required", "public_key", cfg.JWTPublicKeyPath)
	} else {
		logger.Info("auth: disabled (no VIGIL_JWT_PUBLIC_KEY)")
	}

	// Rate limiter for the read endpoints.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// The evaluation pipeline.
	g := gate.New(gate.Config{
		TotalBudget:     cfg.TotalBudget,
		SemanticTimeout: cfg.SemanticTimeout,
		PersistTimeout:  cfg.PersistTimeout,
		HealthCacheTTL:  cfg.HealthCacheTTL,
		CoverageFloor:   cfg.CoverageFloor,
		MaxInflight:     cfg.MaxInflight,
	}, ont, registry, sig, led, logger)

	srv := server.New(server.ServerConfig{
		Gate:                g,
		Ledger:              led,
		Logger:              logger,
		Verifier:            verifier,
		Limiter:             limiter,
		Metrics:             metrics,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CompleteFailClosed:  cfg.CompleteFailClosed,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		led:          led,
		ontClient:    ontClient,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically; callers
// should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops accepting HTTP requests, drains in-flight evaluations, then
// closes the ontology driver, the ledger, and the OTEL provider. In-flight
// ledger appends are already detached from request contexts, so draining the
// HTTP server is enough to let them finish.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("vigil shutting down")

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	if a.ontClient != nil {
		if err := a.ontClient.Close(ctx); err != nil {
			a.logger.Error("ontology close error", "error", err)
		}
	}
	if err := a.led.Close(ctx); err != nil {
		a.logger.Error("ledger close error", "error", err)
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("vigil stopped")
	return nil
}

func closeAll(ontClient *ontology.Client, led ledger.Ledger, otelShutdown telemetry.Shutdown) {
	if ontClient != nil {
		_ = ontClient.Close(context.Background())
	}
	_ = led.Close(context.Background())
	_ = otelShutdown(context.Background())
}
