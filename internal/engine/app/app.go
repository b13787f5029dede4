// Package app wires the conversation engine's collaborators — the catalog
// store, LLM adapters, unified detection, the step-handler context, the HIL
// queue, and the orchestrator — into a single long-lived process and
// exposes the optional health/status HTTP endpoint. The HTTP façade that
// actually routes client email and manager-review traffic to the
// Orchestrator is out of scope (§1); App only owns process lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/detect"
	"github.com/openevent-ai/conversation-engine/internal/engine/hil"
	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
	"github.com/openevent-ai/conversation-engine/internal/engine/orchestrator"
	"github.com/openevent-ai/conversation-engine/internal/engine/steps"
	"github.com/openevent-ai/conversation-engine/internal/engine/store"
	"github.com/openevent-ai/conversation-engine/internal/engine/verbalize"
)

// Config holds everything needed to stand up one engine process.
type Config struct {
	// DatabasePath is the SQLite file backing conversations, events, the
	// HIL queue, and the runtime config table.
	DatabasePath string

	// VenuePath is the YAML file describing rooms, products, menus, and
	// operating hours (§4.1).
	VenuePath string

	// LLM configures the OpenAI-compatible provider used for intent
	// classification, entity extraction, and verbalization. Leave APIKey
	// empty to run with no live provider — the Guarded wrapper falls back
	// to deterministic stubs on every call (§4.2).
	LLM llm.Config

	// RateLimit and RateLimitWindow bound LLM adapter calls per thread.
	// Zero values fall back to llm.DefaultRateLimit / one minute.
	RateLimit       int
	RateLimitWindow time.Duration

	// DailyTokenBudget bounds LLM token usage per thread per UTC day. Zero
	// falls back to llm.DefaultTokenBudget.
	DailyTokenBudget int

	// VerbalizerTone selects plain or empathetic rewriting (§4.5). Empty
	// defaults to verbalize.DefaultTone (empathetic); tests should pass
	// verbalize.TonePlain for deterministic output.
	VerbalizerTone verbalize.Tone

	// HilTaskTTL bounds how long a pending HIL task stays valid. Zero
	// falls back to model.DefaultHilTTL.
	HilTaskTTL time.Duration

	// HTTPAddr is the TCP address for the optional health/status HTTP
	// server (e.g. ":8080"). Empty disables it.
	HTTPAddr string

	// Env is one of "dev", "staging", "prod" (§6 ENV). Controls fallback
	// diagnostic verbosity (§4.2, §7).
	Env string

	// FallbackDiagnostics forces verbose fallback diagnostics even when
	// Env == "prod" (§6 OE_FALLBACK_DIAGNOSTICS).
	FallbackDiagnostics bool

	// Now overrides the clock used throughout the engine. Nil defaults to
	// time.Now (tests only — production always leaves this nil).
	Now func() time.Time
}

// App is one running engine process: the persistent store, the catalog,
// the LLM adapters, and the Orchestrator that ties them together, plus the
// optional health server.
type App struct {
	config       *Config
	store        *store.Store
	configStore  catalog.ConfigStore
	venue        *catalog.Venue
	hilStore     *hil.Store
	gate         *hil.Gate
	orchestrator *orchestrator.Orchestrator
	healthServer *HealthServer
}

// New builds an App from Config. The database is opened (and migrated) and
// the venue catalog is loaded, but nothing is started yet — call Run to
// bring up the optional health server and block until shutdown.
func New(cfg *Config) (*App, error) {
	slog.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	slog.Info("loading venue catalog", "path", cfg.VenuePath)
	venue, err := catalog.LoadVenue(cfg.VenuePath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load venue catalog: %w", err)
	}

	configStore := catalog.NewConfigStore(st)

	provider := llm.New(cfg.LLM)
	limiter := llm.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	budget := llm.NewTokenBudget(cfg.DailyTokenBudget)
	guarded := llm.NewGuarded(provider, limiter, budget)

	detector := detect.New(guarded)
	verbalizer := verbalize.New(guarded, cfg.VerbalizerTone)

	hilStore := hil.NewStore(st)
	gate := hil.NewGate(hilStore, cfg.HilTaskTTL)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	hc := &steps.Context{
		Venue:               venue,
		Config:              configStore,
		Store:               st,
		LLM:                 guarded,
		Verbalizer:          verbalizer,
		Now:                 now,
		Env:                 cfg.Env,
		FallbackDiagnostics: cfg.FallbackDiagnostics,
	}

	orch := orchestrator.New(hc, st, detector, gate)

	var healthServer *HealthServer
	if cfg.HTTPAddr != "" {
		healthServer = NewHealthServer(cfg.HTTPAddr, hilStore)
		slog.Info("health server configured", "addr", cfg.HTTPAddr)
	}

	return &App{
		config:       cfg,
		store:        st,
		configStore:  configStore,
		venue:        venue,
		hilStore:     hilStore,
		gate:         gate,
		orchestrator: orch,
		healthServer: healthServer,
	}, nil
}

// Orchestrator returns the wired Orchestrator. A transport-specific façade
// (HTTP, CLI, or a test harness) calls its exported methods directly; App
// itself never dispatches inbound messages.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Run starts the optional health server and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("conversation engine running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop releases the App's resources: the health server, then the database.
func (a *App) Stop() {
	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}
	slog.Info("closing database")
	a.store.Close()
}

var _ http.Handler = (*HealthServer)(nil)
