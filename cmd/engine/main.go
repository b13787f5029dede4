// engine is the process entrypoint for the event-inquiry conversation
// engine. It wires App from environment configuration and runs it until
// SIGINT/SIGTERM. The HTTP façade that accepts inbound client email and
// manager-review decisions is out of scope (§1/§6) — this binary exists to
// host the core and its optional health/status endpoint; a real deployment
// embeds App.Orchestrator() behind its own transport.
//
// # Configuration (environment variables)
//
//	ENGINE_DATABASE_PATH       SQLite file path (default: "./engine.db")
//	ENGINE_VENUE_PATH          Venue catalog YAML path (required)
//	ENGINE_HTTP_ADDR           Health/status server address, e.g. ":8080" (optional)
//	ENGINE_LLM_API_KEY         LLM provider API key (optional — falls back to deterministic stubs)
//	ENGINE_LLM_BASE_URL        OpenAI-compatible base URL (optional)
//	ENGINE_LLM_MODEL           Chat model name (optional)
//	ENGINE_LLM_TIMEOUT         LLM call timeout (default: "20s")
//	ENGINE_RATE_LIMIT          LLM calls per thread per window (default: llm.DefaultRateLimit)
//	ENGINE_RATE_LIMIT_WINDOW   Rate limit window (default: "1m")
//	ENGINE_DAILY_TOKEN_BUDGET  LLM tokens per thread per UTC day (default: llm.DefaultTokenBudget)
//	VERBALIZER_TONE            "plain" or "empathetic" (default: "empathetic")
//	ENGINE_HIL_TASK_TTL        Pending HIL task time-to-live (default: "72h")
//	ENGINE_HIL_CONSOLE         Enable the stdin approve/reject console (default: false)
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openevent-ai/conversation-engine/common/environment"
	"github.com/openevent-ai/conversation-engine/common/version"
	"github.com/openevent-ai/conversation-engine/internal/engine/app"
	"github.com/openevent-ai/conversation-engine/internal/engine/llm"
	"github.com/openevent-ai/conversation-engine/internal/engine/verbalize"
)

func main() {
	fmt.Printf("Conversation Engine\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	engine, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Stop()

	if environment.BoolOr("ENGINE_HIL_CONSOLE", false) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := engine.RunHilConsole(ctx, os.Stdin, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "hil console stopped: %v\n", err)
			}
		}()
	}

	if err := engine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running engine: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*app.Config, error) {
	venuePath, err := environment.RequiredString("ENGINE_VENUE_PATH")
	if err != nil {
		return nil, err
	}

	tone := verbalize.Tone(environment.StringOr("VERBALIZER_TONE", string(verbalize.DefaultTone)))
	if environment.BoolOr("PLAIN_VERBALIZER", false) {
		tone = verbalize.TonePlain
	}

	return &app.Config{
		DatabasePath:        environment.StringOr("ENGINE_DATABASE_PATH", "./engine.db"),
		VenuePath:           venuePath,
		HTTPAddr:            environment.StringOr("ENGINE_HTTP_ADDR", ""),
		Env:                 environment.StringOr("ENV", "dev"),
		FallbackDiagnostics: environment.BoolOr("OE_FALLBACK_DIAGNOSTICS", false),
		RateLimit:        environment.IntOr("ENGINE_RATE_LIMIT", 0),
		RateLimitWindow:  environment.DurationOr("ENGINE_RATE_LIMIT_WINDOW", time.Minute),
		DailyTokenBudget: environment.IntOr("ENGINE_DAILY_TOKEN_BUDGET", 0),
		VerbalizerTone:   tone,
		HilTaskTTL:       environment.DurationOr("ENGINE_HIL_TASK_TTL", 72*time.Hour),
		LLM: llm.Config{
			APIKey:  environment.StringOr("ENGINE_LLM_API_KEY", ""),
			BaseURL: environment.StringOr("ENGINE_LLM_BASE_URL", ""),
			Model:   environment.StringOr("ENGINE_LLM_MODEL", ""),
			Timeout: environment.DurationOr("ENGINE_LLM_TIMEOUT", 20*time.Second),
		},
	}, nil
}
