package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/agent"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/llm"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/notify"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/ops"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/store"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/tools"
)

// app holds the components shared by serve and ask.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	llm       llm.Client
	loop      *agent.Loop
	deps      ops.Deps
	tasks     *ops.SideTasks
	mqtt      *notify.MQTTPublisher // nil when MQTT is not configured
	publisher notify.Publisher
}

// openStore opens the configured database, creating its directory.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "driver", cfg.Database.Driver, "path", cfg.Database.Path)
	return st, nil
}

// newApp wires storage, the model client, the loop and the operation
// dependencies. The MQTT publisher is created but not connected; serve
// calls Start on it.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	systemPrompt := ""
	if path := cfg.Agent.SystemPromptFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		systemPrompt = strings.TrimSpace(string(data))
		logger.Info("system prompt loaded", "path", path, "bytes", len(data))
	}

	a := &app{cfg: cfg, logger: logger, store: st}
	a.llm = createLLMClient(cfg, logger)
	a.loop = agent.NewLoop(logger, a.llm, st, agent.Config{
		Model:         cfg.Models.Default,
		MaxRounds:     cfg.Agent.MaxRounds,
		Temperature:   cfg.Agent.Temperature,
		ToolTimeout:   time.Duration(cfg.Agent.ToolTimeoutSec) * time.Second,
		ModelTimeout:  time.Duration(cfg.Agent.ModelTimeoutSec) * time.Second,
		ParallelTools: cfg.Agent.ParallelTools,
		Sanitize: agent.SanitizeOptions{
			Window:            cfg.Agent.HistoryWindow,
			MinPrintableRatio: cfg.Agent.PrintableRatio,
		},
		SystemPrompt: systemPrompt,
		Business:     cfg.Business.Name,
		Currency:     cfg.Business.Currency,
	})

	var mailer notify.Mailer = notify.Discard{}
	if cfg.Email.SMTP.Configured() {
		mailer = notify.NewSMTPMailer(cfg.Email.SMTP, cfg.Email.From)
		logger.Info("email enabled", "host", cfg.Email.SMTP.Host, "from", cfg.Email.From)
	} else {
		logger.Info("email disabled (not configured)")
	}

	a.publisher = notify.Discard{}
	if cfg.MQTT.Configured() {
		a.mqtt = notify.NewMQTTPublisher(cfg.MQTT, logger)
		a.publisher = a.mqtt
	}

	a.tasks = ops.NewSideTasks(logger, 0)
	a.deps = ops.Deps{
		Store:     st,
		Business:  cfg.Business,
		Mailer:    mailer,
		Publisher: a.publisher,
		Tasks:     a.tasks,
		Logger:    logger,
	}
	return a, nil
}

// registries returns the per-request registry factory.
func (a *app) registries() agent.RegistryFactory {
	return func(p auth.Principal) (*tools.Registry, error) {
		return ops.NewRegistry(a.deps, p)
	}
}

// close waits for side tasks and closes the store.
func (a *app) close() {
	a.tasks.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store failed", "error", err)
	}
}

// createLLMClient builds a multi-provider client from the configuration.
// Each model listed in config is mapped to its provider. Models not
// explicitly mapped fall through to Ollama, the default backend.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.Anthropic.APIKey != "" {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("Anthropic provider configured")
	}
	if cfg.OpenAI.APIKey != "" || cfg.OpenAI.BaseURL != "" {
		multi.AddProvider("openai", llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger))
		logger.Info("OpenAI provider configured", "base_url", cfg.OpenAI.BaseURL)
	}

	for _, m := range cfg.Models.Available {
		provider := m.Provider
		if provider == "" {
			provider = "ollama"
		}
		multi.AddModel(m.Name, provider)
	}

	defaultProvider := multi.ProviderFor(cfg.Models.Default)
	if defaultProvider == "" {
		defaultProvider = "ollama"
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", defaultProvider)

	return multi
}
