package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"ideasim/agent"
	"ideasim/config"
	"ideasim/db"
	"ideasim/events"
	"ideasim/handlers"
	"ideasim/llm"
	"ideasim/metrics"
	"ideasim/middleware"
	"ideasim/prompts"
	"ideasim/sim"
	"ideasim/usage"
)

// App wires the service components from a Config.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      db.Store
	mongo      *db.MongoStore
	metrics    *metrics.Metrics
	publisher  events.Publisher
	sim        *sim.Simulator
	summarizer *agent.SummaryAgent
	prices     usage.PriceTable
}

type appOption func(*appDeps)

type appDeps struct {
	gateway llm.Gateway
}

// withGateway replaces the configured provider.
func withGateway(gw llm.Gateway) appOption {
	return func(d *appDeps) {
		d.gateway = gw
	}
}

// NewApp connects the store, gateway and event publisher.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...appOption) (*App, error) {
	var deps appDeps
	for _, opt := range opts {
		opt(&deps)
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.New(),
		publisher: events.NopPublisher{},
	}

	if cfg.MongoDBURI != "" {
		ms, err := db.Connect(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		a.mongo = ms
		a.store = ms
	} else {
		logger.Warn("MONGODB_URI not set, using in-memory store")
		a.store = db.NewMemoryStore()
	}

	gw := deps.gateway
	if gw == nil {
		var err error
		if gw, err = newGateway(ctx, cfg, logger); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	gw = llm.NewRateLimited(gw, cfg.RateLimit, int(math.Ceil(cfg.RateLimit)))

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.publisher = pub
	}

	prices, err := cfg.Prices()
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("load price table: %w", err)
	}
	a.prices = prices

	registry, err := prompts.NewRegistry()
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}
	invoker := prompts.NewInvoker(gw, registry, cfg.Model(),
		prompts.WithCallTimeout(cfg.CallTimeout),
		prompts.WithMetrics(a.metrics),
		prompts.WithLogger(logger),
	)
	ctl := agent.NewController(invoker, a.store,
		agent.WithPrices(prices),
		agent.WithMetrics(a.metrics),
		agent.WithLogger(logger),
	)

	a.sim = sim.New(ctl, a.store,
		sim.WithPromptIDs(cfg.PromptIDs),
		sim.WithPrices(prices),
		sim.WithTraceReuse(cfg.TraceReuse),
		sim.WithMaxConcurrency(cfg.MaxConcurrency),
		sim.WithRunTimeout(cfg.RunTimeout),
		sim.WithMetrics(a.metrics),
		sim.WithPublisher(a.publisher),
		sim.WithLogger(logger),
	)
	a.summarizer = agent.NewSummaryAgent(ctl, cfg.PromptIDs.Summary)
	return a, nil
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Gateway, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		gw, err := llm.NewGeminiGateway(ctx, cfg.GeminiAPIKey, "")
		if err != nil {
			return nil, fmt.Errorf("create Gemini gateway: %w", err)
		}
		return gw, nil
	default:
		if cfg.LLMAPIKey == "" {
			return nil, errors.New("LLM_API_KEY is required for the openai provider")
		}
		return llm.NewOpenAIGateway(cfg.LLMBaseURL, cfg.LLMAPIKey, llm.WithLogger(logger)), nil
	}
}

// Handler returns the HTTP API behind CORS.
func (a *App) Handler() http.Handler {
	api := handlers.NewAPI(a.sim, a.summarizer,
		handlers.WithMockFallback(a.cfg.MockFallback),
		handlers.WithMetricsHandler(a.metrics.Handler()),
		handlers.WithPrices(a.prices),
		handlers.WithLogger(a.logger),
	)
	return middleware.EnableCORS(a.cfg.AllowedOrigins, api.Routes())
}

// Close releases the publisher and the store connection.
func (a *App) Close(ctx context.Context) {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("Failed to close event publisher", "error", err)
	}
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			a.logger.Warn("Failed to close MongoDB", "error", err)
		}
	}
}
