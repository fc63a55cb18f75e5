// Package main is the entry point for the booking API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/booking"
	"github.com/capitalize-ai/tixagent/internal/calendar"
	"github.com/capitalize-ai/tixagent/internal/config"
	"github.com/capitalize-ai/tixagent/internal/discovery"
	"github.com/capitalize-ai/tixagent/internal/handler"
	"github.com/capitalize-ai/tixagent/internal/intent"
	"github.com/capitalize-ai/tixagent/internal/llm"
	"github.com/capitalize-ai/tixagent/internal/mailer"
	"github.com/capitalize-ai/tixagent/internal/middleware"
	"github.com/capitalize-ai/tixagent/internal/mint"
	"github.com/capitalize-ai/tixagent/internal/model"
	natsclient "github.com/capitalize-ai/tixagent/internal/nats"
	"github.com/capitalize-ai/tixagent/internal/service"
	"github.com/capitalize-ai/tixagent/internal/session"
	"github.com/capitalize-ai/tixagent/pkg/logger"
	"github.com/capitalize-ai/tixagent/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting booking API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "tixagent", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize session store", zap.Error(err))
		os.Exit(1)
	}

	// The journal is optional: bookings proceed when NATS is unavailable.
	var (
		journal service.Journal
		natsCon handler.Connectivity
	)
	if cfg.NATSEnabled {
		natsClient, err := connectJournal(ctx, cfg, log)
		if err != nil {
			log.Warn("booking journal disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			j := natsclient.NewJournal(natsClient)
			if err := j.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure journal stream", zap.Error(err))
			}
			journal = j
			natsCon = natsClient
		}
	}

	chat := newLLM(ctx, cfg, log)
	orch := booking.New(booking.Config{
		VenueWallet:   cfg.VenueWallet,
		CustodyWallet: cfg.CustodyWallet,
		PendingTTL:    cfg.PendingBookingTTL,
		ChatModel:     cfg.LLMModel,
	}, newDependencies(cfg, chat, log), log.Named("booking"))

	turnSvc := service.NewTurnService(store, orch, journal, log.Named("service"))

	healthHandler := handler.NewHealthHandler(store, natsCon)
	sessionHandler := handler.NewSessionHandler(turnSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.AllowAnonymous))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.UserRateLimit(cfg.TurnRateLimit, cfg.RateLimitWindow))
			sessionHandler.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func newStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.SessionStore {
	case "memory", "":
		return session.NewMemoryStore(cfg.SessionTTL), nil
	case "redis":
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStore(client, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func connectJournal(ctx context.Context, cfg *config.Config, log *logger.Logger) (*natsclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log.Named("nats"))
}

// newLLM returns the configured provider, or nil when no key is set. The
// classifier, extractor and chat replies share one client.
func newLLM(ctx context.Context, cfg *config.Config, log *logger.Logger) llm.Client {
	provider, key := cfg.APIKey()
	if key == "" {
		log.Warn("no LLM provider configured, using keyword routing and heuristic extraction")
		return nil
	}
	client, err := llm.NewClient(ctx, llm.Provider(provider), key)
	if err != nil {
		log.Warn("failed to create LLM client, using keyword routing", zap.String("provider", provider), zap.Error(err))
		return nil
	}
	if cfg.LLMModel != "" && !slices.Contains(client.Models(), cfg.LLMModel) {
		log.Warn("LLM_MODEL is not a known model for the provider", zap.String("model", cfg.LLMModel))
	}
	log.Info("LLM provider configured", zap.String("provider", client.Name()))
	return client
}

func newDependencies(cfg *config.Config, chat llm.Client, log *logger.Logger) booking.Dependencies {
	var deps booking.Dependencies

	if chat != nil {
		deps.Classifier = intent.NewClassifier(intent.NewLLMDelegate(chat, cfg.LLMModel), log.Named("intent"))
		deps.Extractor = intent.NewExtractor(chat, cfg.LLMModel, log.Named("intent"))
		deps.Chat = chat
	}

	var fallback []model.Event
	if cfg.StaticEventsFile != "" {
		events, err := discovery.LoadEvents(cfg.StaticEventsFile)
		if err != nil {
			log.Warn("failed to load static events, using built-in list", zap.Error(err))
		} else {
			fallback = events
		}
	}
	deps.Fallback = discovery.Fallback(fallback)
	if cfg.DiscoveryURL != "" {
		deps.Discoverer = discovery.NewClient(cfg.DiscoveryURL, cfg.DiscoveryTimeout, cfg.DiscoveryRPS, log.Named("discovery"))
	}

	cal := calendar.NewClient(log.Named("calendar"))
	deps.Availability = cal
	deps.CalendarWriter = cal

	if cfg.MintServiceURL != "" {
		deps.Minter = mint.NewClient(mint.Config{
			URL:     cfg.MintServiceURL,
			APIKey:  cfg.MintAPIKey,
			Cluster: cfg.MintCluster,
			Timeout: cfg.MintTimeout,
		}, log.Named("mint"))
	} else {
		log.Warn("MINT_SERVICE_URL not set, bookings cannot complete")
	}

	if cfg.SMTPHost != "" {
		deps.Mailer = mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log.Named("mailer"))
	}

	return deps
}
