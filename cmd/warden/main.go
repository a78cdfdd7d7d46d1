package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"tangled.org/studyhub.social/warden/internal/config"
	"tangled.org/studyhub.social/warden/internal/filter"
	"tangled.org/studyhub.social/warden/internal/metrics"
	"tangled.org/studyhub.social/warden/internal/middleware"
	"tangled.org/studyhub.social/warden/internal/moderation"
	"tangled.org/studyhub.social/warden/internal/platform"
	"tangled.org/studyhub.social/warden/internal/tracing"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		setupLogging("info", "console")
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("env", cfg.Environment).
		Msg("Starting warden")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.Error().Err(err).Msg("Sentry init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info().Msg("Sentry error reporting enabled")
		}
	}

	if cfg.TracingEnabled() {
		tp, err := tracing.Init(ctx, tracing.Options{
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize tracing, continuing without it")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Tracer provider shutdown failed")
				}
			}()
			log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("Tracing enabled")
		}
	}

	store, err := openBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := store.close(); err != nil {
			log.Error().Err(err).Msg("Error closing store")
		}
	}()

	roles, err := moderation.NewRoles(cfg.RolesConfig)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RolesConfig).Msg("Failed to load moderator roles")
	}

	seed := append([]string(nil), filter.DefaultTerms...)
	if cfg.TermsFile != "" {
		extra, err := loadTerms(cfg.TermsFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.TermsFile).Msg("Failed to load terms file")
		}
		log.Info().Int("count", len(extra)).Str("file", cfg.TermsFile).Msg("Loaded seed terms from file")
		seed = append(seed, extra...)
	}
	dict, err := filter.NewDictionary(ctx, store.terms, seed...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load term dictionary")
	}

	opts := moderation.Options{
		Roles:     roles,
		BanDays:   cfg.BanDays,
		BlockDays: cfg.BlockDays,
	}
	if cfg.PlatformDSN != "" {
		dir, err := platform.Open(cfg.PlatformDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to platform database")
		}
		defer func() {
			if err := dir.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing platform database")
			}
		}()
		opts.Items = dir.Lookups()
		opts.Messages = dir
		opts.Members = dir
	} else {
		log.Warn().Msg("WARDEN_PLATFORM_DSN not set, item lookups are unavailable")
	}

	eng := newEngine(cfg, store, dict, newClassifier(cfg), opts)

	eng.service.StartPruner(ctx, cfg.PruneInterval)
	go reloadTerms(ctx, dict, cfg.TermReloadInterval)
	go reloadRolesOnHangup(ctx, roles)

	metrics.StartCollector(ctx, metrics.StatsSource{
		ReportCountsByStatus: func() map[string]int {
			counts, err := store.moderation.CountReportsByStatus(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count reports for metrics")
				return nil
			}
			out := make(map[string]int, len(counts))
			for status, n := range counts {
				out[string(status)] = n
			}
			return out
		},
		DictionarySize: dict.Count,
		QueueDepth:     eng.pool.QueueDepth,
	}, cfg.MetricsInterval)

	var ready atomic.Bool
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           opsHandler(&ready),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.ListenAddr).Msg("Starting ops listener")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ops listener failed")
		}
	}()
	ready.Store(true)

	<-ctx.Done()
	log.Info().Msg("Shutting down warden")
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ops listener shutdown error")
	}
	if err := eng.pool.Close(); err != nil {
		log.Error().Err(err).Msg("Worker pool shutdown error")
	}
}

func setupLogging(level, format string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

// opsHandler serves the metrics and health endpoints.
func opsHandler(ready *atomic.Bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})

	var h http.Handler = mux
	h = middleware.Recover(log.Logger)(h)
	h = middleware.LoggingMiddleware(log.Logger)(h)
	return otelhttp.NewHandler(h, "warden-ops")
}

func reloadTerms(ctx context.Context, dict *filter.Dictionary, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dict.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to reload term dictionary")
			}
		}
	}
}

// reloadRolesOnHangup re-reads the moderator roster on SIGHUP. A roster that
// fails to load leaves the previous one in place.
func reloadRolesOnHangup(ctx context.Context, roles *moderation.Roles) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := roles.Reload(); err != nil {
				log.Error().Err(err).Msg("Failed to reload moderator roster")
				continue
			}
			log.Info().Int("moderators", len(roles.ListModerators())).Msg("Moderator roster reloaded")
		}
	}
}

func reportTaskFailure(name string, err error) {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("task", name)
	})
	hub.CaptureException(err)
}
