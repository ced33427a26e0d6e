// Command proxy serves Reddit thread and search JSON to browser clients with
// CORS, bounded upstream retries, and a shared response cache.
//
// @title       Redditify Proxy API
// @version     1.0
// @description Read-only edge proxy for the Reddit JSON API.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/redditify-proxy/docs"
	"github.com/tbourn/redditify-proxy/internal/cache"
	"github.com/tbourn/redditify-proxy/internal/config"
	httpapi "github.com/tbourn/redditify-proxy/internal/http"
	"github.com/tbourn/redditify-proxy/internal/observability"
	"github.com/tbourn/redditify-proxy/internal/services"
	"github.com/tbourn/redditify-proxy/internal/sysutil"
	"github.com/tbourn/redditify-proxy/internal/upstream"
	"github.com/tbourn/redditify-proxy/internal/validate"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("proxy exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open %s cache: %w", cfg.Cache.Backend, err)
	}

	validator, err := validate.New(cfg.Upstream.BaseURL, cfg.Upstream.Domain)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build validator: %w", err)
	}

	fetcher := upstream.New(&http.Client{Timeout: cfg.Upstream.Timeout}, cfg.Upstream.UserAgent)
	fetcher.MaxRetries = cfg.Upstream.MaxRetries
	fetcher.BaseDelay = cfg.Upstream.RetryDelay

	bg := &services.Background{}
	svc := &services.ProxyService{
		Validator:    validator,
		Fetcher:      fetcher,
		Store:        store,
		Background:   bg,
		Namespace:    cfg.Cache.Namespace,
		TTL:          cfg.Cache.TTL,
		StoreTimeout: cfg.Cache.StoreTimeout,
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 2)
	serve := func(name string, s *http.Server) {
		log.Info().Str("addr", s.Addr).Str("listener", name).Msg("listening")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener: %w", name, err)
		}
	}
	go serve("api", srv)

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
		go serve("metrics", metricsSrv)
	}

	log.Info().
		Str("version", ver).
		Str("cache_backend", cfg.Cache.Backend).
		Str("upstream", validator.Origin()).
		Msg("proxy started")

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	return shutdown(cfg.ShutdownTimeout, srv, metricsSrv, bg, store, shutdownTracing, runErr)
}

// shutdown stops accepting requests, lets pending cache stores finish, then
// releases the cache and flushes traces, all within timeout.
func shutdown(
	timeout time.Duration,
	srv, metricsSrv *http.Server,
	bg *services.Background,
	store cache.Store,
	shutdownTracing func(context.Context) error,
	runErr error,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errs := []error{runErr}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	if err := bg.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("pending cache stores abandoned")
	}
	if err := store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Warn().Err(err).Msg("trace flush failed")
	}

	log.Info().Msg("proxy stopped")
	return errors.Join(errs...)
}
