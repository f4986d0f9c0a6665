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

	"github.com/joho/godotenv"

	"nachtplan/internal/catalog"
	"nachtplan/internal/config"
	"nachtplan/internal/llm"
	"nachtplan/internal/logging"
	"nachtplan/internal/relay"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Msg(".env not loaded")
	}
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("relay failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadRelay()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer closeStore()

	gateway := llm.NewGateway(llm.GatewayConfig{
		URL:      cfg.GatewayURL,
		APIKey:   cfg.GatewayAPIKey,
		Model:    cfg.GatewayModel,
		Referrer: cfg.OpenRouterReferrer,
		Title:    cfg.OpenRouterTitle,
	})
	if !gateway.Configured() {
		logging.Warn().Msg("GATEWAY_API_KEY is not set; every planner request will fail")
	}

	handler := relay.NewHandler(relay.Deps{
		Catalog: store,
		Gateway: gateway,
		Limits:  catalog.Limits{Venues: cfg.VenueLimit, Events: cfg.EventLimit},
	})
	router := relay.NewRouter(relay.RouterConfig{
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, handler)

	// No WriteTimeout: streamed answers may run for minutes.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", cfg.Addr).
			Str("catalog", string(cfg.CatalogBackend)).
			Str("model", gateway.Model()).
			Msg("relay listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logging.Info().Msg("relay stopped")
	return nil
}

func openCatalog(ctx context.Context, cfg *config.Relay) (catalog.Store, func(), error) {
	switch cfg.CatalogBackend {
	case config.CatalogSQLite:
		s, err := catalog.OpenSQLite(cfg.CatalogSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			logging.Warn().Msg("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set; planner requests will fail")
		}
		return catalog.NewRESTStore(cfg.SupabaseURL, cfg.SupabaseKey, nil), func() {}, nil
	}
}
