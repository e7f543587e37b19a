package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/esports-draft/internal/champions"
	"github.com/DoyleJ11/esports-draft/internal/config"
	"github.com/DoyleJ11/esports-draft/internal/events"
	"github.com/DoyleJ11/esports-draft/internal/httpapi"
	"github.com/DoyleJ11/esports-draft/internal/hub"
	"github.com/DoyleJ11/esports-draft/internal/store"
	"github.com/DoyleJ11/esports-draft/internal/store/postgres"
	"github.com/DoyleJ11/esports-draft/internal/store/redis"
	"github.com/DoyleJ11/esports-draft/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := config.NewLogger(*cfg)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	// --- Storage ---
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store ready", zap.String("driver", cfg.StoreDriver))

	// --- Events ---
	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATS(events.NATSConfig{URL: cfg.NATSURL, SubjectPrefix: cfg.NATSSubject}, logger)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		pub = np
		logger.Info("publishing draft events", zap.String("subject", cfg.NATSSubject))
	}
	defer pub.Close()

	// --- Champions ---
	var catalog champions.Catalog = champions.Default()
	if cfg.ChampionPoolFile != "" {
		catalog, err = champions.FromFile(cfg.ChampionPoolFile)
		if err != nil {
			return fmt.Errorf("loading champion pool: %w", err)
		}
	}

	// --- Sessions ---
	h := hub.NewHub(ctx, hub.Options{
		Logger:     logger,
		Store:      st,
		Publisher:  pub,
		Catalog:    catalog,
		Settings:   cfg.SessionSettings(),
		Rules:      cfg.Rules(),
		AutoCreate: cfg.AutoCreateSessions,
	})

	mgr := ws.NewManager(h, ws.Options{
		Logger:         logger,
		PingInterval:   cfg.WSPingInterval,
		OriginPatterns: cfg.AllowedOrigins,
	})

	// --- HTTP Server ---
	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.SetupRoutes(httpapi.Deps{
		Hub:            h,
		WS:             mgr,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}))

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		err := srv.Shutdown(context.Background())
		h.Shutdown()
		logger.Info("sessions stopped")
		return err
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return s, nil
	case config.StoreRedis:
		s, err := redis.Open(ctx, cfg.RedisURL, cfg.RedisSnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return s, nil
	default:
		return store.NewMemory(), nil
	}
}
