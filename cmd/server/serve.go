package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"clinical-intake/internal/cache"
	"clinical-intake/internal/config"
	"clinical-intake/internal/core"
	"clinical-intake/internal/db"
	httpserver "clinical-intake/internal/http"
	"clinical-intake/internal/llm"
	"clinical-intake/internal/log"
	"clinical-intake/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), config.Load())
	},
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := log.New(log.Config{
		Level:   log.ParseLevel(cfg.LogLevel),
		Format:  log.ParseFormat(cfg.LogFormat),
		Output:  os.Stdout,
		Service: "clinical-intake",
	})
	log.SetDefaultLogger(logger)

	catalog, err := loadCatalog(catalogPath(cfg))
	if err != nil {
		return err
	}
	reg, m := metrics.NewRegistry()
	hub := httpserver.NewHub()

	var sessions httpserver.SessionStore = cache.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		sessions = cache.NewRedisSessionStore(rdb, cfg.SessionTTL)
		logger.Info("sessions stored in redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}

	var (
		records   httpserver.RecordStore = cache.NewMemoryRecords()
		publisher httpserver.Publisher
	)
	if cfg.DatabaseURL != "" {
		openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		conn, err := db.Open(openCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := db.Migrate(ctx, conn); err != nil {
			return err
		}
		records = db.NewRepository(conn)

		notifier := db.NewNotifier(conn, cfg.DatabaseURL, cfg.NotifyChannel, logger)
		events, err := notifier.Listen(ctx)
		if err != nil {
			return err
		}
		go hub.Pump(ctx, events)
		publisher = notifier
	} else {
		logger.Warn("DATABASE_URL not set, records are kept in memory")
	}

	client := llm.NewOpenAIClient(llm.Options{
		APIKey:    cfg.OpenAIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.StoryModel,
		MaxTokens: cfg.StoryMaxTokens,
	})
	stories := core.NewStoryService(client, cfg.GenerationTimeout, m, logger)

	handler := httpserver.NewServer(&httpserver.Server{
		Sessions:  sessions,
		Records:   records,
		Narrator:  stories,
		Publisher: publisher,
		Hub:       hub,
		Catalog:   catalog,
		Metrics:   m,
		Registry:  reg,
		Logger:    logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "model", client.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
