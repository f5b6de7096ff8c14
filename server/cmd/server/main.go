package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phoenix-explorer/livefeed/server/internal/api"
	"github.com/phoenix-explorer/livefeed/server/internal/auth"
	"github.com/phoenix-explorer/livefeed/server/internal/config"
	"github.com/phoenix-explorer/livefeed/server/internal/feed"
	"github.com/phoenix-explorer/livefeed/server/internal/logging"
	"github.com/phoenix-explorer/livefeed/server/internal/metrics"
	"github.com/phoenix-explorer/livefeed/server/internal/store"
	"github.com/phoenix-explorer/livefeed/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livefeed-server: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.Log.Level, cfg.Server.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "livefeed-server: %v\n", err)
		os.Exit(1)
	}

	slog.Info("livefeed-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"ws_path", cfg.Server.WSPath,
		"auth_mode", cfg.Server.Auth.Mode,
		"postgres_feed", cfg.Server.Feed.Postgres.Enabled,
		"amqp_feed", cfg.Server.Feed.AMQP.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	st := store.New(nil)

	hc := cfg.Server.Hub
	hub := ws.New(st, m, ws.Options{
		SendBuffer:      hc.SendBuffer,
		WriteTimeout:    hc.WriteTimeout,
		PongWait:        hc.PongWait,
		MaxMessageBytes: hc.MaxMessageBytes,
		AllowedOrigins:  hc.AllowedOrigins,
		RatePerSecond:   hc.RateLimit.MessagesPerSecond,
		RateBurst:       hc.RateLimit.Burst,
	})
	go hub.Run(ctx)

	if err := startFeeds(ctx, cfg.Server.Feed, hub, m); err != nil {
		slog.Error("failed to start feeds", "err", err)
		os.Exit(1)
	}

	// Only the log level is applied on reload; everything else needs a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := logger.SetLevel(next.Server.Log.Level); err != nil {
				slog.Warn("config: ignoring log level", "level", next.Server.Log.Level, "err", err)
				return
			}
			slog.Info("config: log level applied", "level", logger.Level())
		})
		if err != nil {
			slog.Warn("config watcher stopped", "err", err)
		}
	}()

	handler := api.New(hub, api.Options{
		WSPath:  cfg.Server.WSPath,
		WS:      hub,
		Metrics: m,
		IngestAuth: auth.APIKeyMiddleware(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("livefeed-server shutting down")
	hub.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// startFeeds launches the enabled producers. They run until ctx is cancelled.
func startFeeds(ctx context.Context, fc config.FeedConfig, hub *ws.Hub, m *metrics.Metrics) error {
	if fc.Postgres.Enabled {
		db, err := feed.OpenPostgres(ctx, fc.Postgres.DSN())
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			db.Close()
		}()

		p := feed.NewPoller(feed.NewPostgresLedger(db), hub, m, feed.PollerOptions{
			Interval:  fc.Postgres.PollInterval,
			BatchSize: fc.Postgres.BatchSize,
		})
		go p.Run(ctx) //nolint:errcheck
	}

	if fc.AMQP.Enabled {
		c := feed.NewAMQPConsumer(hub, m, feed.AMQPOptions{
			URL:        fc.AMQP.URL(),
			Exchange:   fc.AMQP.Exchange,
			Queue:      fc.AMQP.Queue,
			BindingKey: fc.AMQP.BindingKey,
		})
		go c.Run(ctx) //nolint:errcheck
	}
	return nil
}
