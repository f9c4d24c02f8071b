// main.go
// Application entry point: loads configuration, initializes logger, wires the services and
// starts the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/erilali/gameroom/internal/api"
	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/config"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/game/gomoku"
	"github.com/erilali/gameroom/internal/game/landlord"
	"github.com/erilali/gameroom/internal/game/racing"
	"github.com/erilali/gameroom/internal/hub"
	"github.com/erilali/gameroom/internal/logger"
	"github.com/erilali/gameroom/internal/metrics"
	"github.com/erilali/gameroom/internal/records"
	"github.com/erilali/gameroom/internal/room"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.Log)
	serverLogger := logger.NewLogger("server")
	serverLogger.Info("Logger initialized with configuration")
	serverLogger.WithFields(map[string]interface{}{
		"level":       cfg.Log.Level,
		"log_to_file": cfg.Log.LogToFile,
		"log_to_json": cfg.Log.LogToJSON,
		"file_path":   cfg.Log.FilePath,
	}).Info("Logger configuration details")

	if err := run(cfg, serverLogger); err != nil {
		serverLogger.Fatalf("Server stopped: %v", err)
	}
}

func run(cfg *config.Config, serverLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := records.Open(ctx, records.Options{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		Migrate:  cfg.Storage.Migrate,
		MaxConns: cfg.Storage.MaxConns,
	}, logger.NewLogger("records"))
	if err != nil {
		serverLogger.Errorf("Error opening %s record store: %v", cfg.Storage.Driver, err)
		serverLogger.Warn("Running without game records. History endpoints will report degraded.")
		store = records.NopStore{}
	}
	defer store.Close()

	recorder := records.NewRecorder(store, cfg.Storage.QueueSize, cfg.Storage.WriteTimeout, logger.NewLogger("recorder"),
		records.OnSkip(m.RecordsSkip.Inc),
		records.OnWrite(m.RecordWrite),
	)
	go recorder.Run(ctx)

	var limiter chat.Limiter = chat.NewMemoryLimiter(cfg.Chat.RateLimit, cfg.Chat.Window, nil)
	if cfg.Chat.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			serverLogger.Warnf("Redis at %s unreachable (%v), chat rate windows stay local", cfg.Redis.Addr, err)
		} else {
			limiter = chat.NewRedisLimiter(rdb, cfg.Chat.RateLimit, cfg.Chat.Window, "")
			serverLogger.Infof("Chat rate windows shared through redis at %s", cfg.Redis.Addr)
		}
	}
	comments := chat.NewService(chat.Config{
		MaxHistory:         cfg.Chat.MaxHistory,
		DuplicateThreshold: cfg.Chat.DuplicateThreshold,
		BlockedWords:       cfg.Chat.BlockedWords,
	}, limiter, nil, logger.NewLogger("chat"))

	rooms := room.NewRegistry(room.WithTimeout(cfg.Rooms.Timeout))
	engineLogger := logger.NewLogger("engine")
	engines := game.NewRegistry(
		game.NewTable(gomoku.New(), rooms, comments, engineLogger),
		game.NewTable(landlord.New(), rooms, comments, engineLogger),
		game.NewTable(racing.New(), rooms, comments, engineLogger),
	)

	events := hub.NewEvents(nil, nil, nil)
	if cfg.NATS.Enabled {
		events, err = hub.ConnectEvents(cfg.NATS.URL, cfg.NATS.Retention, logger.NewLogger("nats"))
		if err != nil {
			serverLogger.Errorf("Error setting up NATS: %v", err)
			serverLogger.Warn("Running without JetStream. Event publishing and archives will be disabled.")
		}
	}
	defer events.Close()

	h := hub.NewHub(hub.Deps{
		Rooms:    rooms,
		Engines:  engines,
		Chat:     comments,
		Recorder: recorder,
		Events:   events,
		Metrics:  m,
	}, hub.Options{
		ReadLimit:      cfg.WebSocket.ReadLimit,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MessageRate:    cfg.WebSocket.MessageRate,
		MessageBurst:   cfg.WebSocket.MessageBurst,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SweepInterval:  cfg.Rooms.SweepInterval,
	}, logger.NewLogger("hub"))
	go h.Run(ctx)

	srv := api.NewServer(api.Deps{
		Hub:     h,
		Rooms:   rooms,
		Engines: engines,
		Chat:    comments,
		Store:   store,
		Events:  events,
		Metrics: m,
	}, logger.NewLogger("http"))

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     srv.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays zero: it would cut hijacked websocket connections.
	}

	errCh := make(chan error, 1)
	go func() {
		serverLogger.Infof("Server started at %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		serverLogger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serverLogger.Errorf("HTTP shutdown: %v", err)
	}
	stop()
	if err := recorder.Close(shutdownCtx); err != nil {
		serverLogger.Warnf("Recorder did not drain: %v", err)
	}
	serverLogger.Info("Server stopped")
	return nil
}
