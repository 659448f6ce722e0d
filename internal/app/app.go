package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/groovesync/server/internal/bus"
	"github.com/groovesync/server/internal/controller"
	"github.com/groovesync/server/internal/mediaproxy"
	connInmemory "github.com/groovesync/server/internal/repository/connection/inmemory"
	roomInmemory "github.com/groovesync/server/internal/repository/room/inmemory"
	"github.com/groovesync/server/internal/service/room"
	"github.com/groovesync/server/pkg/ctxlogger"
	"github.com/groovesync/server/pkg/redisclient"
)

type AppConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`

	MediaAPIBaseURL   string `json:"media_api_base_url"`
	MediaTokenURL     string `json:"media_token_url"`
	MediaClientID     string `json:"media_client_id"`
	MediaClientSecret string `json:"-"`

	// RedisHost is optional; when empty the relay runs single-instance
	// and broadcasts stay local.
	RedisHost     string `json:"redis_host"`
	RedisPort     int    `json:"redis_port"`
	RedisPassword string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.MediaAPIBaseURL == "" {
		return fmt.Errorf("media api base url must be set")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	eventBus := bus.Bus(bus.Noop{})
	if cfg.RedisHost != "" {
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()

		eventBus = bus.NewRedisBus(rc, logger)
	}

	roomRepo := roomInmemory.NewRepo()
	connRepo := connInmemory.NewRepo()
	roomService := room.NewService(roomRepo, connRepo)

	mediaProxy := mediaproxy.NewClient(&mediaproxy.Config{
		BaseURL:      cfg.MediaAPIBaseURL,
		TokenURL:     cfg.MediaTokenURL,
		ClientID:     cfg.MediaClientID,
		ClientSecret: cfg.MediaClientSecret,
	})

	ctrl := controller.NewController(roomService, mediaProxy, eventBus, uuid.NewString(), logger)

	go eventBus.Subscribe(serverCtx, ctrl.DeliverRemote)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           ctrl.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		ctrl.Shutdown()
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
