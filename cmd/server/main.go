// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/chessroom/internal/auth"
	"github.com/jason-s-yu/chessroom/internal/cache"
	"github.com/jason-s-yu/chessroom/internal/chat"
	"github.com/jason-s-yu/chessroom/internal/config"
	"github.com/jason-s-yu/chessroom/internal/database"
	"github.com/jason-s-yu/chessroom/internal/handlers"
	"github.com/jason-s-yu/chessroom/internal/middleware"
	"github.com/jason-s-yu/chessroom/internal/presence"
	"github.com/jason-s-yu/chessroom/internal/room"
	"github.com/jason-s-yu/chessroom/internal/rules"
	"github.com/jason-s-yu/chessroom/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}
	logger := cfg.NewLogger()

	if err := initAuth(cfg); err != nil {
		logger.WithError(err).Fatal("failed to initialize auth keys")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		users   handlers.UserStore
		results session.ResultRecorder
		store   chat.Store
	)

	// memory mode runs without postgres: no accounts, no recorded results
	if cfg.MessageStore != config.StoreMemory {
		if _, err := database.Migrate(cfg.DatabaseURL, database.Up, 0); err != nil {
			logger.WithError(err).Fatal("failed to migrate database")
		}
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer pool.Close()

		users = database.NewUserRepository(pool)
		results = database.NewResultRepository(pool)
		store = database.NewMessageRepository(pool)
	}

	switch cfg.MessageStore {
	case config.StoreRedis:
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		store = cache.NewMessageStore(rdb, cache.DefaultPrefix)
	case config.StoreMemory:
		store = chat.NewMemoryStore()
	}
	logger.WithField("store", cfg.MessageStore).Info("message store ready")

	rooms := room.NewRegistry(rules.NewChessOracle(), cfg.RoomReapAfter, logger)
	defer rooms.Close()
	dir := presence.NewDirectory(logger)
	relay := chat.NewRelay(store, dir, logger)
	gw := session.NewGateway(rooms, dir, relay, results, logger)

	mux := http.NewServeMux()
	handlers.NewAPIServer(users, relay, rooms, logger).Routes(mux)
	mux.Handle("GET /ws", handlers.SessionWSHandler(logger, gw, handlers.WSOptions{
		OriginPatterns: cfg.AllowedOrigins,
		OutboxSize:     cfg.OutboxSize,
	}))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.LogMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http shutdown")
		}
	}()

	logger.Infof("Running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server exited")
	}
	gw.Wait()
}

func initAuth(cfg *config.Config) error {
	auth.SetTokenExpiry(cfg.TokenExpiry)
	if cfg.JWTPrivateKeyPath != "" {
		return auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	}
	return auth.Init()
}
