package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"strangerchat/backend/internal/api/handler"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/relationship"
	"strangerchat/backend/internal/storage"
)

func main() {
	cfg := config.Load()
	logger.InitFromConfig(cfg)
	logger.Info("Starting StrangerChat Backend...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// 1. Ініціалізація залежностей (міграції виконує OpenDB)
	db, err := storage.OpenDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	rdb, err := storage.OpenRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()
	s := storage.NewStorageService(db, rdb)
	logger.Info("Database and Redis connections established, migrations complete.")

	loc, err := localization.Default()
	if err != nil {
		return err
	}

	// 2. Сервіси
	bus := chathub.NewRedisBus(rdb)
	queue := chathub.NewQueueService(s)
	matcher := chathub.NewMatcherService(s, bus, cfg.Match)
	rooms := chathub.NewRoomService(s, bus)
	messages := chathub.NewMessageService(s, bus)
	hub := chathub.NewManagerService(bus, messages, s)

	h := &handler.Handler{
		Hub:           hub,
		Queue:         queue,
		Matcher:       matcher,
		Observer:      chathub.NewMatchObserver(matcher, bus),
		Rooms:         rooms,
		Messages:      messages,
		Relationships: relationship.NewService(s, bus),
		Auth:          handler.NewAuth(cfg),
		Localizer:     loc,

		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}

	// 3. Налаштування Gin та роутингу
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	h.Register(r)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.WithCORS(r, cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// 4. Запуск основних goroutines
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })     // Головний диспетчер
	g.Go(func() error { return matcher.Run(gctx) }) // Сервіс пошуку
	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
