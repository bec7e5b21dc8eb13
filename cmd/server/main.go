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
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chatline/internal/broker"
	"chatline/internal/config"
	"chatline/internal/gateway"
	"chatline/internal/handler"
	"chatline/internal/logging"
	"chatline/internal/store"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	// 環境変数を読み込み
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", true)
		boot.Fatal().Err(err).Msg("❌ Failed to load configuration")
	}

	log := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if envErr != nil {
		log.Debug().Err(envErr).Msg("⚠️  .env file not found, using environment only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("❌ Server stopped with error")
	}
	log.Info().Msg("👋 Server stopped")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	// メッセージ配信コアを初期化
	st := store.New(cfg.MaxMessages)
	br := broker.New(cfg.SubscriberBuffer, log)
	gw := gateway.New(st, br, log, gateway.WithMaxContentLength(cfg.MaxContentLength))

	// ハンドラー初期化
	h := handler.New(gw, br, cfg, log)
	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("🚀 Server started successfully")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// websocket connections are hijacked, so http.Server.Shutdown does not see them
		if err := h.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Int("connections", h.Connections()).Msg("Subscription connections still open at shutdown")
		}
		br.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func printBanner(cfg config.Config) {
	fmt.Println("========================================")
	fmt.Println("  Chatline Broadcast Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	if cfg.MaxMessages > 0 {
		fmt.Printf("  History limit: %d messages\n", cfg.MaxMessages)
	}
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
}
