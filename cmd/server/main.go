package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ghostreplay/engine/internal/blunder"
	"github.com/ghostreplay/engine/internal/config"
	"github.com/ghostreplay/engine/internal/controller"
	"github.com/ghostreplay/engine/internal/evaluator"
	"github.com/ghostreplay/engine/internal/human"
	"github.com/ghostreplay/engine/internal/review"
	"github.com/ghostreplay/engine/internal/session"
	"github.com/ghostreplay/engine/internal/store"
	"github.com/ghostreplay/engine/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	logger.Info("Starting Ghost Replay engine",
		zap.String("httpPort", cfg.HTTPPort),
		zap.Bool("calibrationEnabled", cfg.CalibrationEnabled))

	ctx := context.Background()

	pool, err := store.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool, logger)

	humanProvider := human.NewLatchProvider(func() (human.Provider, error) {
		return human.NewRemoteProvider(human.RemoteConfig{
			BaseURL: cfg.HumanModel.BaseURL,
			Timeout: cfg.HumanModel.Timeout,
			TopK:    cfg.HumanModel.TopK,
			MinProb: cfg.HumanModel.MinProb,
		}, logger), nil
	})

	eval := evaluator.NewSerialEvaluator(evaluator.Config{
		BinaryPath: cfg.Evaluator.BinaryPath,
		Threads:    cfg.Evaluator.Threads,
		Hash:       cfg.Evaluator.Hash,
		Depth:      cfg.Evaluator.Depth,
	}, logger)
	defer eval.Close()

	ctrl := controller.New(st, humanProvider, eval, controller.Config{
		CalibrationEnabled: cfg.CalibrationEnabled,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	sessions := session.NewService(st, nil)
	recorder := blunder.NewRecorder(st, st)
	reviewer := review.NewReviewer(st)

	srv := transport.NewServer(st, sessions, ctrl, recorder, reviewer, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout, forcing exit", zap.Error(err))
	} else {
		logger.Info("Graceful shutdown complete")
	}
}

func setupLogger(level string, format string) *zap.Logger {
	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zapcore.DebugLevel
	case "info":
		logLevel = zapcore.InfoLevel
	case "warn":
		logLevel = zapcore.WarnLevel
	case "error":
		logLevel = zapcore.ErrorLevel
	default:
		logLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
