package main

import (
	"context"
	"log"
	"os"

	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/server"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"
)

func main() {
	config, err := server.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(config.LogLevel, config.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting roomchat server...",
		zap.String("port", config.Port),
		zap.String("store", config.Store.Backend),
		zap.Bool("persistAsync", config.Store.Async))

	app, err := server.NewApp(config, logger)
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}

	go func() {
		if err := app.ListenAndServe(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated...")
				return app.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Server exited", zap.Int("code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}
