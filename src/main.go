package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"redactmail-server-go/src/configs"
	"redactmail-server-go/src/configs/database"
	"redactmail-server-go/src/core/utils"
	"redactmail-server-go/src/redact"

	// providers register themselves in init
	_ "redactmail-server-go/src/core/providers/llm/anthropic"
	_ "redactmail-server-go/src/core/providers/llm/ollama"
	_ "redactmail-server-go/src/core/providers/llm/openai"
	_ "redactmail-server-go/src/core/providers/ocr/ocrspace"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("logging initialized, config loaded from %s", configPath))

	return config, logger, nil
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, db *gorm.DB, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	apiGroup := router.Group("/api")

	redactService, err := redact.NewDefaultRedactService(config, logger, db)
	if err != nil {
		logger.Error(fmt.Sprintf("redact service init failed: %v", err))
		return nil, err
	}
	if err := redactService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("redact service start failed: %v", err))
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("HTTP server listening on http://0.0.0.0:%d", config.Web.Port))

		go func() {
			<-groupCtx.Done()
			logger.Info("shutdown signal received, stopping HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(fmt.Sprintf("HTTP server shutdown failed: %v", err))
			} else {
				logger.Info("HTTP server stopped")
			}
			if err := redactService.Cleanup(); err != nil {
				logger.Error(fmt.Sprintf("redact service cleanup failed: %v", err))
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("HTTP server failed: %v", err))
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Info(fmt.Sprintf("received signal %v, shutting down", sig))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(fmt.Sprintf("error during shutdown: %v", err))
			os.Exit(1)
		}
		logger.Info("all services stopped")
	case <-time.After(15 * time.Second):
		logger.Error("shutdown timed out, exiting")
		os.Exit(1)
	}
}

func main() {
	// .env first so config env overrides see its values
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using system environment")
	}

	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("failed to load config or initialize logging:", err)
		os.Exit(1)
	}

	db, dbType, err := database.InitDB()
	if err != nil {
		logger.Error(fmt.Sprintf("database connection failed: %v", err))
		os.Exit(1)
	}
	if db != nil {
		logger.Info(fmt.Sprintf("database connected (%s)", dbType))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	if _, err := StartHttpServer(config, logger, db, g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("failed to start services: %v", err))
		cancel()
		os.Exit(1)
	}

	GracefulShutdown(cancel, logger, g)

	logger.Info("exited cleanly")
}
