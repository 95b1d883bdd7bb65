package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/api"
	"github.com/andresuchdata/audiodrive/backend-go/internal/auth"
	"github.com/andresuchdata/audiodrive/backend-go/internal/config"
	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/pipeline"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/andresuchdata/audiodrive/backend-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				EnvVars: []string{"PORT"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.String("port")
	}

	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.New(c.Context, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	services := &api.Services{
		Store: st,
		Auth:  auth.New(cfg.Auth.Username, cfg.Auth.Password, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	}
	if cfg.Drive.ClientID != "" {
		services.OAuth = drive.OAuthConfig(driveConfig(cfg))
	}

	if cfg.Drive.CredentialsJSON == "" && cfg.Drive.RefreshToken == "" {
		logger.Log.Warn().Msg("No REFRESH_TOKEN set: only /auth is available until one is configured")
	} else {
		files, err := newDriveService(c.Context, cfg)
		if err != nil {
			return err
		}
		services.Files = files
		services.Analyzer = newAnalyzer(cfg, files)
		services.Batch = pipeline.NewWorker(files, services.Analyzer, st, pipeline.Config{
			WorkerCount: cfg.Analyzer.MaxConcurrent,
		})
	}

	router := api.NewRouter(services, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().
			Str("port", cfg.Server.Port).
			Str("root_folder", cfg.Drive.RootFolderID).
			Str("store", cfg.Store.Backend).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	logger.Log.Info().Msg("Server exiting")
	return nil
}
