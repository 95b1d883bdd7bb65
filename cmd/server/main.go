// backend-go/cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andresuchdata/audiodrive/backend-go/internal/analyzer"
	"github.com/andresuchdata/audiodrive/backend-go/internal/config"
	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/pkg/logger"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "audiodrive",
		Usage: "Browse, download and analyze audio files kept in a Google Drive folder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Load()
			level := cfg.Log.Level
			if c.IsSet("log-level") {
				level = c.String("log-level")
			}
			logger.Configure(level, logger.FileOptions{
				Path:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
			})
			return nil
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			serveCommand(),
			treeCommand(),
			resolveCommand(),
			archiveCommand(),
			pullCommand(),
			analyzeFolderCommand(),
			authURLCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("audiodrive failed")
	}
}

func driveConfig(cfg *config.Config) drive.Config {
	return drive.Config{
		CredentialsJSON: cfg.Drive.CredentialsJSON,
		ClientID:        cfg.Drive.ClientID,
		ClientSecret:    cfg.Drive.ClientSecret,
		RedirectURL:     cfg.Drive.RedirectURL,
		RefreshToken:    cfg.Drive.RefreshToken,
		RequestTimeout:  cfg.Drive.RequestTimeout,
		DownloadTimeout: cfg.Drive.DownloadTimeout,
	}
}

func newDriveService(ctx context.Context, cfg *config.Config) (*drive.Service, error) {
	if err := cfg.ValidateDrive(); err != nil {
		return nil, err
	}

	provider, err := drive.NewDriveProvider(ctx, driveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Drive provider: %w", err)
	}

	return drive.NewService(provider, drive.Options{
		RootFolderID:    cfg.Drive.RootFolderID,
		ListConcurrency: cfg.Drive.ListConcurrency,
		MaxDepth:        cfg.Drive.MaxDepth,
	}), nil
}

func newAnalyzer(cfg *config.Config, content analyzer.ContentOpener) *analyzer.Analyzer {
	return analyzer.New(content, afero.NewOsFs(), analyzer.Config{
		Python:        cfg.Analyzer.Python,
		Script:        cfg.Analyzer.Script,
		TempDir:       cfg.Analyzer.TempDir,
		Timeout:       cfg.Analyzer.Timeout,
		MaxConcurrent: cfg.Analyzer.MaxConcurrent,
	})
}
