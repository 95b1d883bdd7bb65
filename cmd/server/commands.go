package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/andresuchdata/audiodrive/backend-go/internal/config"
	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/pipeline"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/andresuchdata/audiodrive/backend-go/pkg/logger"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Print the folder tree below the root as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Only print the subtree at this slash separated path",
			},
		},
		Action: func(c *cli.Context) error {
			svc, err := newDriveService(c.Context, config.Load())
			if err != nil {
				return err
			}

			var nodes []*drive.FileNode
			if path := c.String("path"); path != "" {
				nodes, err = svc.ListSubtree(c.Context, path)
			} else {
				nodes, err = svc.ListTree(c.Context)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(nodes)
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print the path of a file relative to the root",
		ArgsUsage: "<fileId>",
		Action: func(c *cli.Context) error {
			fileID := c.Args().First()
			if fileID == "" {
				return errors.New("fileId argument is required")
			}

			svc, err := newDriveService(c.Context, config.Load())
			if err != nil {
				return err
			}

			path, err := svc.ResolvePath(c.Context, fileID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, path)
			return err
		},
	}
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Write the files of a folder into a ZIP file",
		ArgsUsage: "<folderId>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, defaults to folder_<folderId>.zip",
			},
		},
		Action: func(c *cli.Context) error {
			folderID := c.Args().First()
			if folderID == "" {
				return errors.New("folderId argument is required")
			}

			svc, err := newDriveService(c.Context, config.Load())
			if err != nil {
				return err
			}

			output := c.String("output")
			if output == "" {
				output = fmt.Sprintf("folder_%s.zip", folderID)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}

			entries, err := svc.StreamFolderArchive(c.Context, folderID, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}

			logger.Log.Info().Str("output", output).Int("entries", entries).Msg("Archive written")
			return nil
		},
	}
}

func pullCommand() *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Download the audio files of a folder into a local directory",
		ArgsUsage: "<folderId>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Target directory",
				Value:   "./downloads",
			},
			&cli.StringSliceFlag{
				Name:  "ext",
				Usage: "Extensions to pull, e.g. --ext .wav --ext .flac",
			},
		},
		Action: func(c *cli.Context) error {
			folderID := c.Args().First()
			if folderID == "" {
				return errors.New("folderId argument is required")
			}

			svc, err := newDriveService(c.Context, config.Load())
			if err != nil {
				return err
			}

			paths, err := drive.NewDownloader(svc, afero.NewOsFs()).DownloadFolder(c.Context, drive.DownloadOptions{
				FolderID:    folderID,
				DownloadDir: c.String("dir"),
				Extensions:  c.StringSlice("ext"),
			})
			if err != nil {
				return err
			}

			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}

func authURLCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth-url",
		Usage: "Print the Google consent URL, or exchange the returned code for a refresh token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "code",
				Usage: "Authorization code copied from the redirect URL",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			if cfg.Drive.ClientID == "" || cfg.Drive.ClientSecret == "" {
				return errors.New("CLIENT_ID and CLIENT_SECRET are required")
			}
			oauthCfg := drive.OAuthConfig(driveConfig(cfg))

			if code := c.String("code"); code != "" {
				token, err := oauthCfg.Exchange(c.Context, code)
				if err != nil {
					return fmt.Errorf("failed to exchange code: %w", err)
				}
				if token.RefreshToken == "" {
					return errors.New("no refresh token returned, revoke the app grant and retry")
				}
				_, err = fmt.Fprintf(c.App.Writer, "REFRESH_TOKEN=%s\n", token.RefreshToken)
				return err
			}

			url := oauthCfg.AuthCodeURL("cli", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			_, err := fmt.Fprintln(c.App.Writer, url)
			return err
		},
	}
}

func analyzeFolderCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze-folder",
		Usage:     "Analyze every audio file of a folder and store the results",
		ArgsUsage: "<folderId>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of files analyzed concurrently",
				Value: pipeline.DefaultConfig().WorkerCount,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-analyze files that already have a stored result",
			},
			&cli.StringSliceFlag{
				Name:  "ext",
				Usage: "Only analyze these extensions (default: common audio types)",
			},
		},
		Action: func(c *cli.Context) error {
			folderID := c.Args().First()
			if folderID == "" {
				return errors.New("folderId argument is required")
			}

			cfg := config.Load()
			svc, err := newDriveService(c.Context, cfg)
			if err != nil {
				return err
			}

			st, err := store.New(c.Context, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			w := pipeline.NewWorker(svc, newAnalyzer(cfg, svc), st, pipeline.Config{
				WorkerCount: c.Int("workers"),
				Force:       c.Bool("force"),
				Extensions:  c.StringSlice("ext"),
			})

			report, err := w.AnalyzeFolder(c.Context, folderID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", report.Failed, len(report.Jobs))
			}
			return nil
		},
	}
}
