package drive

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// AudioExtensions are the file types pulled by default.
var AudioExtensions = []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".aiff", ".aif"}

// DownloadOptions controls how files are pulled from a Drive folder.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
	// Extensions limits the pulled files by lower-case extension. Empty
	// means AudioExtensions.
	Extensions []string
}

// Downloader copies the files of one folder to a local directory.
type Downloader struct {
	service *Service
	fs      afero.Fs
}

func NewDownloader(s *Service, fs afero.Fs) *Downloader {
	return &Downloader{service: s, fs: fs}
}

// DownloadFolder pulls the immediate, matching files of opts.FolderID into
// DownloadDir and returns the local paths written. A file that fails midway
// is removed before the error is returned.
func (d *Downloader) DownloadFolder(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := d.fs.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = AudioExtensions
	}

	entries, err := d.service.provider.ListChildren(ctx, opts.FolderID)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", opts.FolderID, err)
	}

	names := make(map[string]int)
	var localPaths []string
	for _, e := range visible(entries) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsFolder() || !hasExtension(e.Name, exts) {
			continue
		}

		localPath := filepath.Join(opts.DownloadDir, uniqueName(names, e.Name))
		if err := d.downloadOne(ctx, e, localPath); err != nil {
			return nil, err
		}
		log.Debug().Str("file_id", e.ID).Str("path", localPath).Msg("drive: downloaded file")
		localPaths = append(localPaths, localPath)
	}

	return localPaths, nil
}

func (d *Downloader) downloadOne(ctx context.Context, e Entry, localPath string) error {
	rc, err := d.service.provider.OpenContent(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", e.Name, err)
	}
	defer rc.Close()

	out, err := d.fs.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}

	_, err = io.Copy(out, rc)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = d.fs.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", e.Name, err)
	}
	return nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range exts {
		if ext == want {
			return true
		}
	}
	return false
}
