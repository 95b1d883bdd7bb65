// Package analyzer runs the external audio analysis script on one Drive file.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"
)

var ErrAnalysisFailed = errors.New("audio analysis failed")

const (
	defaultExtension = ".mp3"
	waitDelay        = 2 * time.Second
	stderrLimit      = 4 << 10
)

// ContentOpener streams the raw bytes of a remote file.
type ContentOpener interface {
	OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

type Config struct {
	// Python is the interpreter. When empty Script is executed directly.
	Python  string
	Script  string
	TempDir string
	Timeout time.Duration
	// MaxConcurrent bounds how many analyses run at once.
	MaxConcurrent int
}

type Analyzer struct {
	content ContentOpener
	fs      afero.Fs
	cfg     Config
	sem     *semaphore.Weighted
}

// New builds an Analyzer that stages downloads on fsys. The script reads the
// staged file by path, so fsys must be backed by the OS filesystem outside
// tests.
func New(content ContentOpener, fsys afero.Fs, cfg Config) *Analyzer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Analyzer{
		content: content,
		fs:      fsys,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Analyze downloads fileID to a temporary file, runs the analysis script on
// it and returns the JSON the script printed. The temporary file is removed
// on every exit path.
func (a *Analyzer) Analyze(ctx context.Context, fileID, name string) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() { metrics.RecordAnalysis(err, time.Since(start)) }()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for analysis slot: %w", err)
	}
	defer a.sem.Release(1)

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	tmpPath, err := a.download(ctx, fileID, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := a.fs.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", tmpPath).Msg("analyzer: failed to remove temp file")
		}
	}()

	out, err := a.run(ctx, tmpPath)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", fileID, err)
	}

	return parseOutput(out)
}

func (a *Analyzer) download(ctx context.Context, fileID, name string) (string, error) {
	rc, err := a.content.OpenContent(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("download %s for analysis: %w", fileID, err)
	}
	defer rc.Close()

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = defaultExtension
	}

	if err := a.fs.MkdirAll(a.cfg.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	f, err := afero.TempFile(a.fs, a.cfg.TempDir, safeName(fileID)+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = a.fs.Remove(f.Name())
		return "", fmt.Errorf("download %s for analysis: %w", fileID, err)
	}

	metrics.RecordContentDownload(n)
	return f.Name(), nil
}

func (a *Analyzer) run(ctx context.Context, audioPath string) ([]byte, error) {
	name, args := a.cfg.Script, []string{audioPath}
	if a.cfg.Python != "" {
		name, args = a.cfg.Python, []string{a.cfg.Script, audioPath}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	log.Debug().Str("cmd", name).Strs("args", args).Msg("analyzer: running script")

	err := cmd.Run()
	if stderr.Len() > 0 {
		log.Debug().Str("stderr", stderr.String()).Msg("analyzer: script stderr")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: script exited with code %d: %s",
				ErrAnalysisFailed, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	return stdout.Bytes(), nil
}

// parseOutput accepts any JSON value. An object carrying an "error" key is
// the script reporting its own failure.
func parseOutput(out []byte) (json.RawMessage, error) {
	out = bytes.TrimSpace(out)
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: script output is not JSON", ErrAnalysisFailed)
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(out, &obj) == nil {
		if msg, ok := obj["error"]; ok {
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, string(msg))
		}
	}

	return json.RawMessage(out), nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) Len() int       { return len(t.buf) }
func (t *tailBuffer) String() string { return string(t.buf) }
