// Package pipeline analyzes every audio file of a folder with a worker pool.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/metrics"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Files is the part of drive.Service a batch needs.
type Files interface {
	ListFolder(ctx context.Context, folderID string) ([]drive.Entry, error)
	ResolvePath(ctx context.Context, fileID string) (string, error)
}

// Analyzer runs the audio analysis of one file.
type Analyzer interface {
	Analyze(ctx context.Context, fileID, name string) (json.RawMessage, error)
}

// Worker runs batch analyses
type Worker struct {
	files    Files
	analyzer Analyzer
	store    store.Store
	config   Config
	now      func() time.Time
}

// NewWorker creates a new batch worker
func NewWorker(files Files, analyzer Analyzer, st store.Store, config Config) *Worker {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if len(config.Extensions) == 0 {
		config.Extensions = drive.AudioExtensions
	}
	return &Worker{
		files:    files,
		analyzer: analyzer,
		store:    st,
		config:   config,
		now:      time.Now,
	}
}

// AnalyzeFolder analyzes the audio files directly inside folderID. A failed
// file is recorded in the report and does not stop the others; only listing
// the folder or a canceled context fails the run.
func (w *Worker) AnalyzeFolder(ctx context.Context, folderID string) (*Report, error) {
	entries, err := w.files.ListFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	audio := lo.Filter(entries, func(e drive.Entry, _ int) bool {
		return !e.IsFolder() && lo.Contains(w.config.Extensions, strings.ToLower(filepath.Ext(e.Name)))
	})

	report := &Report{
		FolderID:  folderID,
		StartedAt: w.now(),
		Jobs: lo.Map(audio, func(e drive.Entry, _ int) *FileJob {
			return &FileJob{FileID: e.ID, Name: e.Name, Status: FileStatusQueued}
		}),
	}

	log.Info().Str("folder_id", folderID).Int("files", len(report.Jobs)).Msg("pipeline: starting batch analysis")

	if err := w.processFilesParallel(ctx, report.Jobs); err != nil {
		return nil, err
	}

	for _, job := range report.Jobs {
		switch job.Status {
		case FileStatusCompleted:
			report.Completed++
		case FileStatusSkipped:
			report.Skipped++
		case FileStatusFailed:
			report.Failed++
		}
	}
	report.CompletedAt = w.now()

	log.Info().
		Str("folder_id", folderID).
		Int("completed", report.Completed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("pipeline: batch analysis finished")

	return report, nil
}

// processFilesParallel processes jobs using a worker pool
func (w *Worker) processFilesParallel(ctx context.Context, jobs []*FileJob) error {
	jobChan := make(chan *FileJob)
	var wg sync.WaitGroup

	for i := 0; i < w.config.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				w.processFile(ctx, job)
				metrics.RecordBatchFile(string(job.Status))
				if job.Status == FileStatusFailed {
					log.Warn().
						Int("worker", workerID).
						Str("file_id", job.FileID).
						Str("error", job.ErrorMessage).
						Msg("pipeline: file analysis failed")
				}
			}
		}(i)
	}

	var enqueueErr error
enqueue:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			enqueueErr = ctx.Err()
			break enqueue
		case jobChan <- job:
		}
	}
	close(jobChan)
	wg.Wait()

	if enqueueErr != nil {
		return fmt.Errorf("batch analysis interrupted: %w", enqueueErr)
	}
	return ctx.Err()
}

// processFile analyzes a single file and stores the result
func (w *Worker) processFile(ctx context.Context, job *FileJob) {
	start := time.Now()
	defer func() { job.Duration = time.Since(start) }()

	if !w.config.Force {
		_, err := w.store.GetAnalysis(ctx, job.FileID)
		if err == nil {
			job.Status = FileStatusSkipped
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			w.markJobFailed(job, fmt.Errorf("check stored result: %w", err))
			return
		}
	}

	result, err := w.analyzer.Analyze(ctx, job.FileID, job.Name)
	if err != nil {
		w.markJobFailed(job, err)
		return
	}

	path, err := w.files.ResolvePath(ctx, job.FileID)
	if err != nil {
		log.Warn().Err(err).Str("file_id", job.FileID).Msg("pipeline: could not resolve path, using name")
		path = job.Name
	}
	job.Path = path

	err = w.store.PutAnalysis(ctx, store.AnalysisRecord{
		FileID:     job.FileID,
		Path:       path,
		Result:     result,
		AnalyzedAt: w.now().UTC(),
	})
	if err != nil {
		w.markJobFailed(job, fmt.Errorf("save result: %w", err))
		return
	}

	job.Status = FileStatusCompleted
}

func (w *Worker) markJobFailed(job *FileJob, err error) {
	job.Status = FileStatusFailed
	job.ErrorMessage = err.Error()
}
