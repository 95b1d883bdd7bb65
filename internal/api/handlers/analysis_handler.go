package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/pipeline"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Analyzer runs the audio analysis of one file.
type Analyzer interface {
	Analyze(ctx context.Context, fileID, name string) (json.RawMessage, error)
}

// FolderAnalyzer analyzes every audio file of a folder.
type FolderAnalyzer interface {
	AnalyzeFolder(ctx context.Context, folderID string) (*pipeline.Report, error)
}

type AnalysisHandler struct {
	files    FileService
	analyzer Analyzer
	store    store.Store
	now      func() time.Time
}

func NewAnalysisHandler(files FileService, analyzer Analyzer, st store.Store) *AnalysisHandler {
	return &AnalysisHandler{files: files, analyzer: analyzer, store: st, now: time.Now}
}

// Analyze runs the analyzer on a file, stores the result under the file id
// and returns it.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	fileID := c.Param("fileId")
	ctx := c.Request.Context()

	meta, err := h.files.GetMetadata(ctx, fileID)
	if err != nil {
		respondError(c, err, "failed to fetch file metadata")
		return
	}

	result, err := h.analyzer.Analyze(ctx, fileID, meta.Name)
	if err != nil {
		respondError(c, err, "failed to analyze file")
		return
	}

	path, err := h.files.ResolvePath(ctx, fileID)
	if err != nil {
		log.Warn().Err(err).Str("file_id", fileID).Msg("could not resolve path for analysis label")
		path = meta.Name
	}

	rec := store.AnalysisRecord{
		FileID:     fileID,
		Path:       path,
		Result:     result,
		AnalyzedAt: h.now().UTC(),
	}
	if err := h.store.PutAnalysis(ctx, rec); err != nil {
		respondError(c, err, "failed to save analysis result")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListResults returns every stored analysis output keyed by file id, the
// shape the browser client reads.
func (h *AnalysisHandler) ListResults(c *gin.Context) {
	all, err := h.store.ListAnalyses(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to fetch analysis results")
		return
	}
	c.JSON(http.StatusOK, lo.MapValues(all, func(rec store.AnalysisRecord, _ string) json.RawMessage {
		return rec.Result
	}))
}

func (h *AnalysisHandler) GetResult(c *gin.Context) {
	rec, err := h.store.GetAnalysis(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondError(c, err, "analysis result not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":     rec.Result,
		"path":       rec.Path,
		"analyzedAt": rec.AnalyzedAt,
	})
}

// BatchHandler runs a folder-wide analysis and returns its report.
type BatchHandler struct {
	batch FolderAnalyzer
}

func NewBatchHandler(batch FolderAnalyzer) *BatchHandler {
	return &BatchHandler{batch: batch}
}

func (h *BatchHandler) AnalyzeFolder(c *gin.Context) {
	report, err := h.batch.AnalyzeFolder(c.Request.Context(), c.Param("folderId"))
	if err != nil {
		respondError(c, err, "failed to analyze folder")
		return
	}
	c.JSON(http.StatusOK, report)
}
