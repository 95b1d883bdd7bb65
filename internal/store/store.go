// Package store persists selected files and analysis results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/config"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

var ErrNotFound = errors.New("record not found")

// Selection is a file the user picked, identified by its (Name, Path) pair.
type Selection struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// AnalysisRecord is the stored output of one analysis run. Result is kept as
// the script produced it; Path is a label for display only.
type AnalysisRecord struct {
	FileID     string          `json:"fileId"`
	Path       string          `json:"path"`
	Result     json.RawMessage `json:"result"`
	AnalyzedAt time.Time       `json:"analyzedAt"`
}

type Store interface {
	// AddSelection stores sel unless an equal pair exists and reports whether
	// it was added.
	AddSelection(ctx context.Context, sel Selection) (bool, error)
	// ListSelections returns selections in insertion order. A non-empty
	// prefix keeps only those whose Path starts with it.
	ListSelections(ctx context.Context, prefix string) ([]Selection, error)
	// RemoveSelection reports whether a matching pair was removed.
	RemoveSelection(ctx context.Context, sel Selection) (bool, error)

	PutAnalysis(ctx context.Context, rec AnalysisRecord) error
	GetAnalysis(ctx context.Context, fileID string) (*AnalysisRecord, error)
	ListAnalyses(ctx context.Context) (map[string]AnalysisRecord, error)

	Close() error
}

// New opens the backend named by cfg.Store.Backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "json":
		return NewJSONStore(afero.NewOsFs(), cfg.Store.JSONPath)
	case "redis":
		return NewRedisStore(ctx, cfg.Cache, cfg.Store.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func filterByPrefix(sels []Selection, prefix string) []Selection {
	return lo.Filter(sels, func(s Selection, _ int) bool {
		return prefix == "" || strings.HasPrefix(s.Path, prefix)
	})
}
