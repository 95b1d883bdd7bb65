package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// document is the on-disk layout of the JSON store.
type document struct {
	SelectedFiles   []Selection               `json:"selectedFiles"`
	AnalysisResults map[string]AnalysisRecord `json:"analysisResults"`
}

// JSONStore keeps every record in a single JSON file. Each mutation reads
// the file, applies the change and replaces the file through a rename.
type JSONStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

var _ Store = (*JSONStore)(nil)

func NewJSONStore(fsys afero.Fs, path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("json store path is required")
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &JSONStore{fs: fsys, path: path}

	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("stat store file: %w", err)
	}
	if !exists {
		if err := s.write(newDocument()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newDocument() *document {
	return &document{
		SelectedFiles:   []Selection{},
		AnalysisResults: map[string]AnalysisRecord{},
	}
}

func (s *JSONStore) AddSelection(_ context.Context, sel Selection) (bool, error) {
	added := false
	err := s.update(func(doc *document) bool {
		for _, existing := range doc.SelectedFiles {
			if existing == sel {
				return false
			}
		}
		doc.SelectedFiles = append(doc.SelectedFiles, sel)
		added = true
		return true
	})
	return added, err
}

func (s *JSONStore) ListSelections(_ context.Context, prefix string) ([]Selection, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return filterByPrefix(doc.SelectedFiles, prefix), nil
}

func (s *JSONStore) RemoveSelection(_ context.Context, sel Selection) (bool, error) {
	removed := false
	err := s.update(func(doc *document) bool {
		kept := doc.SelectedFiles[:0]
		for _, existing := range doc.SelectedFiles {
			if existing == sel {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		doc.SelectedFiles = kept
		return removed
	})
	return removed, err
}

func (s *JSONStore) PutAnalysis(_ context.Context, rec AnalysisRecord) error {
	return s.update(func(doc *document) bool {
		doc.AnalysisResults[rec.FileID] = rec
		return true
	})
}

func (s *JSONStore) GetAnalysis(_ context.Context, fileID string) (*AnalysisRecord, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.AnalysisResults[fileID]
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", fileID, ErrNotFound)
	}
	return &rec, nil
}

func (s *JSONStore) ListAnalyses(_ context.Context) (map[string]AnalysisRecord, error) {
	doc, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return doc.AnalysisResults, nil
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) snapshot() (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// update runs fn on the current document and persists it when fn reports a
// change.
func (s *JSONStore) update(fn func(doc *document) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if !fn(doc) {
		return nil
	}
	return s.write(doc)
}

func (s *JSONStore) read() (*document, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	doc := newDocument()
	if len(data) == 0 {
		return doc, nil
	}

	var raw struct {
		SelectedFiles   []Selection                `json:"selectedFiles"`
		AnalysisResults map[string]json.RawMessage `json:"analysisResults"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", s.path, err)
	}
	if raw.SelectedFiles != nil {
		doc.SelectedFiles = raw.SelectedFiles
	}
	for id, value := range raw.AnalysisResults {
		rec, err := decodeRecord(id, value)
		if err != nil {
			return nil, fmt.Errorf("decode store %s: analysis %s: %w", s.path, id, err)
		}
		doc.AnalysisResults[id] = rec
	}
	return doc, nil
}

// decodeRecord reads one analysisResults value. Files written by the Node
// backend hold the bare script output there; those are wrapped as the
// record's Result so they survive the next write.
func decodeRecord(id string, value json.RawMessage) (AnalysisRecord, error) {
	var fields map[string]json.RawMessage
	if json.Unmarshal(value, &fields) != nil || !isRecord(fields) {
		return AnalysisRecord{FileID: id, Result: value}, nil
	}

	var rec AnalysisRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return AnalysisRecord{}, err
	}
	if rec.FileID == "" {
		rec.FileID = id
	}
	return rec, nil
}

func isRecord(fields map[string]json.RawMessage) bool {
	_, hasResult := fields["result"]
	_, hasID := fields["fileId"]
	return hasResult && hasID
}

func (s *JSONStore) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
