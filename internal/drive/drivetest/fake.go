// Package drivetest provides an in-memory drive.Provider for tests.
package drivetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
)

// File is one remote item held by the fake.
type File struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
	Content  []byte
	Trashed  bool
	Modified *time.Time
}

// Provider is a drive.Provider backed by a map. Listing order is insertion
// order. Errors can be injected per id.
type Provider struct {
	mu    sync.Mutex
	files map[string]*File
	order []string

	ListErr map[string]error
	MetaErr map[string]error
	OpenErr map[string]error
	// ReadErr makes the content stream of an id fail after half its bytes.
	ReadErr map[string]error

	listCalls   int
	metaCalls   int
	openStreams int
}

var _ drive.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		files:   make(map[string]*File),
		ListErr: make(map[string]error),
		MetaErr: make(map[string]error),
		OpenErr: make(map[string]error),
		ReadErr: make(map[string]error),
	}
}

func (p *Provider) Add(f File) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.files[f.ID]; !exists {
		p.order = append(p.order, f.ID)
	}
	cp := f
	p.files[f.ID] = &cp
	return p
}

// AddFolder adds a folder under parent. An empty parent makes a top level item.
func (p *Provider) AddFolder(id, name, parent string) *Provider {
	return p.Add(File{ID: id, Name: name, MimeType: drive.FolderMimeType, Parents: parents(parent)})
}

func (p *Provider) AddFile(id, name, parent, content string) *Provider {
	return p.Add(File{ID: id, Name: name, MimeType: mimeFor(name), Parents: parents(parent), Content: []byte(content)})
}

func (p *Provider) ListChildren(ctx context.Context, folderID string) ([]drive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++

	if err := p.ListErr[folderID]; err != nil {
		return nil, err
	}

	var entries []drive.Entry
	for _, id := range p.order {
		f := p.files[id]
		if !hasParent(f, folderID) {
			continue
		}
		entries = append(entries, drive.Entry{
			ID:           f.ID,
			Name:         f.Name,
			MimeType:     f.MimeType,
			ModifiedTime: f.Modified,
			Size:         int64(len(f.Content)),
			Trashed:      f.Trashed,
		})
	}
	return entries, nil
}

func (p *Provider) GetMetadata(ctx context.Context, fileID string) (*drive.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.metaCalls++

	if err := p.MetaErr[fileID]; err != nil {
		return nil, err
	}
	f, ok := p.files[fileID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", fileID, drive.ErrNotFound)
	}
	return &drive.Metadata{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		Parents:  append([]string(nil), f.Parents...),
	}, nil
}

func (p *Provider) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.OpenErr[fileID]; err != nil {
		return nil, err
	}
	f, ok := p.files[fileID]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", fileID, drive.ErrNotFound)
	}

	var r io.Reader = bytes.NewReader(f.Content)
	if err := p.ReadErr[fileID]; err != nil {
		half := len(f.Content) / 2
		r = io.MultiReader(bytes.NewReader(f.Content[:half]), failingReader{err: err})
	}

	p.openStreams++
	return &stream{Reader: r, p: p}, nil
}

// OpenStreams reports content streams opened and not yet closed.
func (p *Provider) OpenStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openStreams
}

func (p *Provider) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

func (p *Provider) MetaCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metaCalls
}

type stream struct {
	io.Reader
	p      *Provider
	closed bool
}

func (s *stream) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.p.openStreams--
	}
	return nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func parents(parent string) []string {
	if parent == "" {
		return nil
	}
	return []string{parent}
}

func hasParent(f *File, id string) bool {
	for _, p := range f.Parents {
		if p == id {
			return true
		}
	}
	return false
}

func mimeFor(name string) string {
	switch {
	case hasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case hasSuffix(name, ".wav"):
		return "audio/wav"
	case hasSuffix(name, ".flac"):
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
