package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
)

const (
	defaultListConcurrency = 4
	defaultMaxDepth        = 64
)

// Options configures a Service.
type Options struct {
	RootFolderID string
	// ListConcurrency bounds how many folder listings of one tree level run
	// at once. 1 walks strictly sequentially.
	ListConcurrency int
	// MaxDepth bounds folder nesting for both enumeration and path
	// resolution. Zero applies the default.
	MaxDepth int
}

// Service runs tree enumeration, path resolution and archive streaming
// against a Provider rooted at one configured folder.
type Service struct {
	provider        Provider
	rootID          string
	listConcurrency int
	maxDepth        int
}

func NewService(provider Provider, opts Options) *Service {
	if opts.ListConcurrency <= 0 {
		opts.ListConcurrency = defaultListConcurrency
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	return &Service{
		provider:        provider,
		rootID:          opts.RootFolderID,
		listConcurrency: opts.ListConcurrency,
		maxDepth:        opts.MaxDepth,
	}
}

func (s *Service) RootFolderID() string {
	return s.rootID
}

// ListTree enumerates the whole tree below the configured root.
func (s *Service) ListTree(ctx context.Context) ([]*FileNode, error) {
	return s.Enumerate(ctx, s.rootID, "")
}

// ListSubtree enumerates the folder at a slash separated path below the
// root. Paths of the returned nodes keep the given prefix so they match the
// full tree.
func (s *Service) ListSubtree(ctx context.Context, path string) ([]*FileNode, error) {
	folderID, err := s.FindFolderByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Enumerate(ctx, folderID, strings.Trim(path, "/"))
}

// ListFolder returns the non-trashed immediate children of folderID in
// listing order.
func (s *Service) ListFolder(ctx context.Context, folderID string) ([]Entry, error) {
	entries, err := s.provider.ListChildren(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folderID, err)
	}
	return visible(entries), nil
}

// GetMetadata fetches name, mime type and parents of a single file.
func (s *Service) GetMetadata(ctx context.Context, fileID string) (*Metadata, error) {
	return s.provider.GetMetadata(ctx, fileID)
}

// OpenContent streams a file straight from the provider. Nothing is cached.
func (s *Service) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return s.provider.OpenContent(ctx, fileID)
}

// FindFolderByPath walks folder names down from the root and returns the id
// of the last one.
func (s *Service) FindFolderByPath(ctx context.Context, path string) (string, error) {
	currentID := s.rootID

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}

		entries, err := s.provider.ListChildren(ctx, currentID)
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", name, err)
		}

		folder, ok := lo.Find(entries, func(e Entry) bool {
			return !e.Trashed && e.IsFolder() && e.Name == name
		})
		if !ok {
			return "", fmt.Errorf("folder %q: %w", name, ErrNotFound)
		}

		currentID = folder.ID
	}

	return currentID, nil
}

// visible drops trashed entries a provider may still have returned.
func visible(entries []Entry) []Entry {
	return lo.Filter(entries, func(e Entry, _ int) bool {
		return !e.Trashed
	})
}
