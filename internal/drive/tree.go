package drive

import (
	"context"
	"fmt"

	"github.com/andresuchdata/audiodrive/backend-go/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Enumerate lists the tree below folderID. Each node's Path is basePath
// joined with the names from folderID down to the node.
//
// The walk goes level by level over a work list: all folders of one level
// are listed (at most listConcurrency at once) before the next level
// starts. The first failed listing cancels the others and fails the whole
// call; no partial tree is returned. A folder id seen twice is attached but
// not expanded again.
func (s *Service) Enumerate(ctx context.Context, folderID, basePath string) ([]*FileNode, error) {
	top := &FileNode{ID: folderID, MimeType: FolderMimeType, Path: basePath}
	visited := map[string]struct{}{folderID: {}}
	level := []*FileNode{top}

	// depth is the depth of the nodes the current level's listings produce.
	for depth := 1; len(level) > 0; depth++ {
		listings, err := s.listLevel(ctx, level)
		if err != nil {
			return nil, err
		}

		var next []*FileNode
		for i, folder := range level {
			entries := visible(listings[i])
			if len(entries) > 0 && depth > s.maxDepth {
				return nil, fmt.Errorf("enumerate %s: %w (%d) below %q", folderID, ErrTreeTooDeep, s.maxDepth, folder.Path)
			}
			folder.Children = make([]*FileNode, 0, len(entries))

			for _, e := range entries {
				node := newNode(e, joinPath(folder.Path, e.Name))
				if e.IsFolder() {
					if _, seen := visited[e.ID]; seen {
						log.Warn().
							Str("folder_id", e.ID).
							Str("path", node.Path).
							Msg("drive: folder already visited, not expanding")
						node.Children = []*FileNode{}
					} else {
						visited[e.ID] = struct{}{}
						next = append(next, node)
					}
				}
				folder.Children = append(folder.Children, node)
			}
		}

		level = next
	}

	metrics.RecordTreeSize(CountNodes(top.Children))
	return top.Children, nil
}

// listLevel lists every folder of one level. listings[i] belongs to level[i].
func (s *Service) listLevel(ctx context.Context, level []*FileNode) ([][]Entry, error) {
	listings := make([][]Entry, len(level))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)

	for i, folder := range level {
		g.Go(func() error {
			entries, err := s.provider.ListChildren(gctx, folder.ID)
			if err != nil {
				return fmt.Errorf("list folder %s (%q): %w", folder.ID, folder.Path, err)
			}
			listings[i] = entries
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listings, nil
}
