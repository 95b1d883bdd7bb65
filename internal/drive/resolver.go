package drive

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// ResolvePath rebuilds the path of fileID by walking its parent chain up to
// the configured root. The result has the same format Enumerate assigns.
//
// Only the first listed parent is followed. Drive still reports several
// parents for some legacy items; those resolve through parents[0] only.
func (s *Service) ResolvePath(ctx context.Context, fileID string) (string, error) {
	if fileID == s.rootID {
		return "", nil
	}

	var segments []string
	seen := make(map[string]struct{})
	current := fileID

	for {
		if _, ok := seen[current]; ok {
			return "", fmt.Errorf("resolve path of %s: %w at %s", fileID, ErrParentCycle, current)
		}
		seen[current] = struct{}{}

		meta, err := s.provider.GetMetadata(ctx, current)
		if err != nil {
			return "", fmt.Errorf("resolve path of %s: %w", fileID, err)
		}

		segments = append(segments, meta.Name)
		if len(segments) > s.maxDepth {
			return "", fmt.Errorf("resolve path of %s: %w (%d)", fileID, ErrTreeTooDeep, s.maxDepth)
		}

		if len(meta.Parents) > 1 {
			log.Debug().
				Str("file_id", current).
				Strs("parents", meta.Parents).
				Msg("drive: multiple parents, following the first")
		}

		if len(meta.Parents) == 0 || meta.Parents[0] == s.rootID {
			break
		}
		current = meta.Parents[0]
	}

	slices.Reverse(segments)
	return strings.Join(segments, "/"), nil
}
