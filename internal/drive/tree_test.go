package drive_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/drive/drivetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootID = "root"

// randomTree fills p with a tree of at most maxDepth levels below rootID and
// returns the expected path of every generated id.
func randomTree(rng *rand.Rand, p *drivetest.Provider, maxDepth int) map[string]string {
	paths := make(map[string]string)
	seq := 0

	var grow func(parentID, parentPath string, depth int)
	grow = func(parentID, parentPath string, depth int) {
		for i := range rng.IntN(4) + 1 {
			seq++
			id := fmt.Sprintf("n%d", seq)
			name := fmt.Sprintf("item-%d-%d", depth, i)
			path := name
			if parentPath != "" {
				path = parentPath + "/" + name
			}

			if depth < maxDepth && rng.IntN(2) == 0 {
				p.AddFolder(id, name, parentID)
				paths[id] = path
				grow(id, path, depth+1)
				continue
			}

			p.AddFile(id, name+".mp3", parentID, "audio-"+id)
			paths[id] = path + ".mp3"
		}
	}
	grow(rootID, "", 1)
	return paths
}

func newService(p drive.Provider, concurrency int) *drive.Service {
	return drive.NewService(p, drive.Options{RootFolderID: rootID, ListConcurrency: concurrency})
}

func TestEnumerate_PathsMatchAncestors(t *testing.T) {
	for seed := range uint64(20) {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			p := drivetest.New()
			want := randomTree(rand.New(rand.NewPCG(seed, 7)), p, 5)

			for _, concurrency := range []int{1, 4} {
				nodes, err := newService(p, concurrency).ListTree(context.Background())
				require.NoError(t, err)

				got := drive.Flatten(nodes)
				require.Len(t, got, len(want))
				for id, path := range want {
					require.Contains(t, got, id)
					assert.Equal(t, path, got[id].Path, "node %s", id)
				}
			}
		})
	}
}

func TestEnumerate_KeepsListingOrderAndShape(t *testing.T) {
	p := drivetest.New().
		AddFolder("f1", "Album", rootID).
		AddFile("a", "b-side.wav", "f1", "b").
		AddFile("b", "a-side.wav", "f1", "a").
		AddFolder("f2", "Empty", rootID).
		AddFile("c", "intro.mp3", rootID, "c")

	nodes, err := newService(p, 2).ListTree(context.Background())
	require.NoError(t, err)

	require.Len(t, nodes, 3)
	assert.Equal(t, "Album", nodes[0].Path)
	assert.Equal(t, []string{"Album/b-side.wav", "Album/a-side.wav"},
		[]string{nodes[0].Children[0].Path, nodes[0].Children[1].Path})
	assert.NotNil(t, nodes[1].Children)
	assert.Empty(t, nodes[1].Children)
	assert.Equal(t, "intro.mp3", nodes[2].Path)
	assert.Nil(t, nodes[2].Children)
}

func TestEnumerate_ExcludesTrashed(t *testing.T) {
	p := drivetest.New().
		AddFolder("f1", "Live", rootID).
		AddFile("keep", "keep.mp3", "f1", "x").
		Add(drivetest.File{ID: "gone", Name: "gone.mp3", Parents: []string{"f1"}, Trashed: true}).
		Add(drivetest.File{ID: "old", Name: "Old", MimeType: drive.FolderMimeType, Parents: []string{rootID}, Trashed: true}).
		AddFile("inside-old", "inside.mp3", "old", "y")

	nodes, err := newService(p, 1).ListTree(context.Background())
	require.NoError(t, err)

	all := drive.Flatten(nodes)
	assert.Contains(t, all, "keep")
	assert.NotContains(t, all, "gone")
	assert.NotContains(t, all, "old")
	assert.NotContains(t, all, "inside-old")
}

func TestEnumerate_Idempotent(t *testing.T) {
	p := drivetest.New()
	randomTree(rand.New(rand.NewPCG(42, 42)), p, 5)
	svc := newService(p, 3)

	first, err := svc.ListTree(context.Background())
	require.NoError(t, err)
	second, err := svc.ListTree(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first[0], second[0])
}

func TestEnumerate_FailureReturnsNoTree(t *testing.T) {
	p := drivetest.New().
		AddFolder("f1", "A", rootID).
		AddFolder("f2", "B", rootID).
		AddFolder("f3", "C", "f2").
		AddFile("x", "x.mp3", "f1", "x")
	p.ListErr["f3"] = fmt.Errorf("list: %w", drive.ErrProviderUnavailable)

	nodes, err := newService(p, 2).ListTree(context.Background())
	require.Error(t, err)
	assert.Nil(t, nodes)
	assert.ErrorIs(t, err, drive.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "B/C")
}

func TestEnumerate_CycleIsNotExpandedTwice(t *testing.T) {
	p := drivetest.New().
		AddFolder("a", "A", rootID).
		AddFolder("b", "B", "a")
	// a also lists b as a parent, so b lists a again
	p.Add(drivetest.File{ID: "a", Name: "A", MimeType: drive.FolderMimeType, Parents: []string{rootID, "b"}})

	nodes, err := newService(p, 1).ListTree(context.Background())
	require.NoError(t, err)

	require.Len(t, nodes, 1)
	b := nodes[0].Children[0]
	assert.Equal(t, "A/B", b.Path)

	require.Len(t, b.Children, 1)
	again := b.Children[0]
	assert.Equal(t, "a", again.ID)
	assert.Equal(t, "A/B/A", again.Path)
	assert.Empty(t, again.Children)
}

func TestEnumerate_MaxDepth(t *testing.T) {
	p := drivetest.New()
	parent := rootID
	for i := range 6 {
		id := fmt.Sprintf("d%d", i)
		p.AddFolder(id, id, parent)
		parent = id
	}

	svc := drive.NewService(p, drive.Options{RootFolderID: rootID, MaxDepth: 3})
	_, err := svc.ListTree(context.Background())
	assert.ErrorIs(t, err, drive.ErrTreeTooDeep)

	svc = drive.NewService(p, drive.Options{RootFolderID: rootID, MaxDepth: 10})
	_, err = svc.ListTree(context.Background())
	assert.NoError(t, err)
}

func TestEnumerate_MaxDepthMatchesResolvePath(t *testing.T) {
	p := drivetest.New().
		AddFolder("a", "A", rootID).
		AddFolder("b", "B", "a")
	svc := drive.NewService(p, drive.Options{RootFolderID: rootID, MaxDepth: 2})

	nodes, err := svc.ListTree(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Children, 1)
	assert.Equal(t, "A/B", nodes[0].Children[0].Path)
	assert.NotNil(t, nodes[0].Children[0].Children)
	assert.Empty(t, nodes[0].Children[0].Children)

	path, err := svc.ResolvePath(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "A/B", path)

	p.AddFile("c", "take.wav", "b", "x")

	_, err = svc.ListTree(context.Background())
	assert.ErrorIs(t, err, drive.ErrTreeTooDeep)
	_, err = svc.ResolvePath(context.Background(), "c")
	assert.ErrorIs(t, err, drive.ErrTreeTooDeep)
}

func TestEnumerate_CanceledContext(t *testing.T) {
	p := drivetest.New().AddFolder("f1", "A", rootID)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(p, 1).ListTree(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListSubtree_KeepsPrefix(t *testing.T) {
	p := drivetest.New().
		AddFolder("f1", "Sessions", rootID).
		AddFolder("f2", "2024", "f1").
		AddFile("x", "take.wav", "f2", "x")

	nodes, err := newService(p, 1).ListSubtree(context.Background(), "/Sessions/2024/")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Sessions/2024/take.wav", nodes[0].Path)

	_, err = newService(p, 1).ListSubtree(context.Background(), "Sessions/missing")
	assert.ErrorIs(t, err, drive.ErrNotFound)
}
