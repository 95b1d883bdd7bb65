package drive

import (
	"encoding/json"
	"time"
)

// FolderMimeType is the mime type Drive uses to mark folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// Entry is one child record returned by a folder listing.
type Entry struct {
	ID           string
	Name         string
	MimeType     string
	CreatedTime  *time.Time
	ModifiedTime *time.Time
	Size         int64
	Trashed      bool
}

func (e Entry) IsFolder() bool {
	return e.MimeType == FolderMimeType
}

// Metadata is the subset of a file resource needed to walk parents.
type Metadata struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
}

func (m Metadata) IsFolder() bool {
	return m.MimeType == FolderMimeType
}

// FileNode is one node of an enumerated tree. Path is rebuilt on every
// enumeration and is the slash-joined list of names below the start folder.
type FileNode struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	MimeType     string      `json:"mimeType"`
	CreatedTime  *time.Time  `json:"createdTime,omitempty"`
	ModifiedTime *time.Time  `json:"modifiedTime,omitempty"`
	Path         string      `json:"path"`
	Children     []*FileNode `json:"children,omitempty"`
}

func (n FileNode) IsFolder() bool {
	return n.MimeType == FolderMimeType
}

// MarshalJSON always emits children for folders, even empty ones, and never
// for files.
func (n FileNode) MarshalJSON() ([]byte, error) {
	type alias FileNode
	a := alias(n)
	if !n.IsFolder() {
		a.Children = nil
		return json.Marshal(&a)
	}

	children := n.Children
	if children == nil {
		children = []*FileNode{}
	}
	return json.Marshal(struct {
		*alias
		Children []*FileNode `json:"children"`
	}{&a, children})
}

func newNode(e Entry, path string) *FileNode {
	return &FileNode{
		ID:           e.ID,
		Name:         e.Name,
		MimeType:     e.MimeType,
		CreatedTime:  e.CreatedTime,
		ModifiedTime: e.ModifiedTime,
		Path:         path,
	}
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

// Flatten returns every node of the forest keyed by ID.
func Flatten(nodes []*FileNode) map[string]*FileNode {
	result := make(map[string]*FileNode)
	stack := append([]*FileNode(nil), nodes...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		result[n.ID] = n
		stack = append(stack, n.Children...)
	}
	return result
}

// CountNodes counts all nodes in the forest.
func CountNodes(nodes []*FileNode) int {
	count := 0
	for _, n := range nodes {
		count += 1 + CountNodes(n.Children)
	}
	return count
}
