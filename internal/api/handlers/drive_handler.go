package handlers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// FileService is the part of drive.Service the HTTP layer uses.
type FileService interface {
	ListTree(ctx context.Context) ([]*drive.FileNode, error)
	ListSubtree(ctx context.Context, path string) ([]*drive.FileNode, error)
	ResolvePath(ctx context.Context, fileID string) (string, error)
	GetMetadata(ctx context.Context, fileID string) (*drive.Metadata, error)
	OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error)
	StreamFolderArchive(ctx context.Context, folderID string, w io.Writer) (int, error)
}

type DriveHandler struct {
	files FileService
}

func NewDriveHandler(files FileService) *DriveHandler {
	return &DriveHandler{files: files}
}

// ListFiles returns the tree below the root, or below ?path= when given.
func (h *DriveHandler) ListFiles(c *gin.Context) {
	var (
		nodes []*drive.FileNode
		err   error
	)
	if path := strings.TrimSpace(c.Query("path")); path != "" {
		nodes, err = h.files.ListSubtree(c.Request.Context(), path)
	} else {
		nodes, err = h.files.ListTree(c.Request.Context())
	}
	if err != nil {
		respondError(c, err, "failed to list files")
		return
	}

	if nodes == nil {
		nodes = []*drive.FileNode{}
	}
	c.JSON(http.StatusOK, nodes)
}

func (h *DriveHandler) GetPath(c *gin.Context) {
	fileID := c.Param("fileId")

	path, err := h.files.ResolvePath(c.Request.Context(), fileID)
	if err != nil {
		respondError(c, err, "failed to resolve file path")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": fileID, "path": path})
}

// Download streams one file as an attachment.
func (h *DriveHandler) Download(c *gin.Context) {
	fileID := c.Param("fileId")
	ctx := c.Request.Context()

	meta, err := h.files.GetMetadata(ctx, fileID)
	if err != nil {
		respondError(c, err, "failed to fetch file metadata")
		return
	}
	if meta.IsFolder() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is a folder, use the folder download"})
		return
	}

	rc, err := h.files.OpenContent(ctx, fileID)
	if err != nil {
		respondError(c, err, "failed to download file")
		return
	}
	defer rc.Close()

	contentType := meta.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", attachment(meta.Name))
	c.Status(http.StatusOK)

	n, err := io.Copy(c.Writer, rc)
	metrics.RecordContentDownload(n)
	if err != nil {
		abortStream(c, err, "failed to stream file")
		return
	}

	log.Debug().Str("file_id", fileID).Int64("bytes", n).Msg("download complete")
}

// DownloadFolder streams the files directly inside a folder as one ZIP.
func (h *DriveHandler) DownloadFolder(c *gin.Context) {
	folderID := c.Param("folderId")

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", attachment(fmt.Sprintf("folder_%s.zip", folderID)))
	c.Status(http.StatusOK)

	entries, err := h.files.StreamFolderArchive(c.Request.Context(), folderID, c.Writer)
	metrics.RecordArchive(entries, err)
	if err != nil {
		abortStream(c, err, "failed to archive folder")
		return
	}

	log.Info().Str("folder_id", folderID).Int("entries", entries).Msg("folder archive complete")
}

func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
