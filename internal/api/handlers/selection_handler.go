package handlers

import (
	"net/http"

	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/gin-gonic/gin"
)

type selectionRequest struct {
	Name string `json:"name" binding:"required"`
	Path string `json:"path" binding:"required"`
}

func (r selectionRequest) selection() store.Selection {
	return store.Selection{Name: r.Name, Path: r.Path}
}

type SelectionHandler struct {
	store store.Store
}

func NewSelectionHandler(st store.Store) *SelectionHandler {
	return &SelectionHandler{store: st}
}

func (h *SelectionHandler) Add(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and path are required"})
		return
	}

	added, err := h.store.AddSelection(c.Request.Context(), req.selection())
	if err != nil {
		respondError(c, err, "failed to save selection")
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// List returns selections, limited to paths under ?folderPath= when given.
func (h *SelectionHandler) List(c *gin.Context) {
	sels, err := h.store.ListSelections(c.Request.Context(), c.Query("folderPath"))
	if err != nil {
		respondError(c, err, "failed to fetch selections")
		return
	}
	c.JSON(http.StatusOK, sels)
}

func (h *SelectionHandler) Remove(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and path are required"})
		return
	}

	removed, err := h.store.RemoveSelection(c.Request.Context(), req.selection())
	if err != nil {
		respondError(c, err, "failed to remove selection")
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
