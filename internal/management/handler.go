// Package management exposes the manual map editing API.
package management

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bibxml/pkg/models"
)

type ManualMapStore interface {
	Get(ctx context.Context, subpath string) (*models.ManualPathMap, error)
	List(ctx context.Context, prefix string) ([]models.ManualPathMap, error)
	Upsert(ctx context.Context, item models.ManualPathMap) error
	UpsertMany(ctx context.Context, items []models.ManualPathMap) error
	Delete(ctx context.Context, subpath string) (bool, error)
}

// Notifier is told about every manual map change.
type Notifier interface {
	PublishManualMap(subpath, docid string)
}

type Handler struct {
	Store    ManualMapStore
	Notifier Notifier
	Logger   *slog.Logger
}

func NewHandler(store ManualMapStore, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Store: store, Notifier: notifier, Logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/manual-map", h.export)       // ?prefix=bibxml/
	rg.POST("/manual-map", h.importMap)   // {"entries": [{xml2rfc_subpath, docid}]}
	rg.PUT("/manual-map/*subpath", h.put) // {docid}
	rg.DELETE("/manual-map/*subpath", h.remove)
}

func (h *Handler) export(c *gin.Context) {
	items, err := h.Store.List(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		h.Logger.Error("export manual map failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

type importEntry struct {
	Subpath string `json:"xml2rfc_subpath" binding:"required"`
	DocID   string `json:"docid" binding:"required"`
}

type importReq struct {
	Entries []importEntry `json:"entries" binding:"required,min=1,dive"`
}

func (h *Handler) importMap(c *gin.Context) {
	var req importReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json", "details": err.Error()})
		return
	}

	items := make([]models.ManualPathMap, 0, len(req.Entries))
	for _, e := range req.Entries {
		items = append(items, models.ManualPathMap{Subpath: cleanSubpath(e.Subpath), DocID: strings.TrimSpace(e.DocID)})
	}

	if err := h.Store.UpsertMany(c.Request.Context(), items); err != nil {
		h.Logger.Error("import manual map failed", "count", len(items), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed"})
		return
	}
	for _, it := range items {
		h.notify(it.Subpath, it.DocID)
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(items)})
}

type putReq struct {
	DocID string `json:"docid" binding:"required"`
}

func (h *Handler) put(c *gin.Context) {
	subpath := cleanSubpath(c.Param("subpath"))
	if subpath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subpath required"})
		return
	}

	var req putReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "docid required"})
		return
	}
	docid := strings.TrimSpace(req.DocID)

	ctx := c.Request.Context()
	if err := h.Store.Upsert(ctx, models.ManualPathMap{Subpath: subpath, DocID: docid}); err != nil {
		h.Logger.Error("update manual map failed", "subpath", subpath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.notify(subpath, docid)

	item, err := h.Store.Get(ctx, subpath)
	if err != nil || item == nil {
		c.JSON(http.StatusOK, gin.H{"data": models.ManualPathMap{Subpath: subpath, DocID: docid}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *Handler) remove(c *gin.Context) {
	subpath := cleanSubpath(c.Param("subpath"))
	if subpath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subpath required"})
		return
	}

	ok, err := h.Store.Delete(c.Request.Context(), subpath)
	if err != nil {
		h.Logger.Error("delete manual map failed", "subpath", subpath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no mapping for " + subpath})
		return
	}
	h.notify(subpath, "")
	c.Status(http.StatusNoContent)
}

func (h *Handler) notify(subpath, docid string) {
	if h.Notifier != nil {
		h.Notifier.PublishManualMap(subpath, docid)
	}
}

func cleanSubpath(s string) string {
	return strings.Trim(strings.TrimSpace(s), "/")
}
