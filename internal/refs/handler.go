package refs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bibxml/pkg/models"
)

// MaxRecordsPerResponse bounds the default page of the legacy search.
const MaxRecordsPerResponse = 100

// CitationBuilder builds a normalized item for a document identifier.
type CitationBuilder interface {
	BuildCitationForDocID(ctx context.Context, id, doctype string) (*models.BibliographicItem, error)
}

// DOIResolver looks up a DOI outside the Record Store.
type DOIResolver interface {
	Resolve(ctx context.Context, doi string) (*models.BibliographicItem, error)
}

type Handler struct {
	Repo      *Repo
	Citations CitationBuilder
	DOI       DOIResolver
	Logger    *slog.Logger
}

func NewHandler(repo *Repo, citations CitationBuilder, doi DOIResolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Repo: repo, Citations: citations, DOI: doi, Logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ref/:dataset/*ref", h.getRef) // GET /api/v1/ref/:dataset/:ref
	rg.GET("/by-docid", h.getByDocID)      // GET /api/v1/by-docid?docid=&doctype=
	rg.POST("/search", h.search)           // POST /api/v1/search
}

func (h *Handler) getRef(c *gin.Context) {
	dataset := strings.ToLower(c.Param("dataset"))
	ref := strings.TrimPrefix(c.Param("ref"), "/")
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref required"})
		return
	}

	if dataset == "doi" {
		h.getDOIRef(c, ref)
		return
	}

	rd, err := h.Repo.Get(c.Request.Context(), dataset, ref)
	if err != nil {
		h.Logger.Error("get ref failed", "dataset", dataset, "ref", ref, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if rd == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Unable to find ref %s in dataset %s", ref, dataset),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rd.Body})
}

func (h *Handler) getDOIRef(c *gin.Context, ref string) {
	if h.DOI == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Unable to find ref %s in dataset DOI", ref),
		})
		return
	}
	item, err := h.DOI.Resolve(c.Request.Context(), ref)
	if err != nil {
		h.Logger.Info("doi lookup failed", "ref", ref, "error", err)
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Unable to find ref %s in dataset DOI", ref),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *Handler) getByDocID(c *gin.Context) {
	docid := strings.TrimSpace(c.Query("docid"))
	doctype := strings.TrimSpace(c.Query("doctype"))
	if docid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "docid required"})
		return
	}

	item, err := h.Citations.BuildCitationForDocID(c.Request.Context(), docid, doctype)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalid):
			h.Logger.Warn("item for docid did not validate", "docid", docid, "doctype", doctype, "error", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation problem"})
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

type searchReq struct {
	Fields  any    `json:"fields"`
	Dataset string `json:"dataset"`
	Offset  any    `json:"offset"`
	Limit   any    `json:"limit"`
}

func (h *Handler) search(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	var req searchReq
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "JSON decode error"})
		return
	}

	offset := parseDigits(req.Offset, 0)
	limit := parseDigits(req.Limit, MaxRecordsPerResponse)

	data := make([]models.RefData, 0)
	total := 0

	if fields, ok := req.Fields.(map[string]any); ok {
		matched, err := h.Repo.Match(c.Request.Context(), fields, req.Dataset)
		if err != nil {
			h.Logger.Error("search failed", "dataset", req.Dataset, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}
		total = len(matched)
		start := getStart(total, offset)
		end := getEnd(total, start+limit)
		data = page(matched, start, end)
	}

	c.JSON(http.StatusOK, gin.H{
		"results": gin.H{
			"total_records": total,
			"records":       len(data),
			"offset":        offset,
			"limit":         limit,
		},
		"data": data,
	})
}

// parseDigits accepts only strings of ASCII digits, like the legacy API.
func parseDigits(v any, def int) int {
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// getStart keeps the legacy bound check, including its asymmetric
// total-offset branch; page clamps the result.
func getStart(total, offset int) int {
	if total > MaxRecordsPerResponse {
		if offset <= total-MaxRecordsPerResponse {
			return offset
		}
		return total - offset
	}
	if offset < total {
		return offset
	}
	return total
}

func getEnd(total, limit int) int {
	if limit > total {
		return total
	}
	return limit
}

func page(rows []models.RefData, start, end int) []models.RefData {
	if start < 0 {
		start = 0
	}
	if end > len(rows) {
		end = len(rows)
	}
	if start >= end {
		return []models.RefData{}
	}
	return rows[start:end]
}
