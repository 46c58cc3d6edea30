package xml2rfc

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderMethods  = "X-Resolution-Methods"
	HeaderOutcomes = "X-Resolution-Outcomes"
	noCache        = "max-age=0, no-cache, no-store, must-revalidate, private"
)

var filenamePattern = regexp.MustCompile(`^_?reference\.(.+)\.xml$`)

// ParseFilename extracts the anchor from "[_]reference.<anchor>.xml".
func ParseFilename(file string) (string, bool) {
	m := filenamePattern.FindStringSubmatch(file)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Handler serves the xml2rfc compatibility tree.
type Handler struct {
	Engine *Engine
	Prefix string
	Logger *slog.Logger
}

func NewHandler(engine *Engine, prefix string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: engine, Prefix: strings.Trim(prefix, "/"), Logger: logger}
}

// Dirnames lists every served directory: each registered dataset followed
// by its aliases, in registration order.
func (h *Handler) Dirnames() []string {
	var out []string
	for _, ds := range h.Engine.Fetchers.Datasets() {
		out = append(out, ds)
		out = append(out, h.Engine.Aliases.GetAliases(ds)...)
	}
	return out
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/" + h.Prefix)
	for _, dirname := range h.Dirnames() {
		handle := h.servePath(dirname)
		g.GET("/"+dirname+"/:file", handle)  // GET /<prefix>/<dirname>/reference.<anchor>.xml
		g.HEAD("/"+dirname+"/:file", handle) // HEAD, same resolution
	}
}

func (h *Handler) servePath(dirname string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", noCache)
		c.Header(HeaderMethods, methodsHeader())

		file := c.Param("file")
		anchor, ok := ParseFilename(file)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
				"message": "Not an xml2rfc reference path: " + dirname + "/" + file,
			}})
			return
		}

		rep := h.Engine.ResolveAndRecord(c.Request.Context(), Request{
			Subpath:        dirname + "/" + file,
			Anchor:         anchor,
			AnchorOverride: c.Query("anchor"),
		}, c.GetHeader("X-Requested-With"))

		c.Header(HeaderOutcomes, rep.OutcomesHeader())

		if !rep.Found() {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": rep.FailureMessage()}})
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rep.XML))
	}
}
