package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Creds  Credentials
	Tokens TokenService
}

func NewHandler(creds Credentials, tokens TokenService) *Handler {
	return &Handler{Creds: creds, Tokens: tokens}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/token", h.token) // POST /auth/token with basic credentials
}

func (h *Handler) token(c *gin.Context) {
	if !h.Creds.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "management access is not configured"})
		return
	}

	user, pass, ok := c.Request.BasicAuth()
	if !ok || !h.Creds.Check(user, pass) {
		// don't reveal which part failed
		c.Header("WWW-Authenticate", `Basic realm="bibxml"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, exp, err := h.Tokens.Sign(user, ScopeManage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"scope":      ScopeManage,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}
