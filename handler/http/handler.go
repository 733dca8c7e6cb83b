package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shelf/src/core/search"
	"shelf/src/infrastructure/log"
)

// StatusClientClosedRequest is written when the caller went away mid-search
const StatusClientClosedRequest = 499

// SearchService runs validated searches
type SearchService interface {
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	Config() search.Config
}

type Handler struct {
	searchService SearchService
	system        SystemInfo
	jwtSecret     []byte
}

func NewHandler(searchService SearchService, system SystemInfo, jwtSecret []byte) *Handler {
	return &Handler{
		searchService: searchService,
		system:        system,
		jwtSecret:     jwtSecret,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// System routes
	api.GET("/health", h.CheckHealth)

	// Search routes
	authed := api.Group("", RequireUser(h.jwtSecret))
	authed.GET("/search", h.Search)
}

// Common error response structure
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sendError(c *gin.Context, err error) {
	var (
		code   string
		status int
	)
	switch {
	case errors.Is(err, context.Canceled):
		c.AbortWithStatus(StatusClientClosedRequest)
		return
	case errors.Is(err, search.ErrInvalidQuery):
		code = "INVALID_QUERY"
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		code = "UNAUTHORIZED"
		status = http.StatusUnauthorized
	default:
		log.Error(err, "Request failed", "path", c.FullPath())
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
