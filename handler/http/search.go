package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"shelf/src/core/search"
)

type searchRequest struct {
	Query string `form:"q"`
	Limit *int   `form:"limit"`
}

// Search godoc
// @Summary Search the caller's bookmarks
// @Tags search
// @Produce json
// @Param q query string true "Search text"
// @Param limit query int false "Maximum number of results"
// @Success 200 {object} search.Response
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /search [get]
func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		sendError(c, fmt.Errorf("%w: %v", search.ErrInvalidQuery, err))
		return
	}

	q, err := search.NewQuery(currentUser(c), req.Query, req.Limit, h.searchService.Config())
	if err != nil {
		sendError(c, err)
		return
	}

	resp, err := h.searchService.Search(c.Request.Context(), q)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, resp)
}
