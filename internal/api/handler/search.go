package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/perchapp/perch/internal/service"
)

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	searchService *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searchService: search service instance.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search handles POST /api/v1/search.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrSearchUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Search is temporarily unavailable: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SearchGet handles GET /api/v1/search for simple search queries.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) SearchGet(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}

	req := service.SearchRequest{
		Query:  query,
		UserID: c.Query("user_id"),
	}

	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			req.Limit = n
		}
	}
	if contentType := c.Query("content_type"); contentType != "" {
		req.ContentType = &contentType
	}
	if followed := c.Query("followed_only"); followed == "true" {
		req.FollowedOnly = true
	}

	result, err := h.searchService.Search(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrSearchUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Search is temporarily unavailable: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) GetStats(c *gin.Context) {
	stats, err := h.searchService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
