package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/perchapp/perch/internal/domain"
	"github.com/perchapp/perch/internal/repository"
	"github.com/perchapp/perch/internal/service"
)

// RecordHandler handles recommendation and annotation write endpoints. Every
// successful write enqueues an embedding task, so new records become
// searchable without any extra step.
type RecordHandler struct {
	records *repository.RecordRepository
	queue   *service.EmbeddingQueue
}

// NewRecordHandler creates a new record handler.
// Parameters:
//   - records: record repository instance.
//   - queue: embedding task queue.
// Returns:
//   - *RecordHandler: initialized handler.
func NewRecordHandler(records *repository.RecordRepository, queue *service.EmbeddingQueue) *RecordHandler {
	return &RecordHandler{
		records: records,
		queue:   queue,
	}
}

// CreateRecommendationRequest is the write payload for a recommendation.
type CreateRecommendationRequest struct {
	AuthorID    string                 `json:"author_id" binding:"required"`
	ContentType domain.ContentType     `json:"content_type" binding:"required"`
	PlaceID     *string                `json:"place_id,omitempty"`
	ServiceID   *string                `json:"service_id,omitempty"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	ContentData map[string]interface{} `json:"content_data,omitempty"`
	Rating      int                    `json:"rating"`
	Visibility  domain.Visibility      `json:"visibility"`
	Labels      []string               `json:"labels,omitempty"`
	VisitedAt   *time.Time             `json:"visited_at,omitempty"`
}

// CreateAnnotationRequest is the write payload for an annotation.
type CreateAnnotationRequest struct {
	AuthorID    string                 `json:"author_id" binding:"required"`
	ContentType domain.ContentType     `json:"content_type" binding:"required"`
	PlaceID     *string                `json:"place_id,omitempty"`
	ServiceID   *string                `json:"service_id,omitempty"`
	Body        string                 `json:"body"`
	ContentData map[string]interface{} `json:"content_data,omitempty"`
	Visibility  domain.Visibility      `json:"visibility"`
	Labels      []string               `json:"labels,omitempty"`
}

func validContentType(ct domain.ContentType) bool {
	switch ct {
	case domain.ContentTypePlace, domain.ContentTypeService, domain.ContentTypeTip,
		domain.ContentTypeContact, domain.ContentTypeUnclear:
		return true
	}
	return false
}

// CreateRecommendation handles POST /api/v1/recommendations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RecordHandler) CreateRecommendation(c *gin.Context) {
	var req CreateRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if !validContentType(req.ContentType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid content_type: " + string(req.ContentType),
		})
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Rating must be between 1 and 5 (0 for unrated)",
		})
		return
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityFriends
	}

	rec := &domain.Recommendation{
		ID:          uuid.New().String(),
		AuthorID:    req.AuthorID,
		ContentType: req.ContentType,
		PlaceID:     req.PlaceID,
		ServiceID:   req.ServiceID,
		Title:       req.Title,
		Description: req.Description,
		ContentData: req.ContentData,
		Rating:      req.Rating,
		Visibility:  visibility,
		Labels:      req.Labels,
		VisitedAt:   req.VisitedAt,
	}

	if err := h.records.CreateRecommendation(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create recommendation: " + err.Error(),
		})
		return
	}

	taskID := h.queue.Enqueue(domain.TaskKindRecommendation, rec.ID, domain.PriorityNormal)

	c.JSON(http.StatusCreated, gin.H{
		"recommendation": rec,
		"task_id":        taskID,
	})
}

// CreateAnnotation handles POST /api/v1/annotations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RecordHandler) CreateAnnotation(c *gin.Context) {
	var req CreateAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if !validContentType(req.ContentType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid content_type: " + string(req.ContentType),
		})
		return
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityFriends
	}

	ann := &domain.Annotation{
		ID:          uuid.New().String(),
		AuthorID:    req.AuthorID,
		ContentType: req.ContentType,
		PlaceID:     req.PlaceID,
		ServiceID:   req.ServiceID,
		Body:        req.Body,
		ContentData: req.ContentData,
		Visibility:  visibility,
		Labels:      req.Labels,
	}

	if err := h.records.CreateAnnotation(c.Request.Context(), ann); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create annotation: " + err.Error(),
		})
		return
	}

	taskID := h.queue.Enqueue(domain.TaskKindAnnotation, ann.ID, domain.PriorityNormal)

	c.JSON(http.StatusCreated, gin.H{
		"annotation": ann,
		"task_id":    taskID,
	})
}

// GetRecommendation handles GET /api/v1/recommendations/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RecordHandler) GetRecommendation(c *gin.Context) {
	rec, err := h.records.GetRecommendation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Recommendation not found",
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}
