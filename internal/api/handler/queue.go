package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/perchapp/perch/internal/domain"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/repository"
	"github.com/perchapp/perch/internal/service"
)

// QueueHandler exposes embedding queue observability and admin operations.
type QueueHandler struct {
	records *repository.RecordRepository
	queue   *service.EmbeddingQueue
}

// NewQueueHandler creates a new queue handler.
// Parameters:
//   - records: record repository instance.
//   - queue: embedding task queue.
// Returns:
//   - *QueueHandler: initialized handler.
func NewQueueHandler(records *repository.RecordRepository, queue *service.EmbeddingQueue) *QueueHandler {
	return &QueueHandler{
		records: records,
		queue:   queue,
	}
}

// Status handles GET /api/v1/embeddings/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QueueHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Status())
}

// Backfill handles POST /api/v1/admin/embeddings/backfill. It enqueues every
// record that has never been embedded, at low priority so interactive writes
// keep jumping ahead.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QueueHandler) Backfill(c *gin.Context) {
	ctx := c.Request.Context()

	recIDs, err := h.records.ListUnembeddedRecommendationIDs(ctx, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list recommendations: " + err.Error(),
		})
		return
	}
	annIDs, err := h.records.ListUnembeddedAnnotationIDs(ctx, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list annotations: " + err.Error(),
		})
		return
	}

	for _, id := range recIDs {
		h.queue.Enqueue(domain.TaskKindRecommendation, id, domain.PriorityLow)
	}
	for _, id := range annIDs {
		h.queue.Enqueue(domain.TaskKindAnnotation, id, domain.PriorityLow)
	}

	logger.CtxInfo(ctx, "Backfill enqueued: recommendations=%d, annotations=%d", len(recIDs), len(annIDs))

	c.JSON(http.StatusAccepted, gin.H{
		"recommendations_enqueued": len(recIDs),
		"annotations_enqueued":     len(annIDs),
	})
}

// Regenerate handles POST /api/v1/admin/embeddings/regenerate. It re-enqueues
// every recommendation regardless of embedding state, for model migrations.
// Deterministic point IDs make this idempotent: each record overwrites its
// own vector.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QueueHandler) Regenerate(c *gin.Context) {
	ctx := c.Request.Context()

	ids, err := h.records.ListAllRecommendationIDs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list recommendations: " + err.Error(),
		})
		return
	}

	for _, id := range ids {
		h.queue.Enqueue(domain.TaskKindRecommendation, id, domain.PriorityLow)
	}

	logger.CtxInfo(ctx, "Regeneration enqueued: recommendations=%d", len(ids))

	c.JSON(http.StatusAccepted, gin.H{
		"recommendations_enqueued": len(ids),
	})
}
