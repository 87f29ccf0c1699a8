package api

import (
	"github.com/gin-gonic/gin"
	"github.com/perchapp/perch/internal/api/handler"
	"github.com/perchapp/perch/internal/api/middleware"
	"github.com/perchapp/perch/internal/logger"
	"github.com/perchapp/perch/internal/repository"
	"github.com/perchapp/perch/internal/service"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	SearchService *service.SearchService
	Records       *repository.RecordRepository
	Queue         *service.EmbeddingQueue
	Logger        *logger.Logger
	Mode          string
	CORS          middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps) *gin.Engine {
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler()
	searchHandler := handler.NewSearchHandler(deps.SearchService)
	recordHandler := handler.NewRecordHandler(deps.Records, deps.Queue)
	queueHandler := handler.NewQueueHandler(deps.Records, deps.Queue)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Search
		v1.POST("/search", searchHandler.Search)
		v1.GET("/search", searchHandler.SearchGet)

		// Records
		v1.POST("/recommendations", recordHandler.CreateRecommendation)
		v1.GET("/recommendations/:id", recordHandler.GetRecommendation)
		v1.POST("/annotations", recordHandler.CreateAnnotation)

		// Embedding pipeline
		v1.GET("/embeddings/status", queueHandler.Status)

		// Admin
		v1.POST("/admin/embeddings/backfill", queueHandler.Backfill)
		v1.POST("/admin/embeddings/regenerate", queueHandler.Regenerate)

		// Stats
		v1.GET("/stats", searchHandler.GetStats)
	}

	return r
}
