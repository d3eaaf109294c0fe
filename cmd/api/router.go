package api

import (
	maildelivery "mailvault-backend/internal/mail/delivery"
	mailusecase "mailvault-backend/internal/mail/usecase"
	"mailvault-backend/pkg/sse"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, syncUsecase mailusecase.SyncUsecase, sseManager *sse.Manager) {
	syncHandler := maildelivery.NewSyncHandler(syncUsecase)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// SSE endpoint
		api.GET("/events", sseManager.ServeHTTP)

		sync := api.Group("/sync")
		{
			sync.POST("/start", syncHandler.StartSync)
			sync.POST("/shutdown", syncHandler.Shutdown)
		}

		folders := api.Group("/folders")
		{
			folders.GET("", syncHandler.ListFolders)
			folders.GET("/:id/messages/newest", syncHandler.LoadNewest)
			folders.GET("/:id/messages/older", syncHandler.LoadOlder)
			folders.GET("/:id/messages/:uid/body", syncHandler.GetBody)
		}

		api.GET("/attachments/:id", syncHandler.DownloadAttachment)

		search := api.Group("/search")
		{
			search.GET("", syncHandler.Search)
			search.GET("/suggestions", syncHandler.Suggestions)
		}
	}
}
