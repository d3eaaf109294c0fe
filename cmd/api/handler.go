package api

import (
	mailusecase "mailvault-backend/internal/mail/usecase"
	"mailvault-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	syncUsecase mailusecase.SyncUsecase
	sseManager  *sse.Manager
}

func NewHandler(syncUsecase mailusecase.SyncUsecase, sseManager *sse.Manager) *Handler {
	return &Handler{
		syncUsecase: syncUsecase,
		sseManager:  sseManager,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.syncUsecase, h.sseManager)

	return r.Run(addr)
}
