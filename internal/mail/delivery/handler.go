package delivery

import (
	"net/http"
	"strconv"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/internal/mail/usecase"
	"mailvault-backend/pkg/imapx"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	syncUsecase usecase.SyncUsecase
}

func NewSyncHandler(syncUsecase usecase.SyncUsecase) *SyncHandler {
	return &SyncHandler{
		syncUsecase: syncUsecase,
	}
}

type startSyncRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
}

func (h *SyncHandler) StartSync(c *gin.Context) {
	var req startSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Port == 0 {
		req.Port = 993
	}

	if err := h.syncUsecase.StartSync(c.Request.Context(), req.Email, req.Password, req.Host, req.Port); err != nil {
		if imapx.IsAuth(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "sync started"})
}

func (h *SyncHandler) Shutdown(c *gin.Context) {
	h.syncUsecase.Shutdown()
	c.JSON(http.StatusOK, gin.H{"message": "sync stopped"})
}

func (h *SyncHandler) ListFolders(c *gin.Context) {
	folders, err := h.syncUsecase.ListFolders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func (h *SyncHandler) LoadNewest(c *gin.Context) {
	page, err := h.syncUsecase.LoadNewestPage(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *SyncHandler) LoadOlder(c *gin.Context) {
	page, err := h.syncUsecase.LoadOlderPage(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *SyncHandler) GetBody(c *gin.Context) {
	uid64, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uid"})
		return
	}

	body, err := h.syncUsecase.LoadBody(c.Request.Context(), c.Param("id"), uint32(uid64))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *SyncHandler) DownloadAttachment(c *gin.Context) {
	att, r, err := h.syncUsecase.OpenAttachment(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer r.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.Size, contentType, r, map[string]string{
		"Content-Disposition": `attachment; filename="` + att.FileName + `"`,
	})
}

func (h *SyncHandler) Search(c *gin.Context) {
	query := c.Query("q")
	mode := maildomain.SearchMode(c.DefaultQuery("mode", string(maildomain.ModeAuto)))

	var since *time.Time
	if s := c.Query("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since, expected RFC3339"})
			return
		}
		utc := parsed.UTC()
		since = &utc
	}

	var uidCursor *uint32
	if s := c.Query("uid_cursor"); s != "" {
		parsed, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uid_cursor"})
			return
		}
		cursor := uint32(parsed)
		uidCursor = &cursor
	}

	results, err := h.syncUsecase.Search(c.Request.Context(), query, mode, since, uidCursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *SyncHandler) Suggestions(c *gin.Context) {
	limit := 10
	if s := c.Query("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	suggestions, err := h.syncUsecase.Suggestions(c.Query("q"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
