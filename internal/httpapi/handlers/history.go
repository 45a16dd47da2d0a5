package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modsentry/moderation-api/internal/httpapi/middleware"
	"github.com/modsentry/moderation-api/internal/moderation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const temporaryURLTTL = 5 * time.Minute

func (h *Handler) ListRequests(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
		return
	}

	search := strings.TrimSpace(c.Query("search"))

	page := 1
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	perPage := h.Cfg.HistoryPageSize
	if perPage <= 0 {
		perPage = 20
	}

	records, total, err := h.Svc.Repo().List(c.Request.Context(), user.ID, search, page, perPage)
	if err != nil {
		h.Log.Error("list requests failed", zap.Uint64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load request history"})
		return
	}

	lastPage := (total + int64(perPage) - 1) / int64(perPage)
	if lastPage < 1 {
		lastPage = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
		"meta": gin.H{
			"page":      page,
			"per_page":  perPage,
			"total":     total,
			"last_page": lastPage,
		},
		"filters": gin.H{"search": search},
	})
}

func (h *Handler) GetRequest(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	}

	rec, err := h.Svc.Repo().Get(c.Request.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
			return
		}
		h.Log.Error("get request failed", zap.Uint64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load request"})
		return
	}

	var imageURL any
	if rec.ContentType == moderation.ContentTypeImage {
		url, err := h.Blobs.TemporaryURL(c.Request.Context(), rec.Content, temporaryURLTTL)
		if err != nil {
			h.Log.Warn("temporary url failed",
				zap.Uint64("request_id", rec.ID), zap.Error(err))
		} else {
			imageURL = url
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"request": gin.H{
			"id":                rec.ID,
			"content_type":      rec.ContentType,
			"content":           rec.Content,
			"request_metadata":  decodeJSON(json.RawMessage(rec.RequestMetadata)),
			"moderation_result": decodeJSON(json.RawMessage(rec.ModerationResult)),
			"status":            rec.Status,
			"created_at":        rec.CreatedAt.Format(time.RFC3339),
			"updated_at":        rec.UpdatedAt.Format(time.RFC3339),
			"image_url":         imageURL,
		},
	})
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
