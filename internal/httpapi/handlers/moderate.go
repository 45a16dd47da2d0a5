package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modsentry/moderation-api/internal/contentsafety"
	"github.com/modsentry/moderation-api/internal/httpapi/middleware"
	"github.com/modsentry/moderation-api/internal/moderation"
)

const maxImageBytes = 10 << 20 // 10MB

type moderateTextReq struct {
	Content    string   `json:"content"`
	Categories []string `json:"categories"`
	OutputType string   `json:"outputType"`
}

func (h *Handler) ModerateText(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
		return
	}

	var req moderateTextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid json body"})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "The content field is required."})
		return
	}
	if bad, ok := invalidCategory(req.Categories); !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid category: " + bad})
		return
	}

	res, err := h.Svc.AnalyzeText(c.Request.Context(), user, req.Content, req.Categories, req.OutputType)
	if err != nil {
		h.writeModerationError(c, err, "Moderation failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": res.RequestID,
		"result":     res.Result,
	})
}

func (h *Handler) ModerateImage(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "The image field is required."})
		return
	}
	if fh.Size > maxImageBytes {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "The image must not be larger than 10MB."})
		return
	}

	categories := c.PostFormArray("categories")
	if len(categories) == 0 {
		categories = c.PostFormArray("categories[]")
	}
	if bad, ok := invalidCategory(categories); !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid category: " + bad})
		return
	}
	outputType := c.PostForm("outputType")

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid uploaded file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid uploaded file"})
		return
	}

	if !isImage(data) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "The file must be an image."})
		return
	}

	upload := moderation.ImageUpload{
		OriginalFilename: fh.Filename,
		ContentType:      fh.Header.Get("Content-Type"),
		Data:             data,
	}

	res, err := h.Svc.AnalyzeImage(c.Request.Context(), user, upload, categories, outputType)
	if err != nil {
		h.writeModerationError(c, err, "Moderation or upload failed unexpectedly")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Analyzed and uploaded successfully",
		"request_id": res.RequestID,
		"analysis":   decodeJSON(res.Analysis),
		"upload":     res.Upload,
	})
}

func (h *Handler) writeModerationError(c *gin.Context, err error, internalLabel string) {
	var upstream *moderation.UpstreamError
	if errors.As(err, &upstream) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "Azure Content Safety error",
			"status":     upstream.Status,
			"details":    decodeJSON(upstream.Details),
			"request_id": upstream.RequestID,
		})
		return
	}

	var uploadErr *moderation.UploadError
	if errors.As(err, &uploadErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Upload failed after successful analysis",
			"request_id": uploadErr.RequestID,
			"analysis":   decodeJSON(uploadErr.Analysis),
		})
		return
	}

	var internal *moderation.InternalError
	if errors.As(err, &internal) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      internalLabel,
			"message":    internal.Message,
			"request_id": internal.RequestID,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   internalLabel,
		"message": err.Error(),
	})
}

func invalidCategory(categories []string) (string, bool) {
	allowed := map[string]struct{}{
		contentsafety.CategoryHate:     {},
		contentsafety.CategorySelfHarm: {},
		contentsafety.CategorySexual:   {},
		contentsafety.CategoryViolence: {},
	}
	for _, cat := range categories {
		if _, ok := allowed[cat]; !ok {
			return cat, false
		}
	}
	return "", true
}

func isImage(data []byte) bool {
	probe := data
	if len(probe) > 512 {
		probe = probe[:512]
	}
	ct := http.DetectContentType(probe)
	return len(ct) > 6 && ct[:6] == "image/"
}
