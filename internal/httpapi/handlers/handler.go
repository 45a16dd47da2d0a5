package handlers

import (
	"encoding/json"

	"github.com/modsentry/moderation-api/internal/config"
	"github.com/modsentry/moderation-api/internal/moderation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	DB    *gorm.DB
	Cfg   config.Config
	Svc   *moderation.Service
	Blobs moderation.BlobStore
	Log   *zap.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *moderation.Service, blobs moderation.BlobStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{DB: db, Cfg: cfg, Svc: svc, Blobs: blobs, Log: log}
}

// decodeJSON turns a raw upstream body into a value gin can render inline,
// falling back to the raw text when it is not valid JSON.
func decodeJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
