package moderation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/modsentry/moderation-api/internal/contentsafety"
	"github.com/modsentry/moderation-api/internal/models"
	"github.com/modsentry/moderation-api/internal/quota"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SafetyClient is the outbound classification API. A non-2xx upstream status
// is reported through Outcome, not through the error return.
type SafetyClient interface {
	AnalyzeText(ctx context.Context, text string, categories []string, outputType string) (*contentsafety.Outcome, error)
	AnalyzeImage(ctx context.Context, base64Content string, categories []string, outputType string) (*contentsafety.Outcome, error)
	APIVersion() string
}

// BlobStore is durable object storage for uploaded image bytes.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Exists(ctx context.Context, path string) (bool, error)
	TemporaryURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Service orchestrates a moderation request: record quota usage, call the
// classification API, upload image bytes, and write exactly one ledger record
// per call regardless of outcome.
type Service struct {
	repo   *Repo
	quota  *quota.Tracker
	safety SafetyClient
	blobs  BlobStore
	log    *zap.Logger
}

func NewService(repo *Repo, tracker *quota.Tracker, safety SafetyClient, blobs BlobStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, quota: tracker, safety: safety, blobs: blobs, log: log}
}

func (s *Service) Repo() *Repo { return s.repo }

// UpstreamError means the classification API answered with a non-2xx status.
// The raw upstream body is preserved for the caller and the ledger.
type UpstreamError struct {
	Status    int
	Details   json.RawMessage
	RequestID uint64
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("content safety returned status %d", e.Status)
}

// UploadError means analysis succeeded but the subsequent blob upload did not.
type UploadError struct {
	RequestID uint64
	Analysis  json.RawMessage
}

func (e *UploadError) Error() string { return "upload failed after successful analysis" }

// InternalError covers any unexpected fault in the call chain.
type InternalError struct {
	RequestID uint64
	Message   string
}

func (e *InternalError) Error() string { return e.Message }

type TextResult struct {
	RequestID uint64
	Result    []contentsafety.CategoryScore
}

// ImageUpload carries the client-declared attributes of an uploaded file.
type ImageUpload struct {
	OriginalFilename string
	ContentType      string
	Data             []byte
}

type UploadInfo struct {
	Path             string `json:"path"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	Bytes            int    `json:"bytes"`
	Exists           bool   `json:"exists"`
}

type ImageResult struct {
	RequestID uint64
	Analysis  json.RawMessage
	Upload    UploadInfo
}

// AnalyzeText runs the text pipeline. Usage is recorded up front and is not
// refunded when the call fails.
func (s *Service) AnalyzeText(ctx context.Context, user *models.User, content string, categories []string, outputType string) (*TextResult, error) {
	if len(categories) == 0 {
		categories = contentsafety.DefaultCategories
	}
	if outputType == "" {
		outputType = contentsafety.DefaultOutputType
	}

	meta := map[string]any{
		"categories":  categories,
		"outputType":  outputType,
		"api_version": s.safety.APIVersion(),
	}

	if err := s.quota.RecordUsage(ctx, user.ID, 1); err != nil {
		id := s.appendFailure(ctx, user.ID, ContentTypeText, content, meta, exceptionResult(err))
		return nil, &InternalError{RequestID: id, Message: err.Error()}
	}

	outcome, err := s.safety.AnalyzeText(ctx, content, categories, outputType)
	if err != nil {
		s.log.Warn("text analyze failed",
			zap.Uint64("user_id", user.ID), zap.Error(err))
		id := s.appendFailure(ctx, user.ID, ContentTypeText, content, meta, exceptionResult(err))
		return nil, &InternalError{RequestID: id, Message: err.Error()}
	}

	rec := &Request{
		UserID:           user.ID,
		ContentType:      ContentTypeText,
		Content:          content,
		RequestMetadata:  mustJSON(meta),
		ModerationResult: datatypes.JSON(outcome.Body),
		Status:           statusFor(outcome.OK()),
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.log.Error("ledger write failed", zap.Uint64("user_id", user.ID), zap.Error(err))
		return nil, &InternalError{Message: err.Error()}
	}

	if !outcome.OK() {
		return nil, &UpstreamError{Status: outcome.StatusCode, Details: outcome.Body, RequestID: rec.ID}
	}
	return &TextResult{RequestID: rec.ID, Result: outcome.Analysis}, nil
}

// AnalyzeImage runs the image pipeline: analyze first, then upload the
// original bytes. Upload failure after a successful analysis is its own
// terminal state; the ledger record keeps the successful analysis body.
func (s *Service) AnalyzeImage(ctx context.Context, user *models.User, upload ImageUpload, categories []string, outputType string) (*ImageResult, error) {
	if len(categories) == 0 {
		categories = contentsafety.DefaultCategories
	}
	if outputType == "" {
		outputType = contentsafety.DefaultOutputType
	}

	meta := map[string]any{
		"image": map[string]any{
			"type":              "upload",
			"original_filename": upload.OriginalFilename,
		},
		"categories":  categories,
		"outputType":  outputType,
		"api_version": s.safety.APIVersion(),
	}

	if err := s.quota.RecordUsage(ctx, user.ID, 1); err != nil {
		id := s.appendFailure(ctx, user.ID, ContentTypeImage,
			upload.OriginalFilename+" (exception thrown)", meta, exceptionResult(err))
		return nil, &InternalError{RequestID: id, Message: err.Error()}
	}

	b64 := base64.StdEncoding.EncodeToString(upload.Data)

	outcome, err := s.safety.AnalyzeImage(ctx, b64, categories, outputType)
	if err != nil {
		s.log.Warn("image analyze failed",
			zap.Uint64("user_id", user.ID), zap.Error(err))
		id := s.appendFailure(ctx, user.ID, ContentTypeImage,
			upload.OriginalFilename+" (exception thrown)", meta, exceptionResult(err))
		return nil, &InternalError{RequestID: id, Message: err.Error()}
	}

	if !outcome.OK() {
		rec := &Request{
			UserID:           user.ID,
			ContentType:      ContentTypeImage,
			Content:          upload.OriginalFilename + " (analysis failed)",
			RequestMetadata:  mustJSON(meta),
			ModerationResult: datatypes.JSON(outcome.Body),
			Status:           StatusFail,
		}
		if err := s.repo.Append(ctx, rec); err != nil {
			s.log.Error("ledger write failed", zap.Uint64("user_id", user.ID), zap.Error(err))
			return nil, &InternalError{Message: err.Error()}
		}
		return nil, &UpstreamError{Status: outcome.StatusCode, Details: outcome.Body, RequestID: rec.ID}
	}

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	path := fmt.Sprintf("users/%d/uploads-%s.%s",
		user.ID, time.Now().Format("20060102-150405"), fileExtension(upload.OriginalFilename))

	if err := s.blobs.Put(ctx, path, upload.Data, contentType); err != nil {
		s.log.Warn("blob upload failed",
			zap.Uint64("user_id", user.ID), zap.String("path", path), zap.Error(err))
		rec := &Request{
			UserID:           user.ID,
			ContentType:      ContentTypeImage,
			Content:          upload.OriginalFilename + " (upload failed)",
			RequestMetadata:  mustJSON(meta),
			ModerationResult: datatypes.JSON(outcome.Body),
			Status:           StatusFail,
		}
		if err := s.repo.Append(ctx, rec); err != nil {
			s.log.Error("ledger write failed", zap.Uint64("user_id", user.ID), zap.Error(err))
			return nil, &InternalError{Message: err.Error()}
		}
		return nil, &UploadError{RequestID: rec.ID, Analysis: outcome.Body}
	}

	exists, err := s.blobs.Exists(ctx, path)
	if err != nil {
		id := s.appendFailure(ctx, user.ID, ContentTypeImage,
			upload.OriginalFilename+" (exception thrown)", meta, exceptionResult(err))
		return nil, &InternalError{RequestID: id, Message: err.Error()}
	}

	meta["image"] = map[string]any{
		"type":     "upload",
		"original": upload.OriginalFilename,
		"path":     path,
	}

	rec := &Request{
		UserID:           user.ID,
		ContentType:      ContentTypeImage,
		Content:          path,
		RequestMetadata:  mustJSON(meta),
		ModerationResult: datatypes.JSON(outcome.Body),
		Status:           StatusSuccess,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.log.Error("ledger write failed", zap.Uint64("user_id", user.ID), zap.Error(err))
		return nil, &InternalError{Message: err.Error()}
	}

	return &ImageResult{
		RequestID: rec.ID,
		Analysis:  outcome.Body,
		Upload: UploadInfo{
			Path:             path,
			OriginalFilename: upload.OriginalFilename,
			ContentType:      contentType,
			Bytes:            len(upload.Data),
			Exists:           exists,
		},
	}, nil
}

// appendFailure writes a fail record and returns its id; a failed write is
// logged and reported as id 0 since there is nothing durable to reference.
func (s *Service) appendFailure(ctx context.Context, userID uint64, contentType, content string, meta map[string]any, result map[string]any) uint64 {
	rec := &Request{
		UserID:           userID,
		ContentType:      contentType,
		Content:          content,
		RequestMetadata:  mustJSON(meta),
		ModerationResult: mustJSON(result),
		Status:           StatusFail,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.log.Error("ledger write failed", zap.Uint64("user_id", userID), zap.Error(err))
		return 0
	}
	return rec.ID
}

func exceptionResult(err error) map[string]any {
	return map[string]any{
		"exception": fmt.Sprintf("%T", errors.Cause(err)),
		"message":   err.Error(),
	}
}

func statusFor(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFail
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}

// fileExtension derives the stored extension from the client-declared
// filename: lower-cased, "jpeg" normalized to "jpg", "bin" when absent.
func fileExtension(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	if ext == "" {
		ext = "bin"
	}
	return ext
}
