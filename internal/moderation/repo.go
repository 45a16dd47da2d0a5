package moderation

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Append writes one ledger record. The ledger is append-only; there are no
// update or delete operations.
func (r *Repo) Append(ctx context.Context, req *Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// List returns the user's records newest-first. A non-empty search term is
// matched as a substring against the content, the content type label and the
// original filename recorded in the image metadata.
func (r *Repo) List(ctx context.Context, userID uint64, search string, page, perPage int) ([]Request, int64, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	q := r.db.WithContext(ctx).Model(&Request{}).Where("user_id = ?", userID)

	search = strings.TrimSpace(search)
	if search != "" {
		like := "%" + escapeLike(search) + "%"
		q = q.Where(
			"content LIKE ? ESCAPE '!' OR content_type LIKE ? ESCAPE '!' OR JSON_EXTRACT(request_metadata, '$.image.original_filename') LIKE ? ESCAPE '!'",
			like, like, like,
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []Request
	if err := q.Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Get fetches one record scoped to its owner. Records belonging to another
// user come back as gorm.ErrRecordNotFound, never as a permission error.
func (r *Repo) Get(ctx context.Context, userID, id uint64) (*Request, error) {
	var req Request
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// escapeLike neutralizes LIKE wildcards using '!' as the escape character,
// which MySQL and SQLite string literals spell identically.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "!", "!!")
	s = strings.ReplaceAll(s, "%", "!%")
	s = strings.ReplaceAll(s, "_", "!_")
	return s
}
