package quota

import (
	"context"

	"github.com/modsentry/moderation-api/internal/models"
	"gorm.io/gorm"
)

// Tracker enforces the per-user daily request quota.
type Tracker struct {
	db *gorm.DB
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// CanAdmit reports whether the user still has quota left today.
func (t *Tracker) CanAdmit(user *models.User) bool {
	return user.RequestsUsed < user.RequestsLimit
}

// RecordUsage increments the user's usage counter. The increment happens in
// the database so concurrent admissions never lose updates. Usage is spent at
// admission time and is not rolled back when the call later fails.
func (t *Tracker) RecordUsage(ctx context.Context, userID uint64, count int64) error {
	if count <= 0 {
		count = 1
	}
	return t.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("requests_used", gorm.Expr("requests_used + ?", count)).Error
}

// ResetAll zeroes every user's usage counter. Invoked by the daily reset
// daemon, never from the request path.
func (t *Tracker) ResetAll(ctx context.Context) (int64, error) {
	res := t.db.WithContext(ctx).Model(&models.User{}).
		Where("requests_used <> 0").
		UpdateColumn("requests_used", 0)
	return res.RowsAffected, res.Error
}
