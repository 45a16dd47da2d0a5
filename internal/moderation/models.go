package moderation

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Request is one ledger entry: a moderation attempt and its outcome. Records
// are written exactly once, after the upstream call resolves, and never
// updated or deleted afterwards.
type Request struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint64 `gorm:"index;not null" json:"-"`

	ContentType string `gorm:"type:varchar(16);index;not null" json:"content_type"`

	// For text requests the analyzed string; for image requests the blob path,
	// or a placeholder such as "photo.png (upload failed)" when no path exists.
	Content string `gorm:"type:text;not null" json:"content"`

	// Shape varies with ContentType; categories/outputType/api_version are
	// always present, image requests add an "image" object.
	RequestMetadata datatypes.JSON `gorm:"type:json" json:"request_metadata"`

	// Raw upstream response body, or {"exception","message"} on faults.
	ModerationResult datatypes.JSON `gorm:"type:json" json:"moderation_result"`

	Status string `gorm:"type:varchar(8);index;not null" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Request) TableName() string { return "mod_requests" }
