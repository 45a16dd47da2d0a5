package models

import (
	"crypto/rand"
	"math/big"
	"time"
)

type User struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name  string `gorm:"type:varchar(255);not null" json:"name"`
	Email string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`

	// Static bearer token, compared by exact match.
	APIToken string `gorm:"column:api_token;type:varchar(64);uniqueIndex;not null" json:"-"`

	// Daily request quota. RequestsUsed is zeroed by the reset daemon.
	RequestsUsed  int64 `gorm:"column:requests_used;not null;default:0" json:"requests_used"`
	RequestsLimit int64 `gorm:"column:requests_limit;not null;default:100" json:"requests_limit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// GenerateAPIToken returns a random alphanumeric token for provisioning users.
func GenerateAPIToken(length int) (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	if length <= 0 {
		length = 32
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	return string(out), nil
}
