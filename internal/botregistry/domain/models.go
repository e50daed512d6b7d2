package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Bot is a hosted bot owned by an account. TokenEncrypted is opaque
// ciphertext and is never rendered.
type Bot struct {
	ID             snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerID        int64             `gorm:"not null;index" json:"owner_id"`
	TokenEncrypted string            `gorm:"type:text;not null" json:"-"`
	Config         datatypes.JSONMap `json:"config,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Bot) TableName() string { return "bots" }

type RegisterBotRequest struct {
	OwnerID        int64          `json:"owner_id"`
	TokenEncrypted string         `json:"token_encrypted"`
	Config         map[string]any `json:"config,omitempty"`
}
