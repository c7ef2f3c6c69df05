package model

import "time"

// PushResult is one token's settlement inside a dispatch batch.
type PushResult struct {
	Token     string `json:"token"`
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// PushLog is the write-only audit record of one push dispatch batch.
// Results holds the per-token settlements as a JSON array.
type PushLog struct {
	LogID      string `gorm:"primaryKey;size:64"`
	BusinessID string `gorm:"size:64;not null;index"`
	Title      string `gorm:"size:255;not null"`
	Message    string `gorm:"size:1024"`
	Results    string `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null"`
}

func (PushLog) TableName() string { return "push_log" }
