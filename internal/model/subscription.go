package model

import "time"

// Subscription is a customer's live interest in a business's presence.
// IsActive mirrors the business's accepting-orders flag; the presence
// synchronizer is the only writer responsible for keeping it current.
type Subscription struct {
	SubscriptionID string `gorm:"primaryKey;size:64"`
	BusinessID     string `gorm:"size:64;not null;index"`
	SubscriberID   string `gorm:"size:64;not null"`
	ConnectionID   string `gorm:"size:128"`
	IsActive       bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscription" }
