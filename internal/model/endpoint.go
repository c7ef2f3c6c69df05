package model

import "time"

// Kind tells how an endpoint is reached.
type Kind string

const (
	KindLive  Kind = "live"  // live transport connection
	KindToken Kind = "token" // mobile device token
)

// Platform is the push platform family of a device token.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformUnknown Platform = "unknown"
)

// Endpoint is one reachable notification target of a business. The same
// device token may appear under several businesses; each row is owned by
// the business that registered it.
type Endpoint struct {
	BusinessID    string   `gorm:"primaryKey;size:64"`
	EndpointID    string   `gorm:"primaryKey;size:255;index"`
	Kind          Kind     `gorm:"size:16;not null"`
	Platform      Platform `gorm:"size:16;not null;default:'unknown'"`
	UserID        string   `gorm:"size:64"`
	IsActive      bool     `gorm:"not null;default:true"`
	RegisteredAt  time.Time `gorm:"not null"`
	LastUpdatedAt time.Time `gorm:"not null"`
	ExpiresAt     *time.Time
}

func (Endpoint) TableName() string { return "endpoint" }

// Expired reports whether the row is past its TTL. Live connections carry
// no TTL; the transport's own disconnect signal retires them.
func (e *Endpoint) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
