package model

import "time"

// BusinessPresence is the last observed accepting-orders state of a
// business. Written by the presence synchronizer on every toggle and read
// back by the reconciliation pass.
type BusinessPresence struct {
	BusinessID       string    `gorm:"primaryKey;size:64"`
	AcceptingOrders  bool      `gorm:"not null"`
	LastStatusUpdate time.Time `gorm:"not null"`
}

func (BusinessPresence) TableName() string { return "business_presence" }
