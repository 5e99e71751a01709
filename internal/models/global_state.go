package models

import "time"

// GlobalState is a single-row table carrying poller bookkeeping across
// restarts.
type GlobalState struct {
	ID           int `gorm:"primaryKey"`
	LastUpdateID int

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
