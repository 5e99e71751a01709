package models

import (
	"fmt"
	"time"
)

// Payment is one screenshot submission. A user may submit more than once
// (e.g. after a rejection); each submission keeps its own row.
type Payment struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TelegramID int64  `gorm:"index"`

	Method PaymentMethod
	Amount int

	// FileID is the transport-side reference to the uploaded screenshot.
	FileID string

	Status    PaymentStatus `gorm:"index"`
	CreatedAt time.Time     `gorm:"autoCreateTime"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime"`
}

func (p *Payment) String() string {
	return fmt.Sprintf("Payment(%s, user=%d, %s, %d, %s)", p.ID, p.TelegramID, p.Method, p.Amount, p.Status)
}
