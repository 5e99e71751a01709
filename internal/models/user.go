package models

import "time"

type Track string

const (
	TrackNatural Track = "natural"
	TrackSocial  Track = "social"
)

func (t Track) Valid() bool {
	return t == TrackNatural || t == TrackSocial
}

func (t Track) Label() string {
	switch t {
	case TrackNatural:
		return "Natural Science"
	case TrackSocial:
		return "Social Science"
	default:
		return "Not selected"
	}
}

type PaymentMethod string

const (
	PaymentMethodTeleBirr PaymentMethod = "telebirr"
	PaymentMethodCBEBirr  PaymentMethod = "cbe"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodTeleBirr || m == PaymentMethodCBEBirr
}

func (m PaymentMethod) Label() string {
	switch m {
	case PaymentMethodTeleBirr:
		return "TeleBirr"
	case PaymentMethodCBEBirr:
		return "CBE Birr"
	default:
		return "Not selected"
	}
}

type PaymentStatus string

const (
	PaymentStatusNotStarted      PaymentStatus = "not_started"
	PaymentStatusPendingApproval PaymentStatus = "pending_approval"
	PaymentStatusApproved        PaymentStatus = "approved"
	PaymentStatusRejected        PaymentStatus = "rejected"
)

// User is one record per chat participant, keyed by the Telegram user id.
type User struct {
	TelegramID int64 `gorm:"primaryKey"`

	DisplayName   string
	Phone         string
	Track         Track
	PaymentMethod PaymentMethod

	RegistrationStep RegistrationStep `gorm:"index"`
	PaymentStatus    PaymentStatus    `gorm:"index"`
	Verified         bool
	Blocked          bool

	// ReferrerID is set at most once and never overwritten.
	ReferrerID    *int64
	ReferralCount int
	RewardBalance int

	JoinedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// ResetRegistration clears the mutable registration fields. Identity,
// referral counters and JoinedAt survive a reset.
func (u *User) ResetRegistration() {
	u.DisplayName = ""
	u.Phone = ""
	u.Track = ""
	u.PaymentMethod = ""
	u.RegistrationStep = StepNotStarted
	u.PaymentStatus = PaymentStatusNotStarted
	u.Verified = false
}

// Registrable reports whether registration-advancing input may touch this
// record at all.
func (u *User) Registrable() bool {
	return !u.Blocked && !u.Verified
}
