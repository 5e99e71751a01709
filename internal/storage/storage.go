package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.GlobalState{},
	); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *Storage) GetOrCreateGlobalState(ctx context.Context) (*models.GlobalState, error) {
	state := &models.GlobalState{ID: 1}
	if err := s.db.WithContext(ctx).FirstOrCreate(state).Error; err != nil {
		return nil, fmt.Errorf("getting global state: %w", err)
	}
	return state, nil
}

func (s *Storage) UpdateLastUpdate(ctx context.Context, updateID int) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.GlobalState{}).
		Where("id = ?", 1).
		Update("last_update_id", updateID).
		Error; err != nil {
		return fmt.Errorf("updating last update id: %w", err)
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// GetOrCreateUser returns the record for telegramID, creating it in
// StepNotStarted on first contact. Safe under concurrent first contact.
func (s *Storage) GetOrCreateUser(ctx context.Context, telegramID int64) (*models.User, error) {
	userToCreate := &models.User{
		TelegramID:       telegramID,
		RegistrationStep: models.StepNotStarted,
		PaymentStatus:    models.PaymentStatusNotStarted,
	}

	var user models.User
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "telegram_id"}},
				DoNothing: true,
			}).
			Create(userToCreate).
			Error; err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		if err := tx.
			Where("telegram_id = ?", telegramID).
			First(&user).
			Error; err != nil {
			return fmt.Errorf("getting user: %w", err)
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &user, nil
}

// SaveUser writes the whole record. Callers keep each read-modify-write as a
// single logical step; the store itself is last-writer-wins.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// CreditReferral attributes newUserID to referrerID and pays the fixed
// reward, at most once per new user. The first writer wins: a referral is
// credited only if the conditional referrer_id write took effect, so
// duplicate delivery and racing payloads cannot double-credit. Returns
// whether a credit happened.
func (s *Storage) CreditReferral(ctx context.Context, newUserID, referrerID int64, reward int) (bool, error) {
	if referrerID == newUserID {
		return false, nil
	}

	credited := false
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referrer models.User
		if err := tx.Where("telegram_id = ?", referrerID).First(&referrer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("getting referrer: %w", err)
		}

		res := tx.
			Model(&models.User{}).
			Where("telegram_id = ? AND referrer_id IS NULL", newUserID).
			Update("referrer_id", referrerID)
		if res.Error != nil {
			return fmt.Errorf("setting referrer: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.
			Model(&models.User{}).
			Where("telegram_id = ?", referrerID).
			Updates(map[string]any{
				"referral_count": gorm.Expr("referral_count + 1"),
				"reward_balance": gorm.Expr("reward_balance + ?", reward),
			}).
			Error; err != nil {
			return fmt.Errorf("crediting referrer: %w", err)
		}

		credited = true
		return nil
	}); err != nil {
		return false, fmt.Errorf("in tx: %w", err)
	}

	return credited, nil
}

// SetPaymentVerdict records an administrator verdict on the user record.
func (s *Storage) SetPaymentVerdict(ctx context.Context, telegramID int64, status models.PaymentStatus, verified bool) error {
	res := s.db.
		WithContext(ctx).
		Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]any{
			"payment_status": status,
			"verified":       verified,
		})
	if res.Error != nil {
		return fmt.Errorf("updating user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if err := s.db.
		WithContext(ctx).
		Model(&models.Payment{}).
		Where("telegram_id = ? AND status = ?", telegramID, models.PaymentStatusPendingApproval).
		Update("status", status).
		Error; err != nil {
		return fmt.Errorf("updating payments: %w", err)
	}

	return nil
}

func (s *Storage) CreatePayment(ctx context.Context, telegramID int64, method models.PaymentMethod, amount int, fileID string) (*models.Payment, error) {
	payment := &models.Payment{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		Method:     method,
		Amount:     amount,
		FileID:     fileID,
		Status:     models.PaymentStatusPendingApproval,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("creating payment: %w", err)
	}
	return payment, nil
}

func (s *Storage) ListPendingPayments(ctx context.Context, limit int) ([]*models.Payment, error) {
	var result []*models.Payment
	if err := s.db.
		WithContext(ctx).
		Where("status = ?", models.PaymentStatusPendingApproval).
		Order("created_at").
		Limit(limit).
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing pending payments: %w", err)
	}
	return result, nil
}

// Stats is the aggregate view served by the status endpoint and /stats.
type Stats struct {
	TotalUsers      int64
	VerifiedUsers   int64
	PendingApproval int64
	TotalReferrals  int64
	TotalRewards    int64
	NaturalTrack    int64
	SocialTrack     int64
}

func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{}

	type counter struct {
		dst   *int64
		query *gorm.DB
	}
	for _, c := range []counter{
		{&stats.TotalUsers, db.Model(&models.User{})},
		{&stats.VerifiedUsers, db.Model(&models.User{}).Where("verified = ?", true)},
		{&stats.PendingApproval, db.Model(&models.User{}).Where("payment_status = ?", models.PaymentStatusPendingApproval)},
		{&stats.NaturalTrack, db.Model(&models.User{}).Where("track = ?", models.TrackNatural)},
		{&stats.SocialTrack, db.Model(&models.User{}).Where("track = ?", models.TrackSocial)},
	} {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("counting users: %w", err)
		}
	}

	type sums struct {
		Referrals int64
		Rewards   int64
	}
	var totals sums
	if err := db.
		Model(&models.User{}).
		Select("COALESCE(SUM(referral_count), 0) AS referrals, COALESCE(SUM(reward_balance), 0) AS rewards").
		Scan(&totals).
		Error; err != nil {
		return nil, fmt.Errorf("summing referrals: %w", err)
	}
	stats.TotalReferrals = totals.Referrals
	stats.TotalRewards = totals.Rewards

	return stats, nil
}
