package referral

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/storage"
)

// payloadPrefix is the token carried in a referral deep-link:
// https://t.me/<bot>?start=ref_<id>.
const payloadPrefix = "ref_"

// ParsePayload extracts a referrer id from a start payload. The second
// return value is false for payloads that are empty, carry a different
// prefix, or do not parse as a decimal integer.
func ParsePayload(payload string) (int64, bool) {
	raw, found := strings.CutPrefix(strings.TrimSpace(payload), payloadPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Ledger attributes new signups to referrers and pays the configured
// reward exactly once per qualifying referral.
type Ledger struct {
	config  *config.Config
	storage *storage.Storage
}

func NewLedger(cfg *config.Config, storage *storage.Storage) *Ledger {
	return &Ledger{config: cfg, storage: storage}
}

// Credit processes the start payload for newUserID. A malformed or
// self-referential payload, an unknown referrer, or an already-attributed
// user is a silent no-op: the user never sees a referral failure. Returns
// whether a credit was made.
func (l *Ledger) Credit(ctx context.Context, newUserID int64, payload string) (bool, error) {
	referrerID, ok := ParsePayload(payload)
	if !ok {
		return false, nil
	}
	if referrerID == newUserID {
		return false, nil
	}

	credited, err := l.storage.CreditReferral(ctx, newUserID, referrerID, l.config.ReferralReward)
	if err != nil {
		return false, fmt.Errorf("crediting referral: %w", err)
	}
	return credited, nil
}

// Link builds the shareable referral deep-link for userID.
func (l *Ledger) Link(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", l.config.BotUsername, payloadPrefix, userID)
}
