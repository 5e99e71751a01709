package registration

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMessenger) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fmt.Sprintf("%v", what))
	return &telebot.Message{ID: len(f.sent)}, nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeSubmitter struct {
	submissions []*models.Payment
}

func (f *fakeSubmitter) SubmitForApproval(ctx context.Context, user *models.User, payment *models.Payment) error {
	f.submissions = append(f.submissions, payment)
	return nil
}

func newTestMachine(t *testing.T) (*Machine, *storage.Storage, *fakeMessenger, *fakeSubmitter) {
	t.Helper()

	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "test.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)

	store := storage.New(db)
	require.NoError(t, store.Migrate(context.Background()))

	cfg := &config.Config{
		RegistrationFee: 500,
		TeleBirrAccount: "+251 91 234 5678",
		CBEBirrAccount:  "1000 2345 6789",
		AccountName:     "TUTORIAL ETHIOPIA",
	}
	bot := &fakeMessenger{}
	submitter := &fakeSubmitter{}
	return NewMachine(cfg, store, bot, submitter), store, bot, submitter
}

func startUser(t *testing.T, machine *Machine, store *storage.Storage, id int64) *models.User {
	t.Helper()
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, id)
	require.NoError(t, err)
	require.NoError(t, machine.Begin(ctx, user, telebot.ChatID(id)))
	require.Equal(t, models.StepAwaitingName, user.RegistrationStep)
	return user
}

func TestFullWizard(t *testing.T) {
	machine, store, bot, submitter := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	consumed, err := machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)
	require.True(t, consumed)
	assert.Equal(t, "Abel Tesfaye", user.DisplayName)
	assert.Equal(t, models.StepAwaitingPhone, user.RegistrationStep)

	consumed, err = machine.HandleContact(ctx, user, to, "+251912345678")
	require.NoError(t, err)
	require.True(t, consumed)
	assert.Equal(t, "+251912345678", user.Phone)
	assert.Equal(t, models.StepAwaitingTrack, user.RegistrationStep)

	consumed, err = machine.HandleTrack(ctx, user, to, models.TrackNatural)
	require.NoError(t, err)
	require.True(t, consumed)
	assert.Equal(t, models.TrackNatural, user.Track)
	assert.Equal(t, models.StepAwaitingPaymentMethod, user.RegistrationStep)

	consumed, err = machine.HandlePaymentMethod(ctx, user, to, models.PaymentMethodTeleBirr)
	require.NoError(t, err)
	require.True(t, consumed)
	assert.Equal(t, models.PaymentMethodTeleBirr, user.PaymentMethod)
	assert.Equal(t, models.StepAwaitingScreenshot, user.RegistrationStep)
	assert.Contains(t, bot.lastText(), "+251 91 234 5678")

	consumed, err = machine.HandleUpload(ctx, user, to, "file-123")
	require.NoError(t, err)
	require.True(t, consumed)
	assert.Equal(t, models.StepCompleted, user.RegistrationStep)
	assert.Equal(t, models.PaymentStatusPendingApproval, user.PaymentStatus)

	require.Len(t, submitter.submissions, 1)
	assert.Equal(t, "file-123", submitter.submissions[0].FileID)
	assert.Equal(t, 500, submitter.submissions[0].Amount)

	stored, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, stored.RegistrationStep)
}

func TestControlLabelNeverStoredAsName(t *testing.T) {
	machine, store, _, _ := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	for _, text := range []string{LabelCancel, LabelHome, LabelRegister, "/start", "  "} {
		consumed, err := machine.HandleText(ctx, user, to, text)
		require.NoError(t, err)
		assert.True(t, consumed, "invalid name input is answered with a re-prompt")
		assert.Empty(t, user.DisplayName, "input %q", text)
		assert.Equal(t, models.StepAwaitingName, user.RegistrationStep)
	}
}

func TestTextIgnoredOutsideAwaitingName(t *testing.T) {
	machine, store, _, _ := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	_, err := machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)
	require.Equal(t, models.StepAwaitingPhone, user.RegistrationStep)

	consumed, err := machine.HandleText(ctx, user, to, "random chatter")
	require.NoError(t, err)
	assert.False(t, consumed, "text while awaiting a contact falls through")
	assert.Equal(t, "Abel Tesfaye", user.DisplayName)
}

func TestBlockedShortCircuit(t *testing.T) {
	machine, store, bot, _ := newTestMachine(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.Blocked = true
	require.NoError(t, store.SaveUser(ctx, user))

	to := telebot.ChatID(int64(1001))
	require.NoError(t, machine.Begin(ctx, user, to))
	assert.Equal(t, models.StepNotStarted, user.RegistrationStep)
	assert.Contains(t, bot.lastText(), "blocked")

	consumed, err := machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)
	assert.False(t, consumed)
	assert.Empty(t, user.DisplayName)
}

func TestVerifiedShortCircuit(t *testing.T) {
	machine, store, bot, _ := newTestMachine(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.Verified = true
	user.PaymentStatus = models.PaymentStatusApproved
	user.RegistrationStep = models.StepCompleted
	require.NoError(t, store.SaveUser(ctx, user))

	to := telebot.ChatID(int64(1001))
	require.NoError(t, machine.Begin(ctx, user, to))
	assert.Equal(t, models.StepCompleted, user.RegistrationStep)
	assert.Contains(t, bot.lastText(), "already registered")

	consumed, err := machine.HandleContact(ctx, user, to, "+251900000000")
	require.NoError(t, err)
	assert.False(t, consumed)
	assert.Empty(t, user.Phone)
}

func TestBeginWhileInProgressOffersResume(t *testing.T) {
	machine, store, bot, _ := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	_, err := machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)

	require.NoError(t, machine.Begin(ctx, user, to))
	assert.Equal(t, models.StepAwaitingPhone, user.RegistrationStep, "no transition on re-entry")
	assert.Contains(t, bot.lastText(), "Registration in progress")

	// Resume re-issues the current step's prompt.
	require.NoError(t, machine.Resume(ctx, user, to))
	assert.Equal(t, models.StepAwaitingPhone, user.RegistrationStep)
	assert.Contains(t, bot.lastText(), "share your phone number")
}

func TestRestartDiscardsPartialState(t *testing.T) {
	machine, store, _, _ := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	_, err := machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)

	require.NoError(t, machine.Restart(ctx, user, to))
	assert.Empty(t, user.DisplayName)
	assert.Equal(t, models.StepAwaitingName, user.RegistrationStep)
}

func TestTrackSelectionIdempotent(t *testing.T) {
	machine, store, bot, _ := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	_, err := machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)
	_, err = machine.HandleContact(ctx, user, to, "+251912345678")
	require.NoError(t, err)

	consumed, err := machine.HandleTrack(ctx, user, to, models.TrackSocial)
	require.NoError(t, err)
	require.True(t, consumed)
	require.Equal(t, models.StepAwaitingPaymentMethod, user.RegistrationStep)

	// Duplicate delivery: same selection re-renders the same prompt, no
	// state change.
	consumed, err = machine.HandleTrack(ctx, user, to, models.TrackSocial)
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.Equal(t, models.TrackSocial, user.Track)
	assert.Equal(t, models.StepAwaitingPaymentMethod, user.RegistrationStep)
	assert.Contains(t, bot.lastText(), "SELECT PAYMENT METHOD")

	// A different track at this point is an unmatched callback.
	consumed, err = machine.HandleTrack(ctx, user, to, models.TrackNatural)
	require.NoError(t, err)
	assert.False(t, consumed)
	assert.Equal(t, models.TrackSocial, user.Track)
}

func TestUploadIgnoredOutsideAwaitingScreenshot(t *testing.T) {
	machine, store, _, submitter := newTestMachine(t)
	ctx := context.Background()

	user := startUser(t, machine, store, 1001)
	to := telebot.ChatID(int64(1001))

	consumed, err := machine.HandleUpload(ctx, user, to, "file-1")
	require.NoError(t, err)
	assert.False(t, consumed)
	assert.Empty(t, submitter.submissions)
	assert.Equal(t, models.PaymentStatusNotStarted, user.PaymentStatus)
}

func TestCancelPreservesCounters(t *testing.T) {
	machine, store, _, _ := newTestMachine(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.ReferralCount = 3
	user.RewardBalance = 90
	require.NoError(t, store.SaveUser(ctx, user))
	joined := user.JoinedAt

	to := telebot.ChatID(int64(1001))
	require.NoError(t, machine.Begin(ctx, user, to))
	_, err = machine.HandleText(ctx, user, to, "Abel Tesfaye")
	require.NoError(t, err)

	require.NoError(t, machine.Cancel(ctx, user, to))

	stored, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.StepNotStarted, stored.RegistrationStep)
	assert.Empty(t, stored.DisplayName)
	assert.Equal(t, 3, stored.ReferralCount)
	assert.Equal(t, 90, stored.RewardBalance)
	assert.WithinDuration(t, joined, stored.JoinedAt, time.Second)
}

func TestControlLabelHelper(t *testing.T) {
	assert.True(t, ControlLabel(LabelCancel))
	assert.True(t, ControlLabel(LabelHome))
	assert.True(t, ControlLabel(LabelRegister))
	assert.False(t, ControlLabel("Abel Tesfaye"))
	assert.False(t, ControlLabel(strings.ToLower(LabelCancel)))
}
