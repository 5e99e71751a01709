package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/freshman-academy/tutorbot/internal/approval"
	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/referral"
	"github.com/freshman-academy/tutorbot/internal/registration"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAdminID = int64(501)

// recordingMessenger captures outbound sends per chat and can be told to
// fail deliveries to a chat.
type recordingMessenger struct {
	mu     sync.Mutex
	texts  map[int64][]string
	edits  int
	failTo map[int64]error
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{
		texts:  make(map[int64][]string),
		failTo: make(map[int64]error),
	}
}

func (r *recordingMessenger) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	chatID, err := strconv.ParseInt(to.Recipient(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unexpected recipient %q", to.Recipient())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if failErr, ok := r.failTo[chatID]; ok {
		return nil, failErr
	}

	switch v := what.(type) {
	case string:
		r.texts[chatID] = append(r.texts[chatID], v)
	case *telebot.Photo:
		r.texts[chatID] = append(r.texts[chatID], v.Caption)
	default:
		r.texts[chatID] = append(r.texts[chatID], fmt.Sprintf("%v", v))
	}
	return &telebot.Message{ID: len(r.texts[chatID])}, nil
}

func (r *recordingMessenger) EditReplyMarkup(msg telebot.Editable, markup *telebot.ReplyMarkup) (*telebot.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits++
	return &telebot.Message{}, nil
}

func (r *recordingMessenger) lastTo(chatID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.texts[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (r *recordingMessenger) allTo(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts[chatID]...)
}

// fakeTeleContext provides just the slice of telebot.Context the dispatcher
// reads. Unoverridden methods panic through the embedded nil interface.
type fakeTeleContext struct {
	telebot.Context
	update    telebot.Update
	responses []*telebot.CallbackResponse
}

func (f *fakeTeleContext) Update() telebot.Update { return f.update }

func (f *fakeTeleContext) Message() *telebot.Message {
	if f.update.Callback != nil {
		return f.update.Callback.Message
	}
	return f.update.Message
}

func (f *fakeTeleContext) Callback() *telebot.Callback { return f.update.Callback }

func (f *fakeTeleContext) Chat() *telebot.Chat {
	if msg := f.Message(); msg != nil {
		return msg.Chat
	}
	return nil
}

func (f *fakeTeleContext) Sender() *telebot.User {
	if f.update.Callback != nil {
		return f.update.Callback.Sender
	}
	if f.update.Message != nil {
		return f.update.Message.Sender
	}
	return nil
}

func (f *fakeTeleContext) Respond(resp ...*telebot.CallbackResponse) error {
	f.responses = append(f.responses, resp...)
	return nil
}

func messageFrom(userID int64, text string) *fakeTeleContext {
	return &fakeTeleContext{update: telebot.Update{
		ID: 1,
		Message: &telebot.Message{
			Text:   text,
			Sender: &telebot.User{ID: userID},
			Chat:   &telebot.Chat{ID: userID, Type: telebot.ChatPrivate},
		},
	}}
}

func callbackFrom(userID int64, data string) *fakeTeleContext {
	return &fakeTeleContext{update: telebot.Update{
		ID: 1,
		Callback: &telebot.Callback{
			Data:   data,
			Sender: &telebot.User{ID: userID},
			Message: &telebot.Message{
				Sender: &telebot.User{ID: userID},
				Chat:   &telebot.Chat{ID: userID, Type: telebot.ChatPrivate},
			},
		},
	}}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *storage.Storage, *recordingMessenger, *approval.Workflow) {
	t.Helper()

	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "test.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)

	store := storage.New(db)
	require.NoError(t, store.Migrate(context.Background()))

	cfg := &config.Config{
		BotUsername:             "freshman_academy_jmubot",
		BotHandleTimeout:        10 * time.Second,
		AdminIDs:                []int64{testAdminID},
		RegistrationFee:         500,
		ReferralReward:          30,
		MinReferralsForWithdraw: 4,
		TeleBirrAccount:         "+251 91 234 5678",
		CBEBirrAccount:          "1000 2345 6789",
		AccountName:             "TUTORIAL ETHIOPIA",
	}

	bot := newRecordingMessenger()
	workflow := approval.New(cfg, store, bot)
	ledger := referral.NewLedger(cfg, store)
	machine := registration.NewMachine(cfg, store, bot, workflow)
	return New(cfg, store, bot, machine, ledger, workflow), store, bot, workflow
}

func TestStartWithReferralBeginsWizard(t *testing.T) {
	dispatcher, store, bot, _ := newTestDispatcher(t)
	ctx := context.Background()

	referrer, err := store.GetOrCreateUser(ctx, 2002)
	require.NoError(t, err)
	referrer.Verified = true
	require.NoError(t, store.SaveUser(ctx, referrer))

	require.NoError(t, dispatcher.HandleMessage(messageFrom(1001, "/start ref_2002")))

	newUser, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.StepAwaitingName, newUser.RegistrationStep)
	require.NotNil(t, newUser.ReferrerID)
	assert.Equal(t, int64(2002), *newUser.ReferrerID)

	reloaded, err := store.GetUser(ctx, 2002)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.ReferralCount)
	assert.Equal(t, 30, reloaded.RewardBalance)

	msgs := bot.allTo(1001)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Welcome")
	assert.Contains(t, bot.lastTo(1001), "REGISTRATION STARTED")
}

func TestStartBlockedUser(t *testing.T) {
	dispatcher, store, bot, _ := newTestDispatcher(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.Blocked = true
	require.NoError(t, store.SaveUser(ctx, user))

	require.NoError(t, dispatcher.HandleMessage(messageFrom(1001, "/start ref_2002")))

	msgs := bot.allTo(1001)
	require.Len(t, msgs, 1, "fixed blocked reply only")
	assert.Contains(t, msgs[0], "blocked")

	reloaded, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Nil(t, reloaded.ReferrerID)
	assert.Equal(t, models.StepNotStarted, reloaded.RegistrationStep)
}

func TestStartVerifiedUserGetsMenu(t *testing.T) {
	dispatcher, store, bot, _ := newTestDispatcher(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.Verified = true
	user.RegistrationStep = models.StepCompleted
	require.NoError(t, store.SaveUser(ctx, user))

	require.NoError(t, dispatcher.HandleMessage(messageFrom(1001, "/start")))

	reloaded, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, reloaded.RegistrationStep, "no wizard restart")
	assert.Contains(t, bot.lastTo(1001), "Choose an option")
}

func TestCancelClearsComposeSession(t *testing.T) {
	dispatcher, store, bot, workflow := newTestDispatcher(t)
	ctx := context.Background()

	student, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	student.DisplayName = "Abel Tesfaye"
	require.NoError(t, store.SaveUser(ctx, student))

	require.NoError(t, workflow.StartCustomMessage(ctx, 1001, testAdminID))
	require.True(t, workflow.Composing(testAdminID))

	require.NoError(t, dispatcher.HandleMessage(messageFrom(testAdminID, registration.LabelCancel)))

	assert.False(t, workflow.Composing(testAdminID), "cancel drops the composition session")
	assert.Contains(t, bot.allTo(testAdminID), "❌ Message composition cancelled.")
}

func TestComposeTextRoutedToWorkflow(t *testing.T) {
	dispatcher, store, bot, workflow := newTestDispatcher(t)
	ctx := context.Background()

	_, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	require.NoError(t, workflow.StartCustomMessage(ctx, 1001, testAdminID))

	require.NoError(t, dispatcher.HandleMessage(messageFrom(testAdminID, "Welcome to the course!")))

	assert.Contains(t, bot.lastTo(testAdminID), "Message Preview")
	require.True(t, workflow.Composing(testAdminID))
}

func TestLeaderboardRoute(t *testing.T) {
	dispatcher, _, bot, _ := newTestDispatcher(t)

	require.NoError(t, dispatcher.HandleMessage(messageFrom(1001, labelLeaderboard)))
	assert.Contains(t, bot.lastTo(1001), "Leaderboard")
}

func TestFreeTextFallsBackToMenu(t *testing.T) {
	dispatcher, _, bot, _ := newTestDispatcher(t)

	require.NoError(t, dispatcher.HandleMessage(messageFrom(1001, "random chatter")))
	assert.Contains(t, bot.lastTo(1001), "Choose an option")
}

func TestReviewPaymentsRequiresAdmin(t *testing.T) {
	dispatcher, _, bot, _ := newTestDispatcher(t)

	require.NoError(t, dispatcher.HandleMessage(messageFrom(1001, labelReviewPayments)))
	assert.Contains(t, bot.lastTo(1001), "Choose an option", "non-admin falls back to the menu")

	require.NoError(t, dispatcher.HandleMessage(messageFrom(testAdminID, labelReviewPayments)))
	assert.Contains(t, bot.lastTo(testAdminID), "No payments waiting")
}

func TestHandleMessageContainsDeliveryFailure(t *testing.T) {
	dispatcher, _, bot, _ := newTestDispatcher(t)

	bot.failTo[1001] = errors.New("user unreachable")

	// The routing error is logged and answered, never surfaced to the
	// poller.
	assert.NoError(t, dispatcher.HandleMessage(messageFrom(1001, "🏠 Go Home")))
}

func TestCallbackTrackSelection(t *testing.T) {
	dispatcher, store, bot, _ := newTestDispatcher(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.DisplayName = "Abel Tesfaye"
	user.Phone = "+251912345678"
	user.RegistrationStep = models.StepAwaitingTrack
	require.NoError(t, store.SaveUser(ctx, user))

	tc := callbackFrom(1001, "\f"+registration.CallbackTrackNatural)
	require.NoError(t, dispatcher.HandleCallback(tc))

	reloaded, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, models.TrackNatural, reloaded.Track)
	assert.Equal(t, models.StepAwaitingPaymentMethod, reloaded.RegistrationStep)
	assert.Equal(t, 1, bot.edits, "pressed keyboard is cleared")

	require.Len(t, tc.responses, 1)
	assert.Empty(t, tc.responses[0].Text, "plain ack on success")
}

func TestCallbackApproveRoute(t *testing.T) {
	dispatcher, store, bot, _ := newTestDispatcher(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, 1001)
	require.NoError(t, err)
	user.PaymentStatus = models.PaymentStatusPendingApproval
	user.RegistrationStep = models.StepCompleted
	require.NoError(t, store.SaveUser(ctx, user))

	tc := callbackFrom(testAdminID, "\fadmin_approve_1001")
	require.NoError(t, dispatcher.HandleCallback(tc))

	reloaded, err := store.GetUser(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, reloaded.Verified)
	assert.Contains(t, bot.lastTo(1001), "REGISTRATION APPROVED")
}

func TestCallbackUnknownIsAcked(t *testing.T) {
	dispatcher, _, _, _ := newTestDispatcher(t)

	tc := callbackFrom(1001, "\fbogus_token")
	require.NoError(t, dispatcher.HandleCallback(tc))
	require.Len(t, tc.responses, 1)
	assert.Empty(t, tc.responses[0].Text)
}
