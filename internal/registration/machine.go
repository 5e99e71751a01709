package registration

import (
	"context"
	"fmt"
	"strings"

	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"gopkg.in/telebot.v4"
)

// Messenger is the outbound slice of the bot API the wizard needs.
type Messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Submitter receives a completed registration for admin review.
type Submitter interface {
	SubmitForApproval(ctx context.Context, user *models.User, payment *models.Payment) error
}

// Machine advances a user's record through the registration wizard. Every
// transition is a single read-modify-write of the record and is idempotent
// under duplicate delivery.
type Machine struct {
	config    *config.Config
	storage   *storage.Storage
	bot       Messenger
	submitter Submitter
}

func NewMachine(cfg *config.Config, store *storage.Storage, bot Messenger, submitter Submitter) *Machine {
	return &Machine{
		config:    cfg,
		storage:   store,
		bot:       bot,
		submitter: submitter,
	}
}

// Begin handles the "register" entry point. Blocked and already-verified
// users get a fixed reply and no transition. An in-progress registration is
// presented back with exactly two choices: resume, or discard and restart.
func (m *Machine) Begin(ctx context.Context, user *models.User, to telebot.Recipient) error {
	if user.Blocked {
		return m.send(to, "❌ You are blocked from using this bot.")
	}
	if user.Verified {
		return m.send(to, "✅ *You are already registered!*\n\nYour account is verified and active.")
	}

	if user.RegistrationStep.InProgress() {
		return m.send(to, resumePrompt(user), resumeKeyboard())
	}

	user.ResetRegistration()
	if err := advance(user, models.StepAwaitingName); err != nil {
		return err
	}
	if err := m.storage.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("starting registration: %w", err)
	}

	return m.send(to, namePrompt(), cancelKeyboard())
}

// Resume re-issues the prompt for the current step without any transition.
func (m *Machine) Resume(ctx context.Context, user *models.User, to telebot.Recipient) error {
	if !user.Registrable() || !user.RegistrationStep.InProgress() {
		return m.send(to, "ℹ️ Nothing to resume. Use the menu to register.")
	}
	text, markup := m.promptText(user)
	if markup == nil {
		return m.send(to, text)
	}
	return m.send(to, text, markup)
}

// Restart discards the partial registration and begins fresh.
func (m *Machine) Restart(ctx context.Context, user *models.User, to telebot.Recipient) error {
	if !user.Registrable() {
		return m.send(to, "ℹ️ Registration is not available for this account.")
	}

	user.ResetRegistration()
	if err := m.storage.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("resetting registration: %w", err)
	}

	if err := m.send(to, "🔄 Registration restarted. Let's begin fresh!"); err != nil {
		return err
	}
	return m.Begin(ctx, user, to)
}

// Cancel fully resets the registration fields. Counters and JoinedAt are
// preserved.
func (m *Machine) Cancel(ctx context.Context, user *models.User, to telebot.Recipient) error {
	user.ResetRegistration()
	if err := m.storage.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("cancelling registration: %w", err)
	}
	return m.send(to, "❌ Registration cancelled.")
}

// HandleText consumes free-form text only while the wizard is awaiting a
// name. The bool result reports whether the input was consumed.
func (m *Machine) HandleText(ctx context.Context, user *models.User, to telebot.Recipient, text string) (bool, error) {
	if !user.Registrable() || user.RegistrationStep != models.StepAwaitingName {
		return false, nil
	}

	name := strings.TrimSpace(text)
	if name == "" || ControlLabel(name) || strings.HasPrefix(name, "/") {
		return true, m.send(to, "⚠️ Please type your full name as plain text.")
	}

	user.DisplayName = name
	if err := advance(user, models.StepAwaitingPhone); err != nil {
		return true, err
	}
	if err := m.storage.SaveUser(ctx, user); err != nil {
		return true, fmt.Errorf("saving name: %w", err)
	}

	return true, m.send(to, phonePrompt(name), phoneKeyboard())
}

// HandleContact consumes a shared-contact event while awaiting a phone. The
// phone number is taken verbatim from the transport payload.
func (m *Machine) HandleContact(ctx context.Context, user *models.User, to telebot.Recipient, phone string) (bool, error) {
	if !user.Registrable() || user.RegistrationStep != models.StepAwaitingPhone {
		return false, nil
	}

	user.Phone = phone
	if err := advance(user, models.StepAwaitingTrack); err != nil {
		return true, err
	}
	if err := m.storage.SaveUser(ctx, user); err != nil {
		return true, fmt.Errorf("saving phone: %w", err)
	}

	return true, m.send(to, trackPrompt(), trackKeyboard())
}

// HandleTrack consumes a track selection callback. Re-delivering the same
// selection re-renders the next prompt without mutating anything.
func (m *Machine) HandleTrack(ctx context.Context, user *models.User, to telebot.Recipient, track models.Track) (bool, error) {
	if !user.Registrable() || !track.Valid() {
		return false, nil
	}

	switch {
	case user.RegistrationStep == models.StepAwaitingTrack:
		user.Track = track
		if err := advance(user, models.StepAwaitingPaymentMethod); err != nil {
			return true, err
		}
		if err := m.storage.SaveUser(ctx, user); err != nil {
			return true, fmt.Errorf("saving track: %w", err)
		}
	case user.RegistrationStep == models.StepAwaitingPaymentMethod && user.Track == track:
		// Duplicate delivery of the same selection.
	default:
		return false, nil
	}

	if err := m.send(to, fmt.Sprintf("✅ Student Type saved: *%s*", track.Label())); err != nil {
		return true, err
	}
	return true, m.send(to, paymentPrompt(m.config.RegistrationFee), paymentKeyboard())
}

// HandlePaymentMethod consumes a payment-method selection callback, with the
// same duplicate-delivery behavior as HandleTrack.
func (m *Machine) HandlePaymentMethod(ctx context.Context, user *models.User, to telebot.Recipient, method models.PaymentMethod) (bool, error) {
	if !user.Registrable() || !method.Valid() {
		return false, nil
	}

	switch {
	case user.RegistrationStep == models.StepAwaitingPaymentMethod:
		user.PaymentMethod = method
		if err := advance(user, models.StepAwaitingScreenshot); err != nil {
			return true, err
		}
		if err := m.storage.SaveUser(ctx, user); err != nil {
			return true, fmt.Errorf("saving payment method: %w", err)
		}
	case user.RegistrationStep == models.StepAwaitingScreenshot && user.PaymentMethod == method:
		// Duplicate delivery of the same selection.
	default:
		return false, nil
	}

	return true, m.send(to, m.accountDetails(method), cancelKeyboard())
}

// HandleUpload consumes a screenshot upload while one is awaited: the record
// is committed first, then the submission is handed to the approval
// workflow. A notification failure there does not roll the commit back.
func (m *Machine) HandleUpload(ctx context.Context, user *models.User, to telebot.Recipient, fileID string) (bool, error) {
	if !user.Registrable() || user.RegistrationStep != models.StepAwaitingScreenshot {
		return false, nil
	}

	user.PaymentStatus = models.PaymentStatusPendingApproval
	if err := advance(user, models.StepCompleted); err != nil {
		return true, err
	}
	if err := m.storage.SaveUser(ctx, user); err != nil {
		return true, fmt.Errorf("completing registration: %w", err)
	}

	payment, err := m.storage.CreatePayment(ctx, user.TelegramID, user.PaymentMethod, m.config.RegistrationFee, fileID)
	if err != nil {
		return true, fmt.Errorf("recording payment: %w", err)
	}

	if err := m.send(to,
		"📸 *Screenshot received!*\n\n"+
			"Your payment is now pending admin approval. "+
			"You will be notified as soon as it is reviewed.",
	); err != nil {
		return true, err
	}

	if err := m.submitter.SubmitForApproval(ctx, user, payment); err != nil {
		return true, fmt.Errorf("submitting for approval: %w", err)
	}
	return true, nil
}

// advance moves the record one step forward, rejecting any transition not
// present in the wizard order.
func advance(user *models.User, next models.RegistrationStep) error {
	if !user.RegistrationStep.CanAdvanceTo(next) {
		return fmt.Errorf("illegal step transition %s -> %s", user.RegistrationStep, next)
	}
	user.RegistrationStep = next
	return nil
}

func (m *Machine) send(to telebot.Recipient, text string, extra ...interface{}) error {
	opts := append(extra, telebot.ModeMarkdown)
	if _, err := m.bot.Send(to, text, opts...); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}
