package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

// Callback token prefixes for the admin inline actions. The target user id
// is appended: admin_approve_1001.
const (
	CallbackApprove = "admin_approve_"
	CallbackReject  = "admin_reject_"
	CallbackDetails = "admin_details_"
)

// Messenger is the outbound slice of the bot API the workflow needs.
type Messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Workflow is the two-party handshake between a completed registrant and an
// administrator. Verdicts are committed to the store before any user
// notification; a delivery failure never rolls a verdict back.
type Workflow struct {
	config  *config.Config
	storage *storage.Storage
	bot     Messenger

	compose *composeSessions
}

func New(cfg *config.Config, store *storage.Storage, bot Messenger) *Workflow {
	return &Workflow{
		config:  cfg,
		storage: store,
		bot:     bot,
		compose: newComposeSessions(),
	}
}

func actionKeyboard(targetID int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("✅ Approve", fmt.Sprintf("%s%d", CallbackApprove, targetID)),
			markup.Data("❌ Reject", fmt.Sprintf("%s%d", CallbackReject, targetID)),
		),
		markup.Row(
			markup.Data("🔍 View Details", fmt.Sprintf("%s%d", CallbackDetails, targetID)),
		),
	)
	return markup
}

func submissionCaption(user *models.User, amount int) string {
	return fmt.Sprintf(
		"🔔 *NEW PAYMENT RECEIVED*\n\n"+
			"👤 *User Information:*\n"+
			"• Name: %s\n"+
			"• Phone: %s\n"+
			"• Student Type: %s\n"+
			"• User ID: %d\n\n"+
			"💳 *Payment Details:*\n"+
			"• Method: %s\n"+
			"• Amount: %d ETB\n"+
			"• Status: Pending Approval\n"+
			"• Submitted: %s\n\n"+
			"⚡ *QUICK ACTIONS:*",
		user.DisplayName,
		user.Phone,
		user.Track.Label(),
		user.TelegramID,
		user.PaymentMethod.Label(),
		amount,
		time.Now().Format("2006-01-02 15:04"),
	)
}

// SubmitForApproval fans the submission out to every configured
// administrator. Delivery is best-effort and independent per recipient;
// failures are logged, never propagated, since the registrant's record is
// already committed.
func (w *Workflow) SubmitForApproval(ctx context.Context, user *models.User, payment *models.Payment) error {
	photo := &telebot.Photo{
		File:    telebot.File{FileID: payment.FileID},
		Caption: submissionCaption(user, payment.Amount),
	}

	for _, adminID := range w.config.AdminIDs {
		if _, err := w.bot.Send(
			telebot.ChatID(adminID),
			photo,
			actionKeyboard(user.TelegramID),
			telebot.ModeMarkdown,
		); err != nil {
			logrus.Errorf("failed to notify admin %d about payment %s: %v", adminID, payment.ID, err)
		}
	}

	return nil
}

// Approve sets the verdict and tells the user. Re-approving an approved
// record re-sends the user notification without double-counting anything.
func (w *Workflow) Approve(ctx context.Context, targetID, adminID int64) error {
	if !w.authorize(adminID) {
		return nil
	}

	if err := w.storage.SetPaymentVerdict(ctx, targetID, models.PaymentStatusApproved, true); err != nil {
		if err == storage.ErrNotFound {
			return w.send(telebot.ChatID(adminID), "❌ User not found.")
		}
		w.reply(telebot.ChatID(adminID), "❌ Error approving user. Please try again.")
		return fmt.Errorf("approving user %d: %w", targetID, err)
	}

	if err := w.send(
		telebot.ChatID(targetID),
		"🎉 *REGISTRATION APPROVED*\n\n"+
			"Congratulations! Your registration has been approved.\n\n"+
			"You now have full access to all features!",
	); err != nil {
		logrus.Errorf("failed to notify user %d of approval: %v", targetID, err)
	}

	user, err := w.storage.GetUser(ctx, targetID)
	if err != nil {
		return fmt.Errorf("getting approved user: %w", err)
	}
	return w.offerFollowUp(adminID, user)
}

// Reject sets the rejected verdict and tells the user.
func (w *Workflow) Reject(ctx context.Context, targetID, adminID int64) error {
	if !w.authorize(adminID) {
		return nil
	}

	if err := w.storage.SetPaymentVerdict(ctx, targetID, models.PaymentStatusRejected, false); err != nil {
		if err == storage.ErrNotFound {
			return w.send(telebot.ChatID(adminID), "❌ User not found.")
		}
		w.reply(telebot.ChatID(adminID), "❌ Error rejecting user. Please try again.")
		return fmt.Errorf("rejecting user %d: %w", targetID, err)
	}

	if err := w.send(
		telebot.ChatID(targetID),
		"❌ *REGISTRATION REJECTED*\n\n"+
			"Your registration has been rejected by admin.\n\n"+
			"Please contact support for more information.",
	); err != nil {
		logrus.Errorf("failed to notify user %d of rejection: %v", targetID, err)
	}

	return w.send(telebot.ChatID(adminID), "✅ User rejected.")
}

// Details is a read-only expansion of the target record, no state change.
func (w *Workflow) Details(ctx context.Context, targetID, adminID int64) error {
	if !w.authorize(adminID) {
		return nil
	}

	user, err := w.storage.GetUser(ctx, targetID)
	if err != nil {
		if err == storage.ErrNotFound {
			return w.send(telebot.ChatID(adminID), "❌ User not found.")
		}
		return fmt.Errorf("getting user %d: %w", targetID, err)
	}

	referrer := "—"
	if user.ReferrerID != nil {
		referrer = fmt.Sprintf("%d", *user.ReferrerID)
	}

	return w.send(telebot.ChatID(adminID), fmt.Sprintf(
		"👤 *USER DETAILS*\n\n"+
			"🆔 ID: %d\n"+
			"📛 Name: %s\n"+
			"📱 Phone: %s\n"+
			"🎓 Stream: %s\n"+
			"💳 Payment Method: %s\n\n"+
			"📊 *STATUS:*\n"+
			"✅ Verified: %t\n"+
			"📝 Registration Step: %s\n"+
			"💰 Payment Status: %s\n"+
			"👥 Referrals: %d\n"+
			"🔗 Referred By: %s\n"+
			"🎁 Rewards: %d ETB\n"+
			"📅 Joined: %s",
		user.TelegramID,
		orDash(user.DisplayName),
		orDash(user.Phone),
		user.Track.Label(),
		user.PaymentMethod.Label(),
		user.Verified,
		user.RegistrationStep,
		user.PaymentStatus,
		user.ReferralCount,
		referrer,
		user.RewardBalance,
		user.JoinedAt.Format("2006-01-02"),
	))
}

// PendingQueue re-sends every pending submission to the requesting admin
// with the same quick actions as the original push notification.
func (w *Workflow) PendingQueue(ctx context.Context, adminID int64) error {
	if !w.authorize(adminID) {
		return nil
	}

	payments, err := w.storage.ListPendingPayments(ctx, 50)
	if err != nil {
		w.reply(telebot.ChatID(adminID), "❌ Error loading pending payments.")
		return fmt.Errorf("listing pending payments: %w", err)
	}
	if len(payments) == 0 {
		return w.send(telebot.ChatID(adminID), "✅ No payments waiting for review.")
	}

	for _, payment := range payments {
		user, err := w.storage.GetUser(ctx, payment.TelegramID)
		if err != nil {
			logrus.Errorf("failed to load user for payment %s: %v", payment.ID, err)
			continue
		}
		photo := &telebot.Photo{
			File:    telebot.File{FileID: payment.FileID},
			Caption: submissionCaption(user, payment.Amount),
		}
		if _, err := w.bot.Send(telebot.ChatID(adminID), photo, actionKeyboard(user.TelegramID), telebot.ModeMarkdown); err != nil {
			logrus.Errorf("failed to send pending payment %s to admin %d: %v", payment.ID, adminID, err)
		}
	}
	return nil
}

// authorize checks the allow-list and answers non-admins with a generic
// denial that leaks nothing about existing records.
func (w *Workflow) authorize(adminID int64) bool {
	if w.config.IsAdmin(adminID) {
		return true
	}
	w.reply(telebot.ChatID(adminID), "❌ You are not authorized to perform this action.")
	return false
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func (w *Workflow) send(to telebot.Recipient, text string, extra ...interface{}) error {
	opts := append(extra, telebot.ModeMarkdown)
	if _, err := w.bot.Send(to, text, opts...); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// reply is send with the error swallowed, for failure paths that already
// report through their own error return.
func (w *Workflow) reply(to telebot.Recipient, text string) {
	if err := w.send(to, text); err != nil {
		logrus.Errorf("failed to send reply: %v", err)
	}
}
