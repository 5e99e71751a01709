package registration

import (
	"fmt"

	"github.com/freshman-academy/tutorbot/internal/models"
	"gopkg.in/telebot.v4"
)

// Callback tokens carried by the wizard's inline buttons.
const (
	CallbackTrackNatural = "stream_natural"
	CallbackTrackSocial  = "stream_social"
	CallbackPayTeleBirr  = "payment_telebirr"
	CallbackPayCBE       = "payment_cbe"
	CallbackResume       = "reg_resume"
	CallbackRestart      = "reg_restart"
)

// Reply-keyboard control labels. The dispatcher intercepts these before any
// step handler so they are never captured as data.
const (
	LabelCancel   = "❌ Cancel Registration"
	LabelHome     = "🏠 Go Home"
	LabelRegister = "📚 Register for Tutorial"
)

// ControlLabel reports whether text is a reserved button label rather than
// user data.
func ControlLabel(text string) bool {
	switch text {
	case LabelCancel, LabelHome, LabelRegister:
		return true
	}
	return false
}

func cancelKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}
	markup.Reply(
		markup.Row(markup.Text(LabelCancel), markup.Text(LabelHome)),
	)
	return markup
}

func phoneKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}
	markup.Reply(
		markup.Row(markup.Contact("📲 Share My Phone Number")),
		markup.Row(markup.Text(LabelCancel), markup.Text(LabelHome)),
	)
	return markup
}

func trackKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("🔘 Natural Science", CallbackTrackNatural),
			markup.Data("⚪ Social Science", CallbackTrackSocial),
		),
	)
	return markup
}

func paymentKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("🔘 TeleBirr", CallbackPayTeleBirr),
			markup.Data("⚪ CBE Birr", CallbackPayCBE),
		),
	)
	return markup
}

func resumeKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("▶️ Resume", CallbackResume),
			markup.Data("🔄 Start Over", CallbackRestart),
		),
	)
	return markup
}

func namePrompt() string {
	return "📝 *REGISTRATION STARTED*\n\n" +
		"Please *type your full name* in the chat."
}

func phonePrompt(name string) string {
	return fmt.Sprintf(
		"✅ Name saved: *%s*\n\n"+
			"Now share your phone number using the button below 👇",
		name,
	)
}

func trackPrompt() string {
	return "✅ Phone number saved.\n\n" +
		"🎓 *STUDENT TYPE*\n" +
		"Choose your field:"
}

func paymentPrompt(fee int) string {
	return fmt.Sprintf(
		"💳 *SELECT PAYMENT METHOD*\n\n"+
			"Choose how you want to pay *%d ETB*:",
		fee,
	)
}

func (m *Machine) accountDetails(method models.PaymentMethod) string {
	number := m.config.TeleBirrAccount
	if method == models.PaymentMethodCBEBirr {
		number = m.config.CBEBirrAccount
	}

	return fmt.Sprintf(
		"✅ SELECTED: *%s*\n\n"+
			"📱 Account Number: `%s`\n"+
			"👤 Account Name: *%s*\n\n"+
			"💡 *Payment Instructions:*\n"+
			"1. Send exactly *%d ETB* to the above account\n"+
			"2. Take a clear screenshot of the transaction\n"+
			"3. Upload the screenshot here\n\n"+
			"📸 Ready when you are!",
		method.Label(),
		number,
		m.config.AccountName,
		m.config.RegistrationFee,
	)
}

func resumePrompt(user *models.User) string {
	field := func(v string) string {
		if v == "" {
			return "—"
		}
		return v
	}
	return fmt.Sprintf(
		"⏳ *Registration in progress*\n\n"+
			"📛 Name: %s\n"+
			"📱 Phone: %s\n"+
			"🎓 Student Type: %s\n"+
			"💳 Payment Method: %s\n\n"+
			"Resume where you left off, or start over?",
		field(user.DisplayName),
		field(user.Phone),
		user.Track.Label(),
		user.PaymentMethod.Label(),
	)
}

// promptText returns the prompt to (re-)issue for the given step, so
// resuming repeats the current question instead of guessing the next one.
func (m *Machine) promptText(user *models.User) (string, *telebot.ReplyMarkup) {
	switch user.RegistrationStep {
	case models.StepAwaitingName:
		return namePrompt(), cancelKeyboard()
	case models.StepAwaitingPhone:
		return phonePrompt(user.DisplayName), phoneKeyboard()
	case models.StepAwaitingTrack:
		return trackPrompt(), trackKeyboard()
	case models.StepAwaitingPaymentMethod:
		return paymentPrompt(m.config.RegistrationFee), paymentKeyboard()
	case models.StepAwaitingScreenshot:
		return m.accountDetails(user.PaymentMethod), cancelKeyboard()
	default:
		return "", nil
	}
}
