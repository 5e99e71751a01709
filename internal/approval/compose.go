package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"gopkg.in/telebot.v4"
)

// Callback token prefixes for the post-approval follow-up flow.
const (
	CallbackCustomMsg    = "custom_msg_"
	CallbackWelcomeTmpl  = "welcome_template_"
	CallbackSkipMsg      = "skip_message_"
	CallbackAddURLBtn    = "add_url_"
	CallbackAddDataBtn   = "add_callback_"
	CallbackPreviewMsg   = "preview_msg_"
	CallbackSendCustom   = "send_custom_"
	CallbackCancelCustom = "cancel_custom_"
	CallbackClearButtons = "clear_buttons_"
)

type composeStep int

const (
	composeAwaitingText composeStep = iota
	composeBuildingButtons
	composeAwaitingURLButton
	composeAwaitingDataButton
)

type composeButton struct {
	Text string
	URL  string
	Data string
}

// composeSession is the per-administrator ephemeral state of a custom
// message being built. It has no cross-participant visibility and is
// cleared on send or cancel.
type composeSession struct {
	TargetID   int64
	TargetName string
	Step       composeStep
	Text       string
	Buttons    []composeButton
	StartedAt  time.Time
}

type composeSessions struct {
	mu       sync.Mutex
	sessions map[int64]*composeSession
}

func newComposeSessions() *composeSessions {
	return &composeSessions{sessions: make(map[int64]*composeSession)}
}

func (c *composeSessions) get(adminID int64) (*composeSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[adminID]
	return s, ok
}

func (c *composeSessions) put(adminID int64, s *composeSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[adminID] = s
}

func (c *composeSessions) clear(adminID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, adminID)
}

// SweepStaleSessions drops composition sessions older than maxAge so an
// abandoned flow cannot leak into an unrelated approval later. Returns the
// number of sessions dropped.
func (w *Workflow) SweepStaleSessions(maxAge time.Duration) int {
	w.compose.mu.Lock()
	defer w.compose.mu.Unlock()

	dropped := 0
	cutoff := time.Now().Add(-maxAge)
	for adminID, session := range w.compose.sessions {
		if session.StartedAt.Before(cutoff) {
			delete(w.compose.sessions, adminID)
			dropped++
		}
	}
	return dropped
}

// Composing reports whether adminID has an active composition session, so
// the dispatcher can route their free text here before anything else.
func (w *Workflow) Composing(adminID int64) bool {
	_, ok := w.compose.get(adminID)
	return ok
}

// offerFollowUp shows the post-approval messaging choices to the admin.
func (w *Workflow) offerFollowUp(adminID int64, user *models.User) error {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("📝 Send Custom Message", fmt.Sprintf("%s%d", CallbackCustomMsg, user.TelegramID)),
			markup.Data("🚀 Send Welcome Template", fmt.Sprintf("%s%d", CallbackWelcomeTmpl, user.TelegramID)),
		),
		markup.Row(
			markup.Data("❌ Skip", fmt.Sprintf("%s%d", CallbackSkipMsg, user.TelegramID)),
		),
	)

	return w.send(telebot.ChatID(adminID), fmt.Sprintf(
		"✅ *User Approved!*\n\n"+
			"👤 Name: %s\n"+
			"📱 Phone: %s\n"+
			"🎓 Stream: %s\n\n"+
			"💬 Send welcome message to user?",
		orDash(user.DisplayName),
		orDash(user.Phone),
		user.Track.Label(),
	), markup)
}

// SendWelcomeTemplate delivers the stock welcome message to the user.
func (w *Workflow) SendWelcomeTemplate(ctx context.Context, targetID, adminID int64) error {
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

	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.URL("📚 Download Materials", "https://example.com/materials"),
			markup.URL("📞 Contact Support", "https://t.me/support"),
		),
	)

	if err := w.send(telebot.ChatID(targetID),
		"🎉 *Welcome to Tutorial Academy!*\n\n"+
			"Your registration has been approved! 🎊\n\n"+
			"We're excited to have you onboard. Start your learning journey now and achieve your goals!",
		markup,
	); err != nil {
		w.reply(telebot.ChatID(adminID), "❌ Error sending welcome message.")
		return err
	}

	return w.send(telebot.ChatID(adminID), fmt.Sprintf("✅ Welcome message sent to %s!", user.DisplayName))
}

// StartCustomMessage opens a composition session for adminID.
func (w *Workflow) StartCustomMessage(ctx context.Context, targetID, adminID int64) error {
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

	w.compose.put(adminID, &composeSession{
		TargetID:   targetID,
		TargetName: user.DisplayName,
		Step:       composeAwaitingText,
		StartedAt:  time.Now(),
	})

	return w.send(telebot.ChatID(adminID), fmt.Sprintf(
		"✏️ *Compose Custom Message for %s*\n\n"+
			"Please type the message you want to send.\n\n"+
			"You can add inline buttons after writing the message.",
		user.DisplayName,
	))
}

// HandleComposeText consumes admin free text while a composition session is
// active. Returns whether the text was consumed.
func (w *Workflow) HandleComposeText(ctx context.Context, adminID int64, text string) (bool, error) {
	session, ok := w.compose.get(adminID)
	if !ok {
		return false, nil
	}

	switch session.Step {
	case composeAwaitingText:
		session.Text = text
		session.Step = composeBuildingButtons
		w.compose.put(adminID, session)
		return true, w.showButtonBuilder(adminID, session)

	case composeAwaitingURLButton, composeAwaitingDataButton:
		return true, w.addButtonFromText(adminID, session, text)

	default:
		// Building buttons: text not expected, re-show the builder.
		return true, w.showButtonBuilder(adminID, session)
	}
}

// addButtonFromText parses `Button Text | data` input for the pending
// button type.
func (w *Workflow) addButtonFromText(adminID int64, session *composeSession, text string) error {
	parts := strings.SplitN(text, "|", 2)
	if len(parts) != 2 {
		return w.send(telebot.ChatID(adminID), "❌ Invalid format. Use: \"Text | data\"")
	}
	label := strings.TrimSpace(parts[0])
	data := strings.TrimSpace(parts[1])
	if label == "" || data == "" {
		return w.send(telebot.ChatID(adminID), "❌ Invalid format. Use: \"Text | data\"")
	}

	if session.Step == composeAwaitingURLButton {
		if !strings.HasPrefix(data, "http://") && !strings.HasPrefix(data, "https://") {
			return w.send(telebot.ChatID(adminID), "❌ URL must start with http:// or https://")
		}
		session.Buttons = append(session.Buttons, composeButton{Text: label, URL: data})
	} else {
		session.Buttons = append(session.Buttons, composeButton{Text: label, Data: data})
	}

	session.Step = composeBuildingButtons
	w.compose.put(adminID, session)

	if err := w.send(telebot.ChatID(adminID), fmt.Sprintf("✅ Button added: \"%s\"", label)); err != nil {
		return err
	}
	return w.showButtonBuilder(adminID, session)
}

func (w *Workflow) showButtonBuilder(adminID int64, session *composeSession) error {
	preview := session.Text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}

	markup := &telebot.ReplyMarkup{}
	rows := []telebot.Row{}
	if len(session.Buttons) > 0 {
		rows = append(rows, markup.Row(
			markup.Data("👀 Preview Message", fmt.Sprintf("%s%d", CallbackPreviewMsg, session.TargetID)),
		))
	}
	rows = append(rows, markup.Row(
		markup.Data("🔗 URL Button", fmt.Sprintf("%s%d", CallbackAddURLBtn, session.TargetID)),
		markup.Data("📱 Callback Button", fmt.Sprintf("%s%d", CallbackAddDataBtn, session.TargetID)),
	))
	if len(session.Buttons) > 0 {
		rows = append(rows, markup.Row(
			markup.Data("🗑️ Clear All Buttons", fmt.Sprintf("%s%d", CallbackClearButtons, session.TargetID)),
		))
	}
	rows = append(rows, markup.Row(
		markup.Data("✅ Send Message", fmt.Sprintf("%s%d", CallbackSendCustom, session.TargetID)),
		markup.Data("❌ Cancel", fmt.Sprintf("%s%d", CallbackCancelCustom, session.TargetID)),
	))
	markup.Inline(rows...)

	return w.send(telebot.ChatID(adminID), fmt.Sprintf(
		"📝 *Message Preview:*\n%s\n\n"+
			"🔘 *Add Inline Buttons:*\n"+
			"Current buttons: %d\n\n"+
			"Choose button type to add:",
		preview,
		len(session.Buttons),
	), markup)
}

// AwaitButton switches the session to expect a button definition of the
// given kind ("url" or "callback").
func (w *Workflow) AwaitButton(adminID int64, kind string) error {
	session, ok := w.compose.get(adminID)
	if !ok {
		return w.send(telebot.ChatID(adminID), "❌ No active message composition.")
	}

	if kind == "url" {
		session.Step = composeAwaitingURLButton
		w.compose.put(adminID, session)
		return w.send(telebot.ChatID(adminID),
			"🔗 *Add URL Button*\n\n"+
				"Enter the button text and URL:\n"+
				"\"Button Text | https://example.com\"")
	}

	session.Step = composeAwaitingDataButton
	w.compose.put(adminID, session)
	return w.send(telebot.ChatID(adminID),
		"📱 *Add Callback Button*\n\n"+
			"Enter the button text and callback data:\n"+
			"\"Button Text | callback_data\"")
}

// PreviewCustomMessage shows the admin how the message will render.
func (w *Workflow) PreviewCustomMessage(adminID int64) error {
	session, ok := w.compose.get(adminID)
	if !ok {
		return w.send(telebot.ChatID(adminID), "❌ No active message composition.")
	}

	return w.send(telebot.ChatID(adminID), fmt.Sprintf(
		"👀 *Message Preview for %s:*\n\n%s", session.TargetName, session.Text,
	), session.markup())
}

// SendCustomMessage delivers the composed message and clears the session.
func (w *Workflow) SendCustomMessage(ctx context.Context, adminID int64) error {
	session, ok := w.compose.get(adminID)
	if !ok {
		return w.send(telebot.ChatID(adminID), "❌ No active message composition.")
	}

	if err := w.send(telebot.ChatID(session.TargetID), session.Text, session.markup()); err != nil {
		w.reply(telebot.ChatID(adminID), "❌ Error sending message to user.")
		return err
	}

	w.compose.clear(adminID)
	return w.send(telebot.ChatID(adminID), fmt.Sprintf("✅ Custom message sent to %s!", session.TargetName))
}

// CancelCustomMessage drops the session without sending anything.
func (w *Workflow) CancelCustomMessage(adminID int64) error {
	w.compose.clear(adminID)
	return w.send(telebot.ChatID(adminID), "❌ Message composition cancelled.")
}

// ClearButtons removes all buttons added so far.
func (w *Workflow) ClearButtons(adminID int64) error {
	session, ok := w.compose.get(adminID)
	if !ok {
		return w.send(telebot.ChatID(adminID), "❌ No active message composition.")
	}

	session.Buttons = nil
	session.Step = composeBuildingButtons
	w.compose.put(adminID, session)

	if err := w.send(telebot.ChatID(adminID), "✅ All buttons cleared."); err != nil {
		return err
	}
	return w.showButtonBuilder(adminID, session)
}

// SkipFollowUp acknowledges the admin chose not to message the user.
func (w *Workflow) SkipFollowUp(ctx context.Context, targetID, adminID int64) error {
	if !w.authorize(adminID) {
		return nil
	}

	name := "user"
	if user, err := w.storage.GetUser(ctx, targetID); err == nil && user.DisplayName != "" {
		name = user.DisplayName
	}
	return w.send(telebot.ChatID(adminID), fmt.Sprintf("✅ No message sent to %s.", name))
}

func (s *composeSession) markup() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(s.Buttons))
	for _, b := range s.Buttons {
		if b.URL != "" {
			rows = append(rows, markup.Row(markup.URL(b.Text, b.URL)))
		} else {
			rows = append(rows, markup.Row(markup.Data(b.Text, b.Data)))
		}
	}
	markup.Inline(rows...)
	return markup
}
