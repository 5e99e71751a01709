package dispatch

import (
	"strconv"
	"strings"

	"github.com/freshman-academy/tutorbot/internal/approval"
	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/registration"
	"gopkg.in/telebot.v4"
)

// Kind is the closed set of things an inbound event can mean. Every event
// classifies to exactly one Kind; downstream code matches on the variant,
// never on raw button text.
type Kind int

const (
	KindFreeText Kind = iota

	// Control-label navigation, highest priority.
	KindCancel
	KindHome

	// Admin composition session input.
	KindComposeInput

	// Shape-based routing.
	KindContact
	KindUpload

	// Commands and menu buttons.
	KindStart
	KindRegister
	KindPayFee
	KindProfile
	KindInvite
	KindLeaderboard
	KindMyReferrals
	KindWithdraw
	KindHelp
	KindRules
	KindAdminPanel
	KindStats
	KindReviewPayments

	// Callback actions.
	KindSelectTrack
	KindSelectPayment
	KindResume
	KindRestart
	KindApprove
	KindReject
	KindDetails
	KindWelcomeTemplate
	KindCustomMessage
	KindSkipMessage
	KindAddURLButton
	KindAddDataButton
	KindPreviewMessage
	KindSendCustom
	KindCancelCustom
	KindClearButtons
	KindUnknownCallback
)

// Action is the tagged result of classifying one inbound event.
type Action struct {
	Kind Kind

	Text    string
	Phone   string
	FileID  string
	Payload string

	Track  models.Track
	Method models.PaymentMethod

	// Target is the user id carried by an admin callback token.
	Target int64
}

// Menu button labels. These stay in lockstep with the keyboards in
// screens.go.
const (
	labelPayFee         = "💰 Pay Tutorial Fee"
	labelInvite         = "🎁 Invite & Earn"
	labelLeaderboard    = "📈 Leaderboard"
	labelMyReferrals    = "📊 My Referrals"
	labelHelp           = "❓ Help"
	labelRules          = "📌 Rules"
	labelProfile        = "👤 My Profile"
	labelWithdraw       = "💰 Withdraw Rewards"
	labelAdminPanel     = "🛠️ Admin Panel"
	labelStats          = "📊 Student Stats"
	labelReviewPayments = "💰 Review Payments"
	labelBackToMenu     = "🔙 Back to Menu"
)

// Classify maps a message event to exactly one Action. Priority, highest
// first: control labels, an active admin composition session, contact/photo
// shape, slash commands, menu button labels, free-text fallback.
func Classify(msg *telebot.Message, composing bool) Action {
	if msg == nil {
		return Action{Kind: KindFreeText}
	}
	text := strings.TrimSpace(msg.Text)

	switch text {
	case registration.LabelCancel:
		return Action{Kind: KindCancel}
	case registration.LabelHome, labelBackToMenu:
		return Action{Kind: KindHome}
	}

	if composing && text != "" && !strings.HasPrefix(text, "/") {
		return Action{Kind: KindComposeInput, Text: msg.Text}
	}

	if msg.Contact != nil {
		return Action{Kind: KindContact, Phone: msg.Contact.PhoneNumber}
	}
	if msg.Photo != nil {
		return Action{Kind: KindUpload, FileID: msg.Photo.FileID}
	}
	if msg.Document != nil {
		return Action{Kind: KindUpload, FileID: msg.Document.FileID}
	}

	if strings.HasPrefix(text, "/") {
		cmd, payload, _ := strings.Cut(text, " ")
		if at := strings.Index(cmd, "@"); at > 0 {
			cmd = cmd[:at]
		}
		switch cmd {
		case "/start":
			return Action{Kind: KindStart, Payload: payload}
		case "/register":
			return Action{Kind: KindRegister}
		case "/admin":
			return Action{Kind: KindAdminPanel}
		case "/stats":
			return Action{Kind: KindStats}
		case "/help":
			return Action{Kind: KindHelp}
		case "/cancel":
			return Action{Kind: KindCancel}
		default:
			return Action{Kind: KindHome}
		}
	}

	switch text {
	case registration.LabelRegister:
		return Action{Kind: KindRegister}
	case labelPayFee:
		return Action{Kind: KindPayFee}
	case labelProfile:
		return Action{Kind: KindProfile}
	case labelInvite:
		return Action{Kind: KindInvite}
	case labelLeaderboard:
		return Action{Kind: KindLeaderboard}
	case labelMyReferrals:
		return Action{Kind: KindMyReferrals}
	case labelWithdraw:
		return Action{Kind: KindWithdraw}
	case labelHelp:
		return Action{Kind: KindHelp}
	case labelRules:
		return Action{Kind: KindRules}
	case labelAdminPanel:
		return Action{Kind: KindAdminPanel}
	case labelStats:
		return Action{Kind: KindStats}
	case labelReviewPayments:
		return Action{Kind: KindReviewPayments}
	}

	return Action{Kind: KindFreeText, Text: text}
}

// ClassifyCallback maps callback data to exactly one Action. Data produced
// by telebot inline buttons carries a "\f" prefix; tokens follow the
// <verb>_<value> convention and unrecognized ones classify to
// KindUnknownCallback.
func ClassifyCallback(data string) Action {
	data = strings.TrimPrefix(strings.TrimSpace(data), "\f")
	if i := strings.Index(data, "|"); i >= 0 {
		data = data[:i]
	}

	switch data {
	case registration.CallbackTrackNatural:
		return Action{Kind: KindSelectTrack, Track: models.TrackNatural}
	case registration.CallbackTrackSocial:
		return Action{Kind: KindSelectTrack, Track: models.TrackSocial}
	case registration.CallbackPayTeleBirr:
		return Action{Kind: KindSelectPayment, Method: models.PaymentMethodTeleBirr}
	case registration.CallbackPayCBE:
		return Action{Kind: KindSelectPayment, Method: models.PaymentMethodCBEBirr}
	case registration.CallbackResume:
		return Action{Kind: KindResume}
	case registration.CallbackRestart:
		return Action{Kind: KindRestart}
	}

	for _, t := range []struct {
		prefix string
		kind   Kind
	}{
		{approval.CallbackApprove, KindApprove},
		{approval.CallbackReject, KindReject},
		{approval.CallbackDetails, KindDetails},
		{approval.CallbackWelcomeTmpl, KindWelcomeTemplate},
		{approval.CallbackCustomMsg, KindCustomMessage},
		{approval.CallbackSkipMsg, KindSkipMessage},
		{approval.CallbackAddURLBtn, KindAddURLButton},
		{approval.CallbackAddDataBtn, KindAddDataButton},
		{approval.CallbackPreviewMsg, KindPreviewMessage},
		{approval.CallbackSendCustom, KindSendCustom},
		{approval.CallbackCancelCustom, KindCancelCustom},
		{approval.CallbackClearButtons, KindClearButtons},
	} {
		if raw, found := strings.CutPrefix(data, t.prefix); found {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Action{Kind: KindUnknownCallback}
			}
			return Action{Kind: t.kind, Target: id}
		}
	}

	return Action{Kind: KindUnknownCallback}
}
