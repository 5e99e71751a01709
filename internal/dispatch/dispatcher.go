package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/freshman-academy/tutorbot/internal/approval"
	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/referral"
	"github.com/freshman-academy/tutorbot/internal/registration"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"gopkg.in/telebot.v4"
)

// Messenger is the outbound slice of the bot API the dispatcher needs.
type Messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	EditReplyMarkup(msg telebot.Editable, markup *telebot.ReplyMarkup) (*telebot.Message, error)
}

// Dispatcher is the composition root: it classifies each inbound event into
// an Action and delegates to exactly one component. One participant's
// failure is logged and answered, never allowed to take down the poller.
type Dispatcher struct {
	config   *config.Config
	storage  *storage.Storage
	bot      Messenger
	machine  *registration.Machine
	ledger   *referral.Ledger
	workflow *approval.Workflow

	// locks serializes handling per participant id so concurrent retries
	// cannot interleave a record's read-modify-write.
	locks sync.Map
}

func New(
	cfg *config.Config,
	store *storage.Storage,
	bot Messenger,
	machine *registration.Machine,
	ledger *referral.Ledger,
	workflow *approval.Workflow,
) *Dispatcher {
	return &Dispatcher{
		config:   cfg,
		storage:  store,
		bot:      bot,
		machine:  machine,
		ledger:   ledger,
		workflow: workflow,
	}
}

func (d *Dispatcher) lock(userID int64) func() {
	muAny, _ := d.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// HandleMessage is the entry point for text, contact and upload events.
func (d *Dispatcher) HandleMessage(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.BotHandleTimeout)
	defer cancel()

	uc := NewUpdateContext(ctx, c)

	if err := d.storage.UpdateLastUpdate(uc, c.Update().ID); err != nil {
		uc.L().Errorf("failed to update last update: %v", err)
	}

	if c.Chat() == nil || c.Chat().Type != telebot.ChatPrivate {
		uc.L().Debugf("ignoring update from non-private chat")
		return nil
	}
	if c.Message() == nil || c.Sender() == nil {
		uc.L().Debugf("ignoring update without message or sender")
		return nil
	}

	sender := c.Sender().ID
	defer d.lock(sender)()

	composing := d.config.IsAdmin(sender) && d.workflow.Composing(sender)
	action := Classify(c.Message(), composing)

	if err := d.routeMessage(uc, action); err != nil {
		uc.L().Errorf("failed to handle message: %v", err)
		d.sendPlain(telebot.ChatID(uc.Chat().ID), "❌ An error occurred. Please try again.")
	}
	return nil
}

func (d *Dispatcher) routeMessage(uc *UpdateContext, action Action) error {
	sender := uc.Sender().ID
	to := telebot.ChatID(uc.Chat().ID)

	user, err := d.storage.GetOrCreateUser(uc, sender)
	if err != nil {
		return fmt.Errorf("getting user: %w", err)
	}

	switch action.Kind {
	case KindCancel:
		if d.workflow.Composing(sender) {
			if err := d.workflow.CancelCustomMessage(sender); err != nil {
				return err
			}
		}
		if err := d.machine.Cancel(uc, user, to); err != nil {
			return err
		}
		return d.showMainMenu(to)

	case KindHome:
		return d.showMainMenu(to)

	case KindComposeInput:
		consumed, err := d.workflow.HandleComposeText(uc, sender, action.Text)
		if err != nil {
			return err
		}
		if !consumed {
			return d.showMainMenu(to)
		}
		return nil

	case KindContact:
		consumed, err := d.machine.HandleContact(uc, user, to, action.Phone)
		if err != nil {
			return err
		}
		if !consumed {
			return d.showMainMenu(to)
		}
		return nil

	case KindUpload:
		consumed, err := d.machine.HandleUpload(uc, user, to, action.FileID)
		if err != nil {
			return err
		}
		if !consumed {
			return d.showMainMenu(to)
		}
		return nil

	case KindStart:
		if user.Blocked {
			return d.machine.Begin(uc, user, to)
		}
		if user.Verified {
			if err := d.sendWelcome(to); err != nil {
				return err
			}
			return d.showMainMenu(to)
		}
		if credited, err := d.ledger.Credit(uc, sender, action.Payload); err != nil {
			uc.L().Errorf("failed to credit referral: %v", err)
		} else if credited {
			uc.L().Infof("credited referral for user %d", sender)
			// Reload so the wizard's next save keeps the attribution.
			fresh, err := d.storage.GetUser(uc, sender)
			if err != nil {
				return fmt.Errorf("reloading user: %w", err)
			}
			user = fresh
		}
		if err := d.sendWelcome(to); err != nil {
			return err
		}
		return d.machine.Begin(uc, user, to)

	case KindRegister, KindPayFee:
		return d.machine.Begin(uc, user, to)

	case KindProfile:
		return d.showProfile(to, user)

	case KindInvite:
		return d.showInvite(to, user)

	case KindMyReferrals:
		return d.showReferrals(to, user)

	case KindLeaderboard:
		return d.send(to, "📈 Leaderboard - Coming soon")

	case KindWithdraw:
		return d.handleWithdraw(uc, user, to)

	case KindHelp:
		return d.showHelp(to)

	case KindRules:
		return d.showRules(to)

	case KindAdminPanel:
		return d.showAdminPanel(to, sender)

	case KindStats:
		return d.showStats(uc, to, sender)

	case KindReviewPayments:
		if !d.config.IsAdmin(sender) {
			return d.showMainMenu(to)
		}
		return d.workflow.PendingQueue(uc, sender)

	case KindFreeText:
		consumed, err := d.machine.HandleText(uc, user, to, action.Text)
		if err != nil {
			return err
		}
		if !consumed {
			return d.showMainMenu(to)
		}
		return nil

	default:
		return d.showMainMenu(to)
	}
}

// HandleCallback is the entry point for inline button presses.
func (d *Dispatcher) HandleCallback(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.BotHandleTimeout)
	defer cancel()

	uc := NewUpdateContext(ctx, c)

	if err := d.storage.UpdateLastUpdate(uc, c.Update().ID); err != nil {
		uc.L().Errorf("failed to update last update: %v", err)
	}

	if c.Callback() == nil || c.Sender() == nil {
		return nil
	}

	sender := c.Sender().ID
	defer d.lock(sender)()

	action := ClassifyCallback(c.Callback().Data)

	if err := d.routeCallback(uc, action); err != nil {
		uc.L().Errorf("failed to handle callback: %v", err)
		return c.Respond(&telebot.CallbackResponse{Text: "❌ Error processing request"})
	}
	return c.Respond(&telebot.CallbackResponse{})
}

func (d *Dispatcher) routeCallback(uc *UpdateContext, action Action) error {
	sender := uc.Sender().ID
	to := telebot.ChatID(uc.Chat().ID)

	switch action.Kind {
	case KindSelectTrack:
		user, err := d.storage.GetOrCreateUser(uc, sender)
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		consumed, err := d.machine.HandleTrack(uc, user, to, action.Track)
		if consumed {
			d.clearInlineKeyboard(uc)
		}
		return err

	case KindSelectPayment:
		user, err := d.storage.GetOrCreateUser(uc, sender)
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		consumed, err := d.machine.HandlePaymentMethod(uc, user, to, action.Method)
		if consumed {
			d.clearInlineKeyboard(uc)
		}
		return err

	case KindResume:
		user, err := d.storage.GetOrCreateUser(uc, sender)
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		d.clearInlineKeyboard(uc)
		return d.machine.Resume(uc, user, to)

	case KindRestart:
		user, err := d.storage.GetOrCreateUser(uc, sender)
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		d.clearInlineKeyboard(uc)
		return d.machine.Restart(uc, user, to)

	case KindApprove:
		return d.workflow.Approve(uc, action.Target, sender)

	case KindReject:
		return d.workflow.Reject(uc, action.Target, sender)

	case KindDetails:
		return d.workflow.Details(uc, action.Target, sender)

	case KindWelcomeTemplate:
		return d.workflow.SendWelcomeTemplate(uc, action.Target, sender)

	case KindCustomMessage:
		return d.workflow.StartCustomMessage(uc, action.Target, sender)

	case KindSkipMessage:
		return d.workflow.SkipFollowUp(uc, action.Target, sender)

	case KindAddURLButton:
		return d.workflow.AwaitButton(sender, "url")

	case KindAddDataButton:
		return d.workflow.AwaitButton(sender, "callback")

	case KindPreviewMessage:
		return d.workflow.PreviewCustomMessage(sender)

	case KindSendCustom:
		return d.workflow.SendCustomMessage(uc, sender)

	case KindCancelCustom:
		return d.workflow.CancelCustomMessage(sender)

	case KindClearButtons:
		return d.workflow.ClearButtons(sender)

	default:
		// Unrecognized callback tokens are ignored.
		uc.L().Debugf("ignoring unknown callback")
		return nil
	}
}

// clearInlineKeyboard removes the pressed inline keyboard. Edit failures
// (already edited, message too old) are not worth surfacing.
func (d *Dispatcher) clearInlineKeyboard(uc *UpdateContext) {
	msg := uc.TC().Callback().Message
	if msg == nil {
		return
	}
	if _, err := d.bot.EditReplyMarkup(msg, &telebot.ReplyMarkup{}); err != nil {
		uc.L().Debugf("failed to clear inline keyboard: %v", err)
	}
}
