package dispatch

import (
	"fmt"

	"github.com/freshman-academy/tutorbot/internal/models"
	"github.com/freshman-academy/tutorbot/internal/registration"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

func (d *Dispatcher) mainMenuKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}
	markup.Reply(
		markup.Row(markup.Text(registration.LabelRegister)),
		markup.Row(markup.Text(labelPayFee), markup.Text(labelInvite)),
		markup.Row(markup.Text(labelLeaderboard), markup.Text(labelHelp)),
		markup.Row(markup.Text(labelRules), markup.Text(labelProfile)),
	)
	return markup
}

func (d *Dispatcher) sendWelcome(to telebot.Recipient) error {
	return d.send(to, fmt.Sprintf(
		"🎯 *Welcome to Tutorial Registration Bot!*\n\n"+
			"📚 Register for our comprehensive tutorials\n"+
			"💰 Registration fee: %d ETB\n"+
			"🎁 Earn %d ETB per referral\n\n"+
			"Start your registration journey!",
		d.config.RegistrationFee,
		d.config.ReferralReward,
	))
}

func (d *Dispatcher) showMainMenu(to telebot.Recipient) error {
	return d.send(to, "Choose an option below:", d.mainMenuKeyboard())
}

func (d *Dispatcher) showProfile(to telebot.Recipient, user *models.User) error {
	status := "⏳ Not registered"
	switch {
	case user.Verified:
		status = "✅ Verified"
	case user.PaymentStatus == models.PaymentStatusPendingApproval:
		status = "⏳ Pending approval"
	case user.PaymentStatus == models.PaymentStatusRejected:
		status = "❌ Rejected"
	case user.RegistrationStep.InProgress():
		status = "📝 Registration in progress"
	}

	name := user.DisplayName
	if name == "" {
		name = "Not provided"
	}
	phone := user.Phone
	if phone == "" {
		phone = "Not provided"
	}

	return d.send(to, fmt.Sprintf(
		"👤 *MY PROFILE*\n\n"+
			"📛 Name: %s\n"+
			"📱 Phone: %s\n"+
			"🎓 Student Type: %s\n"+
			"📊 Status: %s\n\n"+
			"👥 Referrals: %d\n"+
			"🎁 Rewards: %d ETB\n"+
			"📅 Joined: %s",
		name,
		phone,
		user.Track.Label(),
		status,
		user.ReferralCount,
		user.RewardBalance,
		user.JoinedAt.Format("2006-01-02"),
	))
}

func (d *Dispatcher) showInvite(to telebot.Recipient, user *models.User) error {
	link := d.ledger.Link(user.TelegramID)

	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(markup.URL("📤 Share Your Link", link)))

	return d.send(to, fmt.Sprintf(
		"🎁 *INVITE & EARN*\n\n"+
			"Earn *%d ETB* for every friend who registers with your link!\n\n"+
			"🔗 Your referral link:\n%s\n\n"+
			"👥 Referrals so far: %d\n"+
			"💰 Reward balance: %d ETB",
		d.config.ReferralReward,
		link,
		user.ReferralCount,
		user.RewardBalance,
	), markup)
}

func (d *Dispatcher) showReferrals(to telebot.Recipient, user *models.User) error {
	return d.send(to, fmt.Sprintf(
		"📊 *MY REFERRALS*\n\n"+
			"👥 Referrals: %d\n"+
			"🎁 Rewards: %d ETB\n\n"+
			"Withdrawals unlock at %d referrals.",
		user.ReferralCount,
		user.RewardBalance,
		d.config.MinReferralsForWithdraw,
	))
}

func (d *Dispatcher) handleWithdraw(uc *UpdateContext, user *models.User, to telebot.Recipient) error {
	if user.ReferralCount < d.config.MinReferralsForWithdraw {
		return d.send(to, fmt.Sprintf(
			"❌ You need at least *%d referrals* to withdraw rewards.\n\n"+
				"👥 Your referrals: %d",
			d.config.MinReferralsForWithdraw,
			user.ReferralCount,
		))
	}
	if user.RewardBalance <= 0 {
		return d.send(to, "❌ No rewards to withdraw yet.")
	}

	for _, adminID := range d.config.AdminIDs {
		if err := d.send(telebot.ChatID(adminID), fmt.Sprintf(
			"🔔 *NEW WITHDRAWAL REQUEST*\n\n"+
				"👤 User: %s\n"+
				"💰 Amount: %d ETB\n"+
				"👥 Referrals: %d\n"+
				"🆔 User ID: %d",
			user.DisplayName,
			user.RewardBalance,
			user.ReferralCount,
			user.TelegramID,
		)); err != nil {
			uc.L().Errorf("failed to notify admin %d of withdrawal: %v", adminID, err)
		}
	}

	return d.send(to, "✅ Withdrawal request submitted! An admin will contact you shortly.")
}

func (d *Dispatcher) showHelp(to telebot.Recipient) error {
	return d.send(to,
		"❓ *HELP*\n\n"+
			"📚 Use *Register for Tutorial* to start your registration.\n"+
			"💳 Pay the fee and upload a screenshot — an admin will review it.\n"+
			"🎁 Share your referral link to earn rewards.\n\n"+
			"Questions? Contact @support.")
}

func (d *Dispatcher) showRules(to telebot.Recipient) error {
	return d.send(to,
		"📌 *RULES*\n\n"+
			"1. One account per student.\n"+
			"2. Payment screenshots must be genuine and unedited.\n"+
			"3. Self-referrals do not count.\n"+
			"4. Abusive behavior leads to a block.")
}

func (d *Dispatcher) showAdminPanel(to telebot.Recipient, sender int64) error {
	if !d.config.IsAdmin(sender) {
		return d.send(to, "❌ You are not authorized to access admin panel.")
	}

	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}
	markup.Reply(
		markup.Row(markup.Text(labelReviewPayments), markup.Text(labelStats)),
		markup.Row(markup.Text(labelBackToMenu)),
	)

	return d.send(to, "🛠️ *ADMIN PANEL*\n\nChoose an option to manage:", markup)
}

func (d *Dispatcher) showStats(uc *UpdateContext, to telebot.Recipient, sender int64) error {
	if !d.config.IsAdmin(sender) {
		return d.send(to, "❌ You are not authorized.")
	}

	stats, err := d.storage.GetStats(uc)
	if err != nil {
		d.sendPlain(to, "❌ Error loading statistics.")
		return fmt.Errorf("loading stats: %w", err)
	}

	return d.send(to, fmt.Sprintf(
		"📊 *BOT STATISTICS*\n\n"+
			"👥 Total Users: %d\n"+
			"✅ Verified Users: %d\n"+
			"⏳ Pending Approval: %d\n"+
			"💰 Total Referrals: %d\n"+
			"🎁 Total Rewards: %d ETB\n\n"+
			"📈 *Stream Distribution:*\n"+
			"🔬 Natural Science: %d\n"+
			"📚 Social Science: %d",
		stats.TotalUsers,
		stats.VerifiedUsers,
		stats.PendingApproval,
		stats.TotalReferrals,
		stats.TotalRewards,
		stats.NaturalTrack,
		stats.SocialTrack,
	))
}

func (d *Dispatcher) send(to telebot.Recipient, text string, extra ...interface{}) error {
	opts := append(extra, telebot.ModeMarkdown)
	if _, err := d.bot.Send(to, text, opts...); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendPlain(to telebot.Recipient, text string) {
	if _, err := d.bot.Send(to, text); err != nil {
		logrus.Errorf("failed to send reply: %v", err)
	}
}
