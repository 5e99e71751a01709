package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/freshman-academy/tutorbot/internal/approval"
	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/dispatch"
	"github.com/freshman-academy/tutorbot/internal/logging"
	"github.com/freshman-academy/tutorbot/internal/referral"
	"github.com/freshman-academy/tutorbot/internal/registration"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	initCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()

	if err := store.Migrate(initCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	globalState, err := store.GetOrCreateGlobalState(ctx)
	if err != nil {
		logrus.Fatalf("Failed to get or create global state: %v", err)
	}

	bot, err := telebot.NewBot(telebot.Settings{
		Token: cfg.TelegramToken,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			LastUpdateID:   globalState.LastUpdateID,
			AllowedUpdates: []string{"message", "callback_query"},
		},
	})
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	workflow := approval.New(cfg, store, bot)
	ledger := referral.NewLedger(cfg, store)
	machine := registration.NewMachine(cfg, store, bot, workflow)
	dispatcher := dispatch.New(cfg, store, bot, machine, ledger, workflow)

	for _, updateType := range []string{
		telebot.OnText,
		telebot.OnContact,
		telebot.OnPhoto,
		telebot.OnDocument,
	} {
		bot.Handle(updateType, dispatcher.HandleMessage)
	}
	bot.Handle(telebot.OnCallback, dispatcher.HandleCallback)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.Start()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runComposeJanitor(ctx, workflow)
	}()

	<-ctx.Done()

	bot.Stop()

	logrus.Info("waiting for services to finish")
	wg.Wait()
}

// runComposeJanitor periodically drops abandoned admin composition sessions.
func runComposeJanitor(ctx context.Context, workflow *approval.Workflow) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()

	logger := logrus.WithField("component", "compose_janitor")

	for {
		select {
		case <-t.C:
			if dropped := workflow.SweepStaleSessions(viper.GetDuration("compose_session_ttl")); dropped > 0 {
				logger.Infof("dropped %d stale composition sessions", dropped)
			}
		case <-ctx.Done():
			return
		}
	}
}

func setupConfig() {
	viper.SetDefault("bot_handle_timeout", "10s")
	viper.SetDefault("compose_session_ttl", "30m")
	config.SetupCommon()
}
