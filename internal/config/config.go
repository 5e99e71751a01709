package config

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken    string        `mapstructure:"telegram_token"`
	BotUsername      string        `mapstructure:"bot_username"`
	BotHandleTimeout time.Duration `mapstructure:"bot_handle_timeout"`

	AdminIDs []int64 `mapstructure:"admin_ids"`

	RegistrationFee         int `mapstructure:"registration_fee"`
	ReferralReward          int `mapstructure:"referral_reward"`
	MinReferralsForWithdraw int `mapstructure:"min_referrals_for_withdraw"`

	TeleBirrAccount string `mapstructure:"telebirr_account"`
	CBEBirrAccount  string `mapstructure:"cbebirr_account"`
	AccountName     string `mapstructure:"account_name"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	return cfg
}

// IsAdmin reports whether id is on the administrator allow-list.
func (c *Config) IsAdmin(id int64) bool {
	return slices.Contains(c.AdminIDs, id)
}

func SetupCommon() {
	viper.SetDefault("registration_fee", 500)
	viper.SetDefault("referral_reward", 30)
	viper.SetDefault("min_referrals_for_withdraw", 4)
	viper.SetDefault("telebirr_account", "+251 91 234 5678")
	viper.SetDefault("cbebirr_account", "1000 2345 6789")
	viper.SetDefault("account_name", "TUTORIAL ETHIOPIA")
	viper.SetEnvPrefix("TUTORBOT")

	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("bot_username")
	viper.MustBindEnv("admin_ids")
	viper.MustBindEnv("postgres_dsn")
	viper.AutomaticEnv()
}
