package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Service exposes the bot's health and aggregate stats over HTTP, the same
// view the operator dashboards poll.
type Service struct {
	config  *config.Config
	storage *storage.Storage

	client *resty.Client
}

func NewService(cfg *config.Config, storage *storage.Storage) *Service {
	return &Service{
		config:  cfg,
		storage: storage,
		client:  resty.New().SetBaseURL("https://api.telegram.org"),
	}
}

type statusResponse struct {
	Status    string    `json:"status"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
	Stats     struct {
		Users     int64 `json:"users"`
		Verified  int64 `json:"verified"`
		Pending   int64 `json:"pending"`
		Referrals int64 `json:"referrals"`
		Rewards   int64 `json:"rewards"`
	} `json:"stats"`
}

func (s *Service) HandleStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := s.storage.GetStats(c.Request().Context())
		if err != nil {
			logrus.Errorf("failed to load stats: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database connection failed"})
		}

		resp := statusResponse{
			Status:    "online",
			Bot:       s.probeBot(),
			Timestamp: time.Now().UTC(),
		}
		resp.Stats.Users = stats.TotalUsers
		resp.Stats.Verified = stats.VerifiedUsers
		resp.Stats.Pending = stats.PendingApproval
		resp.Stats.Referrals = stats.TotalReferrals
		resp.Stats.Rewards = stats.TotalRewards

		return c.JSON(http.StatusOK, resp)
	}
}

// probeBot checks Bot API reachability with a getMe call.
func (s *Service) probeBot() string {
	type getMeResponse struct {
		OK bool `json:"ok"`
	}

	resp, err := s.client.R().
		SetResult(&getMeResponse{}).
		Get(fmt.Sprintf("/bot%s/getMe", s.config.TelegramToken))
	if err != nil {
		logrus.Errorf("failed to reach bot api: %v", err)
		return "unreachable"
	}
	if resp.StatusCode() != http.StatusOK || !resp.Result().(*getMeResponse).OK {
		return "unreachable"
	}
	return "reachable"
}
