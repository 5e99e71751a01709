package main

import (
	"github.com/freshman-academy/tutorbot/internal/api"
	"github.com/freshman-academy/tutorbot/internal/config"
	"github.com/freshman-academy/tutorbot/internal/logging"
	"github.com/freshman-academy/tutorbot/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
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

	service := api.NewService(cfg, store)
	e := echo.New()
	e.GET("/status", service.HandleStatus())
	if err := e.Start(":8080"); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}

func setupConfig() {
	config.SetupCommon()
}
