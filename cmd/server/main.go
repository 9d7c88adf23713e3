package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/katakuxiko/SolarScholar/internal/api"
	"github.com/katakuxiko/SolarScholar/internal/config"
	"github.com/katakuxiko/SolarScholar/internal/events"
	"github.com/katakuxiko/SolarScholar/internal/layout"
	"github.com/katakuxiko/SolarScholar/internal/model"
	"github.com/katakuxiko/SolarScholar/internal/service"
	"github.com/katakuxiko/SolarScholar/internal/store"
)

func main() {
	// config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// session
	session := store.NewSession(cfg.DefaultChat, model.Settings{
		APIKey: cfg.APIKey,
		Prompt: cfg.Prompt,
		Model:  cfg.ChatModel,
	}, events.NewBroker())

	// services
	llm := service.NewLLMClient(cfg)
	chat := service.NewChatService(session, llm)
	ingest := service.NewIngestService(session, newParser(cfg), cfg.UploadDir, cfg.LayoutFormat)

	// api
	app := api.NewApp(api.NewHandler(session, chat, ingest, llm), cfg.BodyLimitMB)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("🚀 Server started at %s (model=%s, layout=%s)", cfg.ServerAddr, cfg.ChatModel, cfg.LayoutProvider)
	if err := app.Listen(cfg.ServerAddr); err != nil {
		log.Fatal(err)
	}
}

func newParser(cfg *config.Config) layout.Parser {
	if cfg.LayoutProvider == "local" {
		return layout.NewLocalParser()
	}
	return layout.NewUpstageParser(cfg.LayoutURL, nil)
}
