package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resalewatch/config"
	"resalewatch/database"
	"resalewatch/handlers"
	"resalewatch/metrics"
	"resalewatch/repository"
	"resalewatch/scheduler"
	"resalewatch/scraper"
	"resalewatch/services"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const onlineMessage = "✅ Bot is online and monitoring Ticketmaster resale events!"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.NewLogger()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Failed to load time zone: %v", err)
	}

	events, err := config.LoadEvents(cfg.EventsFile, cfg.MinTickets, logger)
	if err != nil {
		logger.Fatalf("Failed to load events: %v", err)
	}
	logger.WithField("events", len(events)).Info("📋 Loaded event table")

	// Notifiers
	var alertSink, statusSink services.Notifier
	if cfg.DiscordToken != "" && cfg.ChannelID != "" {
		session, err := services.NewDiscordSession(cfg.DiscordToken)
		if err != nil {
			logger.Fatalf("Failed to create Discord session: %v", err)
		}
		alertSink = services.NewDiscordNotifier(session, cfg.ChannelID)
		statusSink = services.NewDiscordNotifier(session, cfg.StatusChannel())
	} else {
		logger.Warn("DISCORD_TOKEN or CHANNEL_ID not set, alerts will only be logged")
		alertSink = services.NewLogNotifier(logger, "alerts")
		statusSink = services.NewLogNotifier(logger, "status")
	}

	// Renderer
	var renderer scraper.Renderer
	switch cfg.Renderer {
	case config.RendererHTTP:
		renderer = scraper.NewHTTPRenderer(cfg.FetchTimeout, logger)
	default:
		br, err := scraper.NewBrowserRenderer(scraper.BrowserOptions{
			Bin:         cfg.ChromeBin,
			Timeout:     cfg.FetchTimeout,
			Timezone:    cfg.Timezone,
			Screenshots: cfg.DebugDir != "",
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to start browser: %v", err)
		}
		renderer = br
	}
	defer renderer.Close()

	checker := scraper.NewChecker(renderer, scraper.NewBotDetector(), scraper.NewOfferExtractor(scraper.DefaultPatterns(), logger), logger).
		WithVerbose(cfg.DebugTM)
	if cfg.DebugDir != "" {
		checker.WithArtifacts(scraper.NewDebugArtifacts(cfg.DebugDir, logger))
	}

	m := metrics.New()
	state := repository.NewAlertStateRepository()
	alerts := services.NewAlertService(state, alertSink, loc, logger)

	queue := scheduler.NewTaskQueue(scheduler.JitteredDelay(cfg.BetweenEventsDelay, cfg.BetweenEventsJitter), logger)
	resaleChecker := scheduler.NewResaleChecker(events, checker.Check, alerts, queue, m, scheduler.Options{
		SweepSchedule:  cfg.SweepSchedule,
		StatusSchedule: cfg.StatusSchedule,
		RunOnStart:     cfg.RunOnStart,
		Location:       loc,
		Retry:          &scraper.RetryPolicy{Delays: cfg.RetryDelays},
	}, logger).WithStatusNotifier(statusSink)

	// Optional history store
	var history handlers.AlertHistory
	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		if err := database.CreateTables(db); err != nil {
			logger.Fatalf("Failed to create tables: %v", err)
		}
		historyRepo := repository.NewHistoryRepository(db)
		alerts.WithRecorder(historyRepo)
		resaleChecker.WithHistory(historyRepo)
		history = historyRepo
		logger.Info("🗄️ Alert history enabled")
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := alertSink.Send(startCtx, onlineMessage); err != nil {
		logger.WithError(err).Warn("Failed to send startup message")
	}
	cancel()

	if err := resaleChecker.Start(); err != nil {
		logger.Fatalf("Failed to start resale checker: %v", err)
	}
	defer resaleChecker.Stop()

	h := handlers.NewHandlers(resaleChecker, state, alerts, handlers.Options{
		History:      history,
		Metrics:      m.Handler(),
		CheckTimeout: cfg.FetchTimeout + 30*time.Second,
	}, logger)
	r := h.Router(cfg.APIKey, cfg.APIRateLimit)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("🌐 Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown")
	}
}
