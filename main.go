package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/linkedin-agent/api"
	"github.com/brettboylen/linkedin-agent/browser"
	"github.com/brettboylen/linkedin-agent/db"
	"github.com/brettboylen/linkedin-agent/events"
	"github.com/brettboylen/linkedin-agent/models"
	"github.com/brettboylen/linkedin-agent/pipeline"
	"github.com/brettboylen/linkedin-agent/server"
	"github.com/brettboylen/linkedin-agent/stats"
	"github.com/brettboylen/linkedin-agent/utils"
)

// how long shutdown waits for the current stage to finish
const stopTimeout = 30 * time.Second

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "debug", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting LinkedIn Agent")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"targets":     len(config.Agent.TargetProfiles),
		"store":       config.Database.Backend,
		"site":        config.Browser.SiteURL,
		"server_port": config.Server.Port,
	}).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, config.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	defaults := defaultSettings(config.Agent)
	seeded, err := pipeline.EnsureSettings(ctx, store, defaults)
	if err != nil {
		log.WithError(err).Fatal("Failed to seed settings")
	}
	if seeded {
		log.Info("Seeded settings from environment")
	}

	broker := events.NewBroker(log)
	defer broker.Close()

	activities := stats.NewActivityLog(store, broker, log)
	oplog := stats.NewOpLog(store, broker, log)
	counters := stats.NewCounters(store)

	pages := browser.NewAdapter(browser.Config{
		DebuggerURL: config.Browser.DebuggerURL,
		Bin:         config.Browser.Bin,
		Headless:    config.Browser.Headless,
	}, log)
	defer pages.Close()

	controller := pipeline.NewController(pipelineConfig(config, defaults), pipeline.Deps{
		Store:      store,
		Pages:      pages,
		Generators: generatorFactory(ctx, config.Generator, log),
		Activities: activities,
		OpLog:      oplog,
		Counters:   counters,
		Events:     broker,
		Metrics:    pipeline.NewMetrics(prometheus.DefaultRegisterer),
		Log:        log,
	})

	httpServer := server.New(server.Config{
		Port:                 config.Server.Port,
		MaxRequestsPerMinute: config.Server.MaxRequestsPerMinute,
		Defaults:             defaults,
	}, server.Deps{
		Runner:     controller,
		Store:      store,
		Activities: activities,
		OpLog:      oplog,
		Counters:   counters,
		Events:     broker,
		Gatherer:   prometheus.DefaultGatherer,
		Log:        log,
	})

	go func() {
		if err := httpServer.Run(ctx); err != nil {
			log.WithError(err).Fatal("API server stopped unexpectedly")
		}
	}()

	waitForShutdown(cancel, controller, log)
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func openStore(ctx context.Context, cfg utils.DatabaseConfig, log *logrus.Logger) (db.Store, error) {
	if cfg.Backend == utils.BackendRedis {
		return db.NewRedisStore(ctx, db.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
	}
	return db.NewDatabase(cfg.Path, log)
}

func defaultSettings(agent utils.AgentConfig) models.Settings {
	return models.Settings{
		GeminiAPIKey:    agent.GeminiAPIKey,
		MistralAPIKey:   agent.MistralAPIKey,
		TargetProfiles:  agent.TargetProfiles,
		BusinessContext: agent.BusinessContext,
		CustomPrompts: models.CustomPrompts{
			VisionPrompt:  agent.VisionPrompt,
			CommentPrompt: agent.CommentPrompt,
		},
	}
}

func pipelineConfig(config *utils.Config, defaults models.Settings) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.SiteURL = config.Browser.SiteURL
	cfg.NavigationTimeout = config.Pacing.NavigationTimeout()
	cfg.BetweenTargetsDelay.Min, cfg.BetweenTargetsDelay.Max = config.Pacing.BetweenTargets()
	cfg.AfterSkipDelay.Min, cfg.AfterSkipDelay.Max = config.Pacing.AfterSkip()
	cfg.Defaults = defaults
	return cfg
}

// generatorFactory builds a fresh generator from each run's credentials
func generatorFactory(ctx context.Context, cfg utils.GeneratorConfig, log *logrus.Logger) pipeline.GeneratorFactory {
	return func(settings models.Settings) (pipeline.ContentGenerator, error) {
		generator, err := api.NewGenerator(ctx, api.GeneratorConfig{
			TextModel:         cfg.TextModel,
			VisionModel:       cfg.VisionModel,
			MistralBaseURL:    cfg.MistralBaseURL,
			Temperature:       float32(cfg.Temperature),
			MaxTokens:         int32(cfg.MaxTokens),
			RequestsPerMinute: cfg.RequestsPerMinute,
			MaxRetries:        cfg.MaxRetries,
		}, settings.GeminiAPIKey, settings.MistralAPIKey, log)
		if err != nil {
			return nil, err
		}
		return generator, nil
	}
}

// waitForShutdown waits for a shutdown signal, then stops the run and the server
func waitForShutdown(cancel context.CancelFunc, controller *pipeline.Controller, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	if controller.Stop() {
		done := make(chan struct{})
		go func() {
			controller.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopTimeout):
			log.Warn("Run did not stop in time")
		}
	}

	cancel()

	time.Sleep(1 * time.Second)
	log.Info("LinkedIn Agent stopped")
}
