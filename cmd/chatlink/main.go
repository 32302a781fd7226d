package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatlink/internal/config"
	"chatlink/internal/database"
	"chatlink/internal/metrics"
	"chatlink/internal/models"
	"chatlink/internal/queue"
	"chatlink/internal/retry"
	"chatlink/internal/store"
	"chatlink/internal/tracing"
	"chatlink/pkg/channel"
	"chatlink/pkg/history"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatlink %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatlink")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg)

	credential := os.Getenv("CHATLINK_TOKEN")
	if credential == "" {
		return fmt.Errorf("CHATLINK_TOKEN environment variable is required")
	}
	sender := os.Getenv("CHATLINK_SENDER")
	if sender == "" {
		sender = "me"
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Outbound spool is optional; without it queued messages do not survive
	// a restart.
	var outboundQueue *queue.Queue
	if cfg.Database.Path != "" {
		db, err := database.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open outbound spool: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warnf("Failed to close outbound spool: %v", err)
			}
		}()

		outboundQueue = queue.NewWithSpool(db, logger)
		if err := outboundQueue.Restore(cfg.Channel.ChatID); err != nil {
			logger.WithError(err).Warn("Failed to restore spooled outbound messages")
		}
	} else {
		logger.Info("Outbound spool disabled, queued messages are in-memory only")
		outboundQueue = queue.New(logger)
	}

	registry := metrics.NewRegistry()
	inboundStore := store.New(cfg.Channel.StoreCapacity)
	schedule := retry.NewSchedule(cfg.Retry.DelaysSec, cfg.Retry.MaxAttempts)

	manager, err := channel.NewManager(channel.Config{
		BaseURL:           cfg.Channel.BaseURL,
		ChatID:            cfg.Channel.ChatID,
		Credential:        credential,
		Sender:            sender,
		HeartbeatInterval: time.Duration(cfg.Channel.HeartbeatIntervalSec) * time.Second,
	}, channel.NewWebSocketDialer(nil), inboundStore, outboundQueue, schedule, logger)
	if err != nil {
		return fmt.Errorf("failed to create channel manager: %w", err)
	}
	defer manager.Close()

	manager.SetMetrics(registry)
	manager.SetOnStateChange(func(state models.ConnectionState, diag string) {
		entry := logger.WithFields(logrus.Fields{
			"chat_id": cfg.Channel.ChatID,
			"state":   state,
		})
		if diag != "" {
			entry = entry.WithField("diagnostic", diag)
		}
		entry.Info("Connection state changed")
	})
	manager.SetOnCredentialInvalid(func() {
		logger.Error("Credential rejected by server, re-authentication required")
	})

	historyBaseURL := cfg.History.APIBaseURL
	if historyBaseURL == "" {
		historyBaseURL = historyURLFromChannel(cfg.Channel.BaseURL)
	}
	historyClient := history.NewClientWithTimeout(
		historyBaseURL,
		credential,
		time.Duration(cfg.History.TimeoutSec)*time.Second,
		logger,
	)

	manager.Connect()

	server := NewServer(cfg, manager, historyClient, registry, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown error: %v", err)
	}

	manager.Disconnect()
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
		return
	}
	if cfg.LogLevel == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// historyURLFromChannel derives an HTTP history endpoint when none is
// configured, assuming both APIs live on the same host.
func historyURLFromChannel(channelURL string) string {
	switch {
	case strings.HasPrefix(channelURL, "ws://"):
		return "http://" + strings.TrimPrefix(channelURL, "ws://")
	case strings.HasPrefix(channelURL, "wss://"):
		return "https://" + strings.TrimPrefix(channelURL, "wss://")
	default:
		return channelURL
	}
}
