package config

import (
	"encoding/json"
	"fmt"
	"os"

	"chatlink/internal/constants"
	"chatlink/internal/models"
	"chatlink/internal/security"
)

var (
	ErrMissingChannelURL = models.ConfigError{Message: "missing channel base URL"}
	ErrMissingChatID     = models.ConfigError{Message: "missing chat ID"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Channel.BaseURL == "" {
		return ErrMissingChannelURL
	}
	if c.Channel.ChatID == "" {
		return ErrMissingChatID
	}

	if c.Channel.HeartbeatIntervalSec <= 0 {
		c.Channel.HeartbeatIntervalSec = constants.DefaultHeartbeatIntervalSec
	}
	if c.Channel.StoreCapacity <= 0 {
		c.Channel.StoreCapacity = constants.DefaultStoreCapacity
	}

	if len(c.Retry.DelaysSec) == 0 {
		c.Retry.DelaysSec = constants.DefaultBackoffDelaysSec
	}
	for i, d := range c.Retry.DelaysSec {
		if d < 0 {
			return models.ConfigError{Message: fmt.Sprintf("negative backoff delay at index %d", i)}
		}
		if i > 0 && d < c.Retry.DelaysSec[i-1] {
			return models.ConfigError{Message: "backoff delays must be ascending"}
		}
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxReconnectAttempts
	}

	if c.History.FetchLimit <= 0 {
		c.History.FetchLimit = constants.DefaultHistoryFetchLimit
	}
	if c.History.TimeoutSec <= 0 {
		c.History.TimeoutSec = constants.DefaultHistoryTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CHATLINK_CHANNEL_URL"); url != "" {
		c.Channel.BaseURL = url
	}
	if chatID := os.Getenv("CHATLINK_CHAT_ID"); chatID != "" {
		c.Channel.ChatID = chatID
	}
	if url := os.Getenv("CHATLINK_HISTORY_URL"); url != "" {
		c.History.APIBaseURL = url
	}
	if path := os.Getenv("CHATLINK_DB_PATH"); path != "" {
		c.Database.Path = path
	}
}
