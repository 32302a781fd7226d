// Package history fetches the persisted message history for a chat from the
// backend REST API. History retrieval is a separate concern from the live
// channel; callers merge the two views through the feed reconciler.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatlink/internal/constants"
	apperrors "chatlink/internal/errors"
	"chatlink/internal/models"
	"chatlink/internal/tracing"
	"chatlink/internal/validation"
	"chatlink/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Client retrieves persisted messages for a chat, newest page first as the
// backend returns them.
type Client interface {
	FetchMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
}

// HTTPClient is the production Client against the backend REST API.
type HTTPClient struct {
	baseURL    string
	credential string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *logrus.Logger
}

// NewClient creates a history client with the default request timeout. The
// credential is presented as a bearer token on every request.
func NewClient(baseURL, credential string, logger *logrus.Logger) *HTTPClient {
	return NewClientWithTimeout(baseURL, credential, constants.DefaultHistoryTimeoutSec*time.Second, logger)
}

// NewClientWithTimeout creates a history client with an explicit request
// timeout.
func NewClientWithTimeout(baseURL, credential string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if timeout <= 0 {
		timeout = constants.DefaultHistoryTimeoutSec * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.New("history-api", 3, 30*time.Second, logger),
		logger:     logger,
	}
}

// FetchMessages retrieves up to limit persisted messages for the chat. A
// non-positive limit uses the default page size. Calls run behind a circuit
// breaker so a failing backend is left alone during its cooldown.
func (c *HTTPClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	if err := validation.ValidateChatID(chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultHistoryFetchLimit
	}

	ctx, span := tracing.StartSpan(ctx, "history.fetch",
		attribute.String("chat.id", chatID),
		attribute.Int("fetch.limit", limit))
	defer span.End()

	var messages []models.Message
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var ferr error
		messages, ferr = c.fetch(ctx, chatID, limit)
		return ferr
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return messages, nil
}

func (c *HTTPClient) fetch(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	endpoint, err := c.buildURL(chatID, limit)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to build history request")
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeHistoryAPI, "history request failed").
			WithUserMessage("Could not load message history")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.NewAuthError(fmt.Sprintf("history API returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "chat not found").
			WithContext("chat_id", chatID).
			WithUserMessage("This chat is not available")
	default:
		return nil, apperrors.NewHistoryAPIError(endpoint, resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var raw []models.Message
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeHistoryAPI, "failed to decode history response").
			WithUserMessage("Could not load message history")
	}

	// Entries without an identifier cannot be deduplicated; drop them rather
	// than corrupting the merged feed.
	messages := raw[:0]
	dropped := 0
	for _, msg := range raw {
		if msg.ID == "" {
			dropped++
			continue
		}
		messages = append(messages, msg)
	}
	if dropped > 0 {
		c.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"dropped": dropped,
		}).Warn("Dropped history entries without message IDs")
	}

	return messages, nil
}

func (c *HTTPClient) buildURL(chatID string, limit int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", apperrors.NewConfigError("history.base_url", "malformed history base URL")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/messages"

	q := u.Query()
	q.Set("chat_id", chatID)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
