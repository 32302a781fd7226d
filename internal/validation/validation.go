package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatlink/internal/constants"
	"chatlink/internal/errors"
	"chatlink/internal/models"
)

// htmlEscaper neutralizes the five HTML-significant characters. The replacer
// substitutes all patterns in a single pass, so already-escaped entities are
// not double-escaped within one call.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// SanitizeContent neutralizes HTML-significant characters in message content.
// Applied unconditionally to every accepted message before storage.
func SanitizeContent(content string) string {
	return htmlEscaper.Replace(content)
}

// ValidateInbound checks a decoded inbound payload and returns the accepted
// message, sanitized and ready for storage. The payload must be a JSON object
// with id, chatId, sender and content present as strings, and content within
// the length limit. Oversized content is rejected, never truncated.
func ValidateInbound(raw []byte) (*models.Message, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "inbound payload is not a JSON object")
	}

	id, err := requireString(payload, "id")
	if err != nil {
		return nil, err
	}
	chatID, err := requireString(payload, "chatId")
	if err != nil {
		return nil, err
	}
	sender, err := requireString(payload, "sender")
	if err != nil {
		return nil, err
	}
	content, err := requireString(payload, "content")
	if err != nil {
		return nil, err
	}

	if len(id) > constants.MaxMessageIDLength {
		return nil, errors.NewValidationError("id",
			fmt.Sprintf("message ID too long (max %d characters)", constants.MaxMessageIDLength))
	}
	if len(content) > constants.MaxContentLength {
		return nil, errors.NewValidationError("content",
			fmt.Sprintf("content too long (max %d characters)", constants.MaxContentLength))
	}

	msg := &models.Message{
		ID:      id,
		ChatID:  chatID,
		Sender:  sender,
		Content: SanitizeContent(content),
	}

	// Optional fields; absence or wrong type is not a rejection
	if ts, ok := optionalString(payload, "timestamp"); ok {
		msg.Timestamp = ts
	}
	if ct, ok := optionalString(payload, "content_type"); ok {
		msg.ContentType = ct
	}

	return msg, nil
}

// ValidateOutbound checks caller-composed text before it enters the outbound
// queue. Rejections are returned to the caller, never silently dropped.
func ValidateOutbound(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message content cannot be empty")
	}
	if len(text) > constants.MaxContentLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message content too long (max %d characters)", constants.MaxContentLength))
	}
	return nil
}

// ValidateChatID checks the caller-supplied chat identifier used to build the
// channel target and history queries.
func ValidateChatID(chatID string) error {
	if chatID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "chat ID cannot be empty")
	}
	if len(chatID) > constants.MaxChatIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("chat ID too long (max %d characters)", constants.MaxChatIDLength))
	}
	for _, char := range chatID {
		if char == '/' || char == '?' || char == '#' || char == '%' {
			return errors.New(errors.ErrCodeInvalidInput, "chat ID contains invalid characters")
		}
	}
	return nil
}

func requireString(payload map[string]json.RawMessage, field string) (string, error) {
	raw, ok := payload[field]
	if !ok {
		return "", errors.NewValidationError(field, "field is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.NewValidationError(field, "field must be a string")
	}
	return s, nil
}

func optionalString(payload map[string]json.RawMessage, field string) (string, bool) {
	raw, ok := payload[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
