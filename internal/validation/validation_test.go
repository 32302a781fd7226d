package validation

import (
	"strings"
	"testing"

	"chatlink/internal/constants"
	"chatlink/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInbound(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		expectError bool
		errorCode   errors.ErrorCode
	}{
		{
			name:        "valid message",
			payload:     `{"id":"m1","chatId":"42","sender":"alice","content":"hello","timestamp":"2024-03-01T10:00:00Z"}`,
			expectError: false,
		},
		{
			name:        "valid without optional fields",
			payload:     `{"id":"m1","chatId":"42","sender":"alice","content":"hello"}`,
			expectError: false,
		},
		{
			name:        "not a JSON object",
			payload:     `["not","an","object"]`,
			expectError: true,
			errorCode:   errors.ErrCodeInvalidInput,
		},
		{
			name:        "not JSON at all",
			payload:     `hello there`,
			expectError: true,
			errorCode:   errors.ErrCodeInvalidInput,
		},
		{
			name:        "missing id",
			payload:     `{"chatId":"42","sender":"alice","content":"hello"}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
		{
			name:        "missing chatId",
			payload:     `{"id":"m1","sender":"alice","content":"hello"}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
		{
			name:        "missing sender",
			payload:     `{"id":"m1","chatId":"42","content":"hello"}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
		{
			name:        "missing content",
			payload:     `{"id":"m1","chatId":"42","sender":"alice"}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
		{
			name:        "id is not a string",
			payload:     `{"id":7,"chatId":"42","sender":"alice","content":"hello"}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
		{
			name:        "content is not a string",
			payload:     `{"id":"m1","chatId":"42","sender":"alice","content":{"nested":true}}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
		{
			name:        "content over limit rejected not truncated",
			payload:     `{"id":"m1","chatId":"42","sender":"alice","content":"` + strings.Repeat("a", constants.MaxContentLength+1) + `"}`,
			expectError: true,
			errorCode:   errors.ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ValidateInbound([]byte(tt.payload))
			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, msg)
				assert.Equal(t, tt.errorCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, msg)
			assert.Equal(t, "m1", msg.ID)
			assert.Equal(t, "42", msg.ChatID)
			assert.Equal(t, "alice", msg.Sender)
		})
	}
}

func TestValidateInboundSanitizesContent(t *testing.T) {
	payload := `{"id":"m1","chatId":"42","sender":"alice","content":"<script>alert('hi')</script> & \"done\""}`

	msg, err := ValidateInbound([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "&lt;script&gt;alert(&#39;hi&#39;)&lt;/script&gt; &amp; &quot;done&quot;", msg.Content)
	assert.NotContains(t, msg.Content, "<script>")
}

func TestValidateInboundContentAtLimit(t *testing.T) {
	content := strings.Repeat("a", constants.MaxContentLength)
	payload := `{"id":"m1","chatId":"42","sender":"alice","content":"` + content + `"}`

	msg, err := ValidateInbound([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, content, msg.Content)
}

func TestSanitizeContent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text untouched",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "angle brackets",
			input:    "<b>bold</b>",
			expected: "&lt;b&gt;bold&lt;/b&gt;",
		},
		{
			name:     "ampersand not double escaped in one pass",
			input:    "fish & chips",
			expected: "fish &amp; chips",
		},
		{
			name:     "quotes",
			input:    `say "hi" to 'them'`,
			expected: "say &quot;hi&quot; to &#39;them&#39;",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeContent(tt.input))
		})
	}
}

func TestValidateOutbound(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		expectError bool
	}{
		{name: "valid text", text: "hello", expectError: false},
		{name: "empty", text: "", expectError: true},
		{name: "whitespace only", text: "   \t\n", expectError: true},
		{name: "over limit", text: strings.Repeat("x", constants.MaxContentLength+1), expectError: true},
		{name: "at limit", text: strings.Repeat("x", constants.MaxContentLength), expectError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutbound(tt.text)
			if tt.expectError {
				assert.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateChatID(t *testing.T) {
	tests := []struct {
		name        string
		chatID      string
		expectError bool
	}{
		{name: "numeric id", chatID: "42", expectError: false},
		{name: "alphanumeric id", chatID: "room-7_a", expectError: false},
		{name: "empty", chatID: "", expectError: true},
		{name: "path separator", chatID: "42/../admin", expectError: true},
		{name: "query characters", chatID: "42?token=x", expectError: true},
		{name: "too long", chatID: strings.Repeat("9", constants.MaxChatIDLength+1), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatID(tt.chatID)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
