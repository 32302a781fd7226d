package channel

import (
	"net/url"
	"path"

	"chatlink/internal/errors"
	"chatlink/internal/validation"
)

// BuildTarget derives the channel address from the base URL, the chat
// identifier and the credential. The credential rides as a connection-scoped
// query parameter because the channel protocol has no header mechanism; it is
// never embedded in message bodies. A malformed base address is a fatal
// configuration error, surfaced to the caller and never retried.
func BuildTarget(baseURL, chatID, credential string) (string, error) {
	if err := validation.ValidateChatID(chatID); err != nil {
		return "", err
	}
	if baseURL == "" {
		return "", errors.NewConfigError("channel.base_url", "channel base URL is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.NewConfigError("channel.base_url", "malformed channel base URL").WithContext("cause", err.Error())
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.NewConfigError("channel.base_url", "channel base URL must use ws, wss, http or https scheme")
	}
	if u.Host == "" {
		return "", errors.NewConfigError("channel.base_url", "channel base URL has no host")
	}

	u.Path = path.Join(u.Path, "ws", chatID)

	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
