package constants

// Message limits
const (
	MaxContentLength   = 4000
	MaxMessageIDLength = 255
	MaxChatIDLength    = 64
)

// Default channel configuration values
const (
	DefaultHeartbeatIntervalSec = 30
	DefaultStoreCapacity        = 500
	DefaultMaxReconnectAttempts = 10
)

// DefaultBackoffDelaysSec is the fixed ascending reconnect schedule.
// The last value repeats once the attempt counter runs past the end.
var DefaultBackoffDelaysSec = []int{1, 2, 5, 10, 30}

// Server-signaled close codes that must not be retried
const (
	CloseCodeInvalidChat  = 4000
	CloseCodeAuthRejected = 4001
	CloseCodeServerError  = 4002
	CloseCodeRateLimited  = 4003
)

// Default history retrieval values
const (
	DefaultHistoryFetchLimit = 100
	DefaultHistoryTimeoutSec = 30
)

// Default timeout values
const (
	DefaultDialTimeoutSec        = 15
	DefaultWriteTimeoutSec       = 10
	DefaultGracefulShutdownSec   = 30
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
)

// Encryption salt for the outbound spool key derivation
const (
	EncryptionSalt = "chatlink-spool-salt-v1"
)
