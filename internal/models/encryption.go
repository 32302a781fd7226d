package models

// Encryption parameters for the outbound spool (AES-256-GCM, PBKDF2 key derivation)
const (
	KeySize    = 32     // AES-256
	NonceSize  = 12     // GCM standard nonce size
	Iterations = 100000 // PBKDF2 iterations
)
