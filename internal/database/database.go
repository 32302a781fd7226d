// Package database is the durable spool for outbound messages composed while
// disconnected. The remote backend remains the store of record for delivered
// messages; the spool only holds entries not yet transmitted, so they survive
// a process restart.
package database

import (
	"database/sql"
	"fmt"
	"os"

	apperrors "chatlink/internal/errors"
	"chatlink/internal/models"
	"chatlink/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

const spoolSchema = `
CREATE TABLE IF NOT EXISTS outbound_spool (
	message_id TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL,
	sender     TEXT NOT NULL,
	content    TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_outbound_spool_chat ON outbound_spool(chat_id, created_at);
`

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(spoolSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveOutbound spools a not-yet-transmitted message. Saving the same message
// ID twice is a no-op, so a retried enqueue cannot duplicate an entry.
func (d *Database) SaveOutbound(msg models.Message) error {
	content, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT OR IGNORE INTO outbound_spool (message_id, chat_id, sender, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.Sender, content, msg.Timestamp,
	)
	if err != nil {
		return apperrors.NewDatabaseError("save", err)
	}
	return nil
}

// DeleteOutbound removes a spooled message once it has been transmitted.
func (d *Database) DeleteOutbound(id string) error {
	if _, err := d.db.Exec(`DELETE FROM outbound_spool WHERE message_id = ?`, id); err != nil {
		return apperrors.NewDatabaseError("delete", err)
	}
	return nil
}

// PendingOutbound returns spooled messages for a chat in enqueue order.
func (d *Database) PendingOutbound(chatID string) ([]models.Message, error) {
	rows, err := d.db.Query(
		`SELECT message_id, chat_id, sender, content, timestamp FROM outbound_spool WHERE chat_id = ? ORDER BY created_at, message_id`,
		chatID,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan outbound message: %w", err)
		}
		content, err := d.encryptor.DecryptIfEnabled(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt content: %w", err)
		}
		msg.Content = content
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbound spool: %w", err)
	}

	return out, nil
}
