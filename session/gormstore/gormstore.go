// Package gormstore provides a relational core.SessionStore backed by GORM.
// Each message is a row keyed by session id and ordinal, so session logs
// survive restarts and can be inspected with plain SQL.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentrun-io/agentrun/core"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ChatMessage is the persistence model for a single session log entry.
type ChatMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:64;index:idx_session_ordinal,unique"`
	Ordinal   int       `gorm:"index:idx_session_ordinal,unique"`
	MessageID string    `gorm:"size:64"`
	Role      string    `gorm:"size:16;not null"`
	Text      string    `gorm:"type:text"`
	ToolUse   []byte    `gorm:"type:json"`
	CreatedAt time.Time `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
}

// TableName pins the table name independent of GORM pluralization config.
func (ChatMessage) TableName() string { return "chat_messages" }

// Options configure the GORM session store.
type Options struct {
	// MaxMessages caps the number of messages retained per session.
	MaxMessages int
	// TTL is the idle lifetime of a session; renewed on every save.
	TTL time.Duration
}

// Store persists session logs through a gorm.DB handle.
type Store struct {
	db   *gorm.DB
	opts Options
	now  func() time.Time
}

// New creates a session store on top of an existing gorm.DB and migrates the
// chat_messages table.
func New(db *gorm.DB, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		MaxMessages: core.DefaultMaxSessionMessages,
		TTL:         core.DefaultSessionTTL,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := db.AutoMigrate(&ChatMessage{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db, opts: opts, now: time.Now}, nil
}

// NewMySQL creates a session store by opening a MySQL connection with the
// given DSN.
func NewMySQL(dsn string, optFns ...func(o *Options)) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open mysql: %w", err)
	}
	return New(db, optFns...)
}

// Get loads the session log ordered by ordinal. Expired rows are purged
// lazily and yield an empty log.
func (s *Store) Get(ctx context.Context, sessionID string) ([]core.Message, error) {
	now := s.now()
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND expires_at < ?", sessionID, now).
		Delete(&ChatMessage{}).Error; err != nil {
		return nil, fmt.Errorf("gormstore: purge session %s: %w", sessionID, err)
	}

	var rows []ChatMessage
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("ordinal ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: load session %s: %w", sessionID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Renew the idle deadline on read.
	if err := s.db.WithContext(ctx).Model(&ChatMessage{}).
		Where("session_id = ?", sessionID).
		Update("expires_at", now.Add(s.opts.TTL)).Error; err != nil {
		return nil, fmt.Errorf("gormstore: renew session %s: %w", sessionID, err)
	}

	messages := make([]core.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			return nil, fmt.Errorf("gormstore: decode session %s: %w", sessionID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Save replaces the session log atomically: old rows are deleted and the
// truncated snapshot inserted in a single transaction.
func (s *Store) Save(ctx context.Context, sessionID string, messages []core.Message) error {
	truncated := core.TruncateLog(messages, s.opts.MaxMessages)
	expiresAt := s.now().Add(s.opts.TTL)

	rows := make([]ChatMessage, 0, len(truncated))
	for i, msg := range truncated {
		row, err := messageToRow(sessionID, i, msg, expiresAt)
		if err != nil {
			return fmt.Errorf("gormstore: encode session %s: %w", sessionID, err)
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&ChatMessage{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("gormstore: save session %s: %w", sessionID, err)
	}
	return nil
}

// Clear removes all rows for the session. Clearing an unknown session is a
// no-op.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&ChatMessage{}).Error; err != nil {
		return fmt.Errorf("gormstore: clear session %s: %w", sessionID, err)
	}
	return nil
}

func messageToRow(sessionID string, ordinal int, msg core.Message, expiresAt time.Time) (ChatMessage, error) {
	row := ChatMessage{
		SessionID: sessionID,
		Ordinal:   ordinal,
		MessageID: msg.ID,
		Role:      string(msg.Role),
		Text:      msg.Text,
		CreatedAt: msg.Timestamp,
		ExpiresAt: expiresAt,
	}
	if msg.ToolUse != nil {
		raw, err := json.Marshal(msg.ToolUse)
		if err != nil {
			return ChatMessage{}, err
		}
		row.ToolUse = raw
	}
	return row, nil
}

func rowToMessage(row ChatMessage) (core.Message, error) {
	msg := core.Message{
		ID:        row.MessageID,
		Role:      core.Role(row.Role),
		Text:      row.Text,
		Timestamp: row.CreatedAt,
	}
	if len(row.ToolUse) > 0 {
		var tu core.ToolUse
		if err := json.Unmarshal(row.ToolUse, &tu); err != nil {
			return core.Message{}, err
		}
		msg.ToolUse = &tu
	}
	return msg, nil
}

var _ core.SessionStore = (*Store)(nil)
