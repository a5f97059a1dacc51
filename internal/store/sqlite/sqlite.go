package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/store"
)

// Schema is the cache layout. It is applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS cached_messages (
	conversation_id  TEXT    NOT NULL,
	position         INTEGER NOT NULL,
	local_id         TEXT    NOT NULL,
	server_id        TEXT    NOT NULL DEFAULT '',
	sender_id        TEXT    NOT NULL DEFAULT '',
	sender_label     TEXT    NOT NULL DEFAULT '',
	direction        TEXT    NOT NULL,
	kind             TEXT    NOT NULL,
	content          TEXT    NOT NULL DEFAULT '',
	status           TEXT    NOT NULL,
	fail_reason      TEXT    NOT NULL DEFAULT '',
	file_path        TEXT,
	file_name        TEXT,
	file_size        INTEGER,
	reply_to_id      TEXT,
	reply_sender     TEXT,
	reply_preview    TEXT,
	created_client   INTEGER NOT NULL DEFAULT 0,
	created_server   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (conversation_id, position)
);
`

// SQLiteStore implements store.TimelineCache for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the cache at dbPath and applies the schema.
// ":memory:" gives a throwaway cache.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup instead of the default
// schema. Useful for tests that need a different layout.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: SQLite serializes writers anyway and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMessages replaces the cached timeline in one transaction.
func (s *SQLiteStore) SaveMessages(ctx context.Context, conversationID string, msgs []core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cached_messages (
			conversation_id, position, local_id, server_id, sender_id, sender_label,
			direction, kind, content, status, fail_reason,
			file_path, file_name, file_size,
			reply_to_id, reply_sender, reply_preview,
			created_client, created_server
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		var (
			filePath, fileName                 sql.NullString
			fileSize                           sql.NullInt64
			replyID, replySender, replyPreview sql.NullString
		)
		if a := m.Attachment; a != nil {
			filePath = sql.NullString{String: a.Path, Valid: true}
			fileName = sql.NullString{String: a.Name, Valid: true}
			fileSize = sql.NullInt64{Int64: a.SizeBytes, Valid: true}
		}
		if r := m.ReplyTo; r != nil {
			replyID = sql.NullString{String: r.TargetID, Valid: true}
			replySender = sql.NullString{String: r.SenderLabel, Valid: true}
			replyPreview = sql.NullString{String: r.PreviewText, Valid: true}
		}
		var createdClient int64
		if !m.CreatedAtClient.IsZero() {
			createdClient = m.CreatedAtClient.UnixMilli()
		}

		_, err := stmt.ExecContext(ctx,
			conversationID, i, m.LocalID, m.ServerID, m.SenderID, m.SenderLabel,
			m.Direction.String(), string(m.Kind), m.Content, m.Status.String(), m.FailReason,
			filePath, fileName, fileSize,
			replyID, replySender, replyPreview,
			createdClient, m.CreatedAtServer,
		)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadMessages returns the cached timeline in saved order.
func (s *SQLiteStore) LoadMessages(ctx context.Context, conversationID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, server_id, sender_id, sender_label, direction, kind, content,
		       status, fail_reason, file_path, file_name, file_size,
		       reply_to_id, reply_sender, reply_preview, created_client, created_server
		FROM cached_messages
		WHERE conversation_id = ?
		ORDER BY position
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var (
			m                                  core.Message
			direction, kind, status            string
			filePath, fileName                 sql.NullString
			fileSize                           sql.NullInt64
			replyID, replySender, replyPreview sql.NullString
			createdClient                      int64
		)
		if err := rows.Scan(
			&m.LocalID, &m.ServerID, &m.SenderID, &m.SenderLabel, &direction, &kind, &m.Content,
			&status, &m.FailReason, &filePath, &fileName, &fileSize,
			&replyID, &replySender, &replyPreview, &createdClient, &m.CreatedAtServer,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.ConversationID = conversationID
		m.Kind = core.Kind(kind)
		if direction == core.DirectionOutgoing.String() {
			m.Direction = core.DirectionOutgoing
		}
		if st, ok := core.ParseStatus(status); ok {
			m.Status = st
		}
		if filePath.Valid {
			m.Attachment = &core.Attachment{Path: filePath.String, Name: fileName.String, SizeBytes: fileSize.Int64}
		}
		if replyID.Valid {
			m.ReplyTo = &core.ReplyTo{TargetID: replyID.String, SenderLabel: replySender.String, PreviewText: replyPreview.String}
		}
		if createdClient > 0 {
			m.CreatedAtClient = time.UnixMilli(createdClient)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// Purge drops every cached conversation.
func (s *SQLiteStore) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_messages`); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

var _ store.TimelineCache = (*SQLiteStore)(nil)
