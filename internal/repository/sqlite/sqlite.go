// Package sqlite 基于 modernc.org/sqlite 的镜像存储，默认驱动
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"chatrelay/internal/model"
	"chatrelay/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	assistant_id TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_conv_user_created ON chat_messages (conversation_id, user_id, created_at);
`

// DB SQLite 镜像存储，时间以毫秒时间戳保存
type DB struct {
	db *sql.DB
}

var _ repository.MirrorStore = (*DB)(nil)

// New 打开 dsn 指定的数据库文件
func New(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// modernc 驱动的 pragma 需要 _pragma= 前缀
	db, err := sql.Open("sqlite", dsn+sep+"_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// 单连接，写入串行化
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return &DB{db: db}, nil
}

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate sqlite mirror")
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) UpsertConversation(ctx context.Context, conv *model.Conversation) error {
	stmt := `INSERT INTO conversations (id, user_id, assistant_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`
	_, err := d.db.ExecContext(ctx, stmt,
		conv.ID, conv.UserID, conv.AssistantID, conv.Title, toMillis(conv.CreatedAt), toMillis(conv.UpdatedAt))
	return errors.Wrap(err, "failed to upsert conversation")
}

func (d *DB) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	stmt := `INSERT INTO conversations (id, user_id, assistant_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at
		WHERE conversations.user_id = excluded.user_id`
	res, err := d.db.ExecContext(ctx, stmt,
		conv.ID, conv.UserID, conv.AssistantID, conv.Title, toMillis(conv.CreatedAt), toMillis(conv.UpdatedAt))
	if err != nil {
		return errors.Wrap(err, "failed to insert conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to insert conversation")
	}
	if n == 0 {
		return errors.Wrapf(repository.ErrConflict, "conversation %s", conv.ID)
	}
	return nil
}

func (d *DB) UpdateConversationTitle(ctx context.Context, id, userID, title string, updatedAt time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, toMillis(updatedAt), id, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to update conversation title")
	}
	return res.RowsAffected()
}

func (d *DB) GetConversation(ctx context.Context, id, userID string) (*model.Conversation, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, assistant_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?`,
		id, userID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	return conv, nil
}

func (d *DB) ListConversations(ctx context.Context, find *model.FindConversation) ([]*model.Conversation, error) {
	where, args := []string{"user_id = ?"}, []any{find.UserID}
	if find.AssistantID != "" {
		where, args = append(where, "assistant_id = ?"), append(args, find.AssistantID)
	}
	query := `SELECT id, user_id, assistant_id, title, created_at, updated_at FROM conversations
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_at DESC`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, conv)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate conversations")
}

func (d *DB) DeleteConversation(ctx context.Context, id, userID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete conversation")
	}
	return res.RowsAffected()
}

func (d *DB) InsertMessages(ctx context.Context, msgs ...*model.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (id, conversation_id, role, content, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare message insert")
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.ID, m.ConversationID, m.Role, m.Content, m.UserID, toMillis(m.CreatedAt)); err != nil {
			return errors.Wrapf(err, "failed to insert %s message", m.Role)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit messages")
}

func (d *DB) ListMessages(ctx context.Context, conversationID, userID string) ([]*model.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, user_id, created_at FROM chat_messages
		WHERE conversation_id = ? AND user_id = ? ORDER BY created_at ASC, rowid ASC`,
		conversationID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*model.Message, 0)
	for rows.Next() {
		m := &model.Message{}
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.UserID, &created); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		m.CreatedAt = fromMillis(created)
		list = append(list, m)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate messages")
}

func (d *DB) DeleteMessages(ctx context.Context, conversationID, userID string) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE conversation_id = ? AND user_id = ?`, conversationID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete messages")
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*model.Conversation, error) {
	conv := &model.Conversation{}
	var created, updated int64
	if err := s.Scan(&conv.ID, &conv.UserID, &conv.AssistantID, &conv.Title, &created, &updated); err != nil {
		return nil, err
	}
	conv.CreatedAt = fromMillis(created)
	conv.UpdatedAt = fromMillis(updated)
	return conv, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
