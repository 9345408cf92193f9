package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type User struct {
	UserID    int64
	Username  string
	CreatedAt time.Time
}

// Chat is a channel or group registered by forwarding one of its posts.
type Chat struct {
	ChatID    int64
	Title     string
	Username  string
	AddedBy   int64
	CreatedAt time.Time
}

type UserDAO struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserDAO(db *sql.DB) *UserDAO {
	return &UserDAO{db: db, now: time.Now}
}

// GetUser returns nil, nil when the user is unknown.
func (d *UserDAO) GetUser(ctx context.Context, userID int64) (*User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT user_id, username, ts FROM users WHERE user_id = $1 LIMIT 1`, userID)

	var (
		u        User
		username sql.NullString
	)
	if err := row.Scan(&u.UserID, &username, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	u.Username = username.String
	return &u, nil
}

func (d *UserDAO) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = d.now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, ts) VALUES ($1, $2, $3)`,
		u.UserID, u.Username, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create user %d: %w", u.UserID, err)
	}
	return nil
}

type ChatDAO struct {
	db  *sql.DB
	now func() time.Time
}

func NewChatDAO(db *sql.DB) *ChatDAO {
	return &ChatDAO{db: db, now: time.Now}
}

// GetChat returns nil, nil when the chat is not registered.
func (d *ChatDAO) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT chat_id, title, username, added_by, ts FROM chats WHERE chat_id = $1 LIMIT 1`, chatID)

	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat %d: %w", chatID, err)
	}
	return c, nil
}

// ListChats returns every registered chat once, oldest registration first.
func (d *ChatDAO) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT chat_id, title, username, added_by, ts FROM chats ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var (
		chats []Chat
		seen  = make(map[int64]struct{})
	)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		if _, dup := seen[c.ChatID]; dup {
			continue
		}
		seen[c.ChatID] = struct{}{}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (d *ChatDAO) CreateChat(ctx context.Context, c Chat) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = d.now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, title, username, added_by, ts) VALUES ($1, $2, $3, $4, $5)`,
		c.ChatID, c.Title, c.Username, c.AddedBy, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create chat %d: %w", c.ChatID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (*Chat, error) {
	var (
		c               Chat
		title, username sql.NullString
		addedBy         sql.NullInt64
	)
	if err := s.Scan(&c.ChatID, &title, &username, &addedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Title = title.String
	c.Username = username.String
	c.AddedBy = addedBy.Int64
	return &c, nil
}
