package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User holds what the bot remembers about a Telegram user.
type User struct {
	ID             int64
	Username       string
	Language       string // empty until chosen
	ClientLanguage string // language code reported by the Telegram client
}

// TouchUser records the user's current username and client language,
// keeping any chosen language.
func (s *SQLite) TouchUser(ctx context.Context, id int64, username, clientLanguage string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, client_language, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			client_language = excluded.client_language,
			updated_at = excluded.updated_at`,
		id, username, clientLanguage, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("store: touch user %d: %w", id, err)
	}
	return nil
}

func (s *SQLite) SetLanguage(ctx context.Context, id int64, language string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, language, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			language = excluded.language,
			updated_at = excluded.updated_at`,
		id, language, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("store: set language for %d: %w", id, err)
	}
	return nil
}

// User returns ok=false for a user the bot has never seen.
func (s *SQLite) User(ctx context.Context, id int64) (User, bool, error) {
	var (
		u    User
		lang sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, language, client_language FROM users WHERE user_id = ?`, id).
		Scan(&u.ID, &u.Username, &lang, &u.ClientLanguage)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("store: user %d: %w", id, err)
	}
	u.Language = lang.String
	return u, true, nil
}
