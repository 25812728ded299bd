package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"telegram-store-bot/notify"
)

// SavePrompt remembers that messageID in chatID asked for p.
func (s *SQLite) SavePrompt(ctx context.Context, chatID int64, messageID int, p notify.Prompt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (chat_id, message_id, kind, target_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET
			kind = excluded.kind, target_id = excluded.target_id`,
		chatID, messageID, string(p.Kind), p.TargetID, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("store: save prompt %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// Prompt looks up the prompt sent as messageID in chatID.
func (s *SQLite) Prompt(ctx context.Context, chatID int64, messageID int) (notify.Prompt, bool, error) {
	var (
		p    notify.Prompt
		kind string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, target_id FROM prompts WHERE chat_id = ? AND message_id = ?`, chatID, messageID).
		Scan(&kind, &p.TargetID)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Prompt{}, false, nil
	}
	if err != nil {
		return notify.Prompt{}, false, fmt.Errorf("store: prompt %d/%d: %w", chatID, messageID, err)
	}
	p.Kind = notify.PromptKind(kind)
	return p, true, nil
}
