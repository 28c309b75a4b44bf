package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/verte-zerg/dayplan/internal/migrate"
	"github.com/verte-zerg/dayplan/internal/model"
)

// RecordPacingAnswer implements migrate.Recorder.
func (s *Store) RecordPacingAnswer(ctx context.Context, userID, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pacing_answers (user_id, answer, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET answer = excluded.answer, updated_at = excluded.updated_at`,
		userID, answer, s.stamp())
	return err
}

// RecordShownCard implements migrate.Recorder.
func (s *Store) RecordShownCard(ctx context.Context, userID string, card model.ShownCard) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shown_cards (user_id, card_id, day_key, shown_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, card_id, day_key) DO UPDATE SET shown_at = excluded.shown_at`,
		userID, card.CardID, card.DayKey, s.stamp())
	return err
}

// ShownCards returns up to limit shown cards, most recent first.
func (s *Store) ShownCards(ctx context.Context, userID string, limit int) ([]model.ShownCard, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT card_id, day_key FROM shown_cards
		 WHERE user_id = ?
		 ORDER BY shown_at DESC, rowid DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var result []model.ShownCard
	for rows.Next() {
		var card model.ShownCard
		if err := rows.Scan(&card.CardID, &card.DayKey); err != nil {
			return nil, err
		}
		result = append(result, card)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PacingAnswer returns the stored answer for a user, if any.
func (s *Store) PacingAnswer(ctx context.Context, userID string) (*string, error) {
	var answer string
	err := s.db.QueryRowContext(ctx,
		`SELECT answer FROM pacing_answers WHERE user_id = ?`, userID).Scan(&answer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// LocalSignals implements migrate.Source over the guest rows.
func (s *Store) LocalSignals(ctx context.Context) (migrate.LocalSignals, error) {
	var signals migrate.LocalSignals
	answer, err := s.PacingAnswer(ctx, model.GuestUserID)
	if err != nil {
		return signals, err
	}
	signals.PacingAnswer = answer

	cards, err := s.ShownCards(ctx, model.GuestUserID, 1)
	if err != nil {
		return signals, err
	}
	if len(cards) > 0 {
		signals.ShownCard = &cards[0]
	}

	records, err := s.PracticeHistory(ctx, model.GuestUserID, 20)
	if err != nil {
		return signals, err
	}
	for _, raw := range records {
		if !raw.Completed {
			continue
		}
		rec := raw.PracticeRecord
		if day, ok := raw.Day.(string); ok {
			rec.DayKey = day
		}
		signals.CompletedRun = &rec
		break
	}
	return signals, nil
}
