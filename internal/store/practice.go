package store

import (
	"context"
	"time"

	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/model"
)

// PracticeHistory returns up to limit raw records for a user, newest day first.
// Day keys are returned as stored so the normalizer can validate them.
func (s *Store) PracticeHistory(ctx context.Context, userID string, limit int) ([]history.RawRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, day_key, cluster, mode, lesson_id, completed, started_at, completed_at, duration_seconds
		 FROM practice_records
		 WHERE user_id = ?
		 ORDER BY day_key DESC, started_at DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var result []history.RawRecord
	for rows.Next() {
		var (
			raw         history.RawRecord
			day         string
			startedAt   string
			completedAt string
		)
		if err := rows.Scan(&raw.UserID, &day, &raw.Cluster, &raw.Mode, &raw.LessonID,
			&raw.Completed, &startedAt, &completedAt, &raw.DurationSeconds); err != nil {
			return nil, err
		}
		raw.Day = day
		raw.StartedAt = parseStamp(startedAt)
		raw.CompletedAt = parseStamp(completedAt)
		result = append(result, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordPracticeStart stores a started session. A session already recorded
// for the same day and lesson is left untouched.
func (s *Store) RecordPracticeStart(ctx context.Context, rec model.PracticeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO practice_records (user_id, day_key, cluster, mode, lesson_id, completed, started_at, completed_at, duration_seconds)
		 VALUES (?, ?, ?, ?, ?, 0, ?, '', 0)
		 ON CONFLICT(user_id, day_key, lesson_id) DO NOTHING`,
		rec.UserID, rec.DayKey, string(rec.Cluster), string(rec.Mode), rec.LessonID, formatStamp(rec.StartedAt))
	return err
}

// RecordPracticeComplete marks a session complete, inserting it if needed.
func (s *Store) RecordPracticeComplete(ctx context.Context, rec model.PracticeRecord) error {
	started := rec.StartedAt
	if started.IsZero() {
		started = rec.CompletedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO practice_records (user_id, day_key, cluster, mode, lesson_id, completed, started_at, completed_at, duration_seconds)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(user_id, day_key, lesson_id) DO UPDATE SET
			completed = 1,
			cluster = excluded.cluster,
			mode = excluded.mode,
			completed_at = excluded.completed_at,
			duration_seconds = excluded.duration_seconds`,
		rec.UserID, rec.DayKey, string(rec.Cluster), string(rec.Mode), rec.LessonID,
		formatStamp(started), formatStamp(rec.CompletedAt), rec.DurationSeconds)
	return err
}

// RecordPractice implements migrate.Recorder.
func (s *Store) RecordPractice(ctx context.Context, userID string, rec model.PracticeRecord) error {
	rec.UserID = userID
	if rec.Completed {
		return s.RecordPracticeComplete(ctx, rec)
	}
	return s.RecordPracticeStart(ctx, rec)
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
