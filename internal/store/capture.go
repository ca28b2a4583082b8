package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Capture modes.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Capture is one journal entry for a frozen frame.
type Capture struct {
	ID         int64
	AttemptID  string
	Mode       string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Attempt summarizes a capture attempt.
type Attempt struct {
	ID        string
	Captures  int
	StartedAt time.Time
}

// CaptureRepository records captures per attempt.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

// Create inserts a capture and creates its attempt row if needed,
// bumping the attempt's capture count in the same transaction.
func (r *CaptureRepository) Create(ctx context.Context, c *Capture) error {
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO attempts (id, started_at) VALUES (?, ?)`,
		c.AttemptID, c.CapturedAt,
	); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO captures (attempt_id, mode, width, height, captured_at) VALUES (?, ?, ?, ?, ?)`,
		c.AttemptID, c.Mode, c.Width, c.Height, c.CapturedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET captures = captures + 1 WHERE id = ?`, c.AttemptID,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	c.ID, err = result.LastInsertId()
	return err
}

// ListByAttempt returns the captures of an attempt in capture order.
func (r *CaptureRepository) ListByAttempt(ctx context.Context, attemptID string) ([]*Capture, error) {
	return r.query(ctx,
		`SELECT id, attempt_id, mode, width, height, captured_at
		 FROM captures WHERE attempt_id = ? ORDER BY id`,
		attemptID,
	)
}

// Recent returns up to limit captures, newest first.
func (r *CaptureRepository) Recent(ctx context.Context, limit int) ([]*Capture, error) {
	return r.query(ctx,
		`SELECT id, attempt_id, mode, width, height, captured_at
		 FROM captures ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

// GetAttempt retrieves an attempt by its ID.
func (r *CaptureRepository) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	a := &Attempt{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, captures, started_at FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Captures, &a.StartedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// DeleteAttempt removes an attempt and, through the foreign key, its captures.
func (r *CaptureRepository) DeleteAttempt(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attempts WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *CaptureRepository) query(ctx context.Context, q string, args ...any) ([]*Capture, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		if err := rows.Scan(&c.ID, &c.AttemptID, &c.Mode, &c.Width, &c.Height, &c.CapturedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return captures, nil
}
