package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rollcall/internal/apperr"
)

// Repository persists sessions.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListByLecturer(ctx context.Context, lecturerID, status string) ([]Session, error)
	ListCompletedByCourse(ctx context.Context, courseID string, limit int) ([]Session, error)
	// SetStatus transitions an active session to the given terminal status.
	// It reports false when the session was no longer active, so concurrent
	// transitions collapse to a single winner.
	SetStatus(ctx context.Context, id, status string, endedAt *time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	CountCompletedByCourse(ctx context.Context, courseID string) (int, error)
}

// PostgresRepository persists sessions in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, course_id, name, session_date, time_of_day, location, lecturer_id,
	qr_code, status, duration_min, started_at, expires_at, ended_at, created_at`

// Insert writes a new session.
func (r *PostgresRepository) Insert(ctx context.Context, s *Session) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, course_id, name, session_date, time_of_day, location,
			lecturer_id, qr_code, status, duration_min, started_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`, s.ID, s.CourseID, s.Name, s.Date, s.TimeOfDay, nullable(s.Location),
		s.LecturerID, nullable(s.QRCode), s.Status, s.DurationMin, s.StartedAt, s.ExpiresAt)
	return row.Scan(&s.CreatedAt)
}

// Get returns a session by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "session not found")
		}
		return nil, err
	}
	return s, nil
}

// ListByLecturer returns the lecturer's sessions, newest first, optionally
// filtered by status.
func (r *PostgresRepository) ListByLecturer(ctx context.Context, lecturerID, status string) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE lecturer_id = $1`
	args := []any{lecturerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, args...)
}

// ListCompletedByCourse returns recent completed sessions for a course.
func (r *PostgresRepository) ListCompletedByCourse(ctx context.Context, courseID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE course_id = $1 AND status = $2
		ORDER BY session_date DESC
		LIMIT $3
	`, courseID, StatusCompleted, limit)
}

// SetStatus performs the active -> terminal transition as a single
// compare-and-set.
func (r *PostgresRepository) SetStatus(ctx context.Context, id, status string, endedAt *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2, ended_at = COALESCE($3, ended_at)
		WHERE id = $1 AND status = $4
	`, id, status, endedAt, StatusActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes a session; dependent attendances and manual requests go with
// it via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountCompletedByCourse returns how many of the course's sessions completed,
// the denominator for per-student attendance percentages.
func (r *PostgresRepository) CountCompletedByCourse(ctx context.Context, courseID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE course_id = $1 AND status = $2
	`, courseID, StatusCompleted).Scan(&n)
	return n, err
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var location, qrCode sql.NullString
	if err := row.Scan(&s.ID, &s.CourseID, &s.Name, &s.Date, &s.TimeOfDay, &location,
		&s.LecturerID, &qrCode, &s.Status, &s.DurationMin, &s.StartedAt, &s.ExpiresAt,
		&s.EndedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Location = location.String
	s.QRCode = qrCode.String
	return &s, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
