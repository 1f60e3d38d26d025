package manualreq

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/apperr"
)

const msgAlreadyRequested = "request already submitted for this session"

// Repository persists manual requests.
type Repository interface {
	// Insert writes a new pending request. The store enforces at most one
	// pending request per (session, student); a violation comes back Conflict.
	Insert(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	FindPending(ctx context.Context, sessionID, studentID string) (*Request, error)
	ListByLecturer(ctx context.Context, lecturerID, status string) ([]Request, error)
	// Review transitions pending -> approved|rejected as a compare-and-set;
	// false means the request was no longer pending.
	Review(ctx context.Context, id, status, reviewer, note string, at time.Time) (bool, error)
}

// PostgresRepository persists manual requests in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = `id, student_id, session_id, course_id, reason, status,
	reviewed_by, reviewed_at, review_note, created_at`

// Insert writes a new request.
func (r *PostgresRepository) Insert(ctx context.Context, req *Request) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO manual_requests (id, student_id, session_id, course_id, reason, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, req.ID, req.StudentID, req.SessionID, req.CourseID, req.Reason, req.Status)
	if err := row.Scan(&req.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.New(apperr.Conflict, msgAlreadyRequested)
		}
		return err
	}
	return nil
}

// Get returns a request by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM manual_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "request not found")
		}
		return nil, err
	}
	return req, nil
}

// FindPending returns the open request for (session, student), or nil.
func (r *PostgresRepository) FindPending(ctx context.Context, sessionID, studentID string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM manual_requests
		WHERE session_id = $1 AND student_id = $2 AND status = $3
	`, sessionID, studentID, StatusPending)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// ListByLecturer returns requests against the lecturer's sessions, newest
// first, optionally filtered by status.
func (r *PostgresRepository) ListByLecturer(ctx context.Context, lecturerID, status string) ([]Request, error) {
	query := `
		SELECT mr.id, mr.student_id, mr.session_id, mr.course_id, mr.reason, mr.status,
			mr.reviewed_by, mr.reviewed_at, mr.review_note, mr.created_at
		FROM manual_requests mr
		JOIN sessions s ON s.id = mr.session_id
		WHERE s.lecturer_id = $1`
	args := []any{lecturerID}
	if status != "" {
		query += ` AND mr.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY mr.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *req)
	}
	return res, rows.Err()
}

// Review performs the pending -> terminal transition.
func (r *PostgresRepository) Review(ctx context.Context, id, status, reviewer, note string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE manual_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_note = $5
		WHERE id = $1 AND status = $6
	`, id, status, reviewer, at, note, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	var reviewedBy, note sql.NullString
	if err := row.Scan(&req.ID, &req.StudentID, &req.SessionID, &req.CourseID, &req.Reason,
		&req.Status, &reviewedBy, &req.ReviewedAt, &note, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.ReviewedBy = reviewedBy.String
	req.ReviewNote = note.String
	return &req, nil
}
