// Package course exposes the slice of course data the attendance protocol
// needs: ownership lookups and the enrollment set. Course CRUD lives in a
// separate administrative service.
package course

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"rollcall/internal/apperr"
)

// Course is a reference to a taught course and the lecturer who owns it.
type Course struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	LecturerID string    `json:"lecturerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository is the course surface the protocol depends on.
type Repository interface {
	Get(ctx context.Context, id string) (*Course, error)
	// Enroll adds a student to the course's enrollment set. It is an
	// idempotent set-add; enrolling an already-enrolled student is a no-op.
	Enroll(ctx context.Context, courseID, studentID string) error
	Students(ctx context.Context, courseID string) ([]string, error)
}

// PostgresRepository persists courses and enrollments in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns a course by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, lecturer_id, created_at
		FROM courses WHERE id = $1
	`, id)
	var c Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "course not found")
		}
		return nil, err
	}
	return &c, nil
}

// Enroll upserts the (course, student) membership row.
func (r *PostgresRepository) Enroll(ctx context.Context, courseID, studentID string) error {
	studentID = strings.ToUpper(strings.TrimSpace(studentID))
	if studentID == "" {
		return apperr.New(apperr.Validation, "student id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_enrollments (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	return err
}

// Students returns the course's enrollment set in insertion order.
func (r *PostgresRepository) Students(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM course_enrollments
		WHERE course_id = $1
		ORDER BY added_at
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}
