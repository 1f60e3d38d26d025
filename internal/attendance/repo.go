package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/apperr"
)

// Conflict messages surfaced when the storage-level dedup constraints fire.
const (
	msgAlreadyMarked = "attendance already marked for this session"
	msgDeviceUsed    = "this device has already marked attendance for this session"
)

// Filter narrows record listings.
type Filter struct {
	CourseID  string
	SessionID string
	// Date restricts to records marked within that calendar day (UTC).
	Date *time.Time
}

// Repository persists attendance records.
type Repository interface {
	// Insert writes a record. Uniqueness per (session, student) and per
	// (session, ip) is enforced by the store itself; violations come back as
	// Conflict errors regardless of what any pre-check observed.
	Insert(ctx context.Context, a *Attendance) error
	FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*Attendance, error)
	FindBySessionIP(ctx context.Context, sessionID, ip string) (*Attendance, error)
	List(ctx context.Context, f Filter) ([]Attendance, error)
	ListBySession(ctx context.Context, sessionID string) ([]Attendance, error)
}

// PostgresRepository persists attendance records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const attendanceColumns = `id, session_id, course_id, student_id, status, method,
	marked_at, ip_address, device_info, created_at`

// Insert writes a new record, translating unique-index violations into the
// protocol's Conflict errors.
func (r *PostgresRepository) Insert(ctx context.Context, a *Attendance) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendances (id, session_id, course_id, student_id, status, method,
			marked_at, ip_address, device_info)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, a.ID, a.SessionID, a.CourseID, a.StudentID, a.Status, a.Method,
		a.MarkedAt, nullable(a.IPAddress), nullable(a.DeviceInfo))
	if err := row.Scan(&a.CreatedAt); err != nil {
		return translateUnique(err)
	}
	return nil
}

func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "uq_attendances_session_ip":
			return apperr.New(apperr.Conflict, msgDeviceUsed)
		default:
			return apperr.New(apperr.Conflict, msgAlreadyMarked)
		}
	}
	return err
}

// FindBySessionStudent returns the record for (session, student), or nil when
// none exists.
func (r *PostgresRepository) FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*Attendance, error) {
	return r.findOne(ctx, `
		SELECT `+attendanceColumns+` FROM attendances
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
}

// FindBySessionIP returns the record for (session, origin address), or nil.
func (r *PostgresRepository) FindBySessionIP(ctx context.Context, sessionID, ip string) (*Attendance, error) {
	return r.findOne(ctx, `
		SELECT `+attendanceColumns+` FROM attendances
		WHERE session_id = $1 AND ip_address = $2
	`, sessionID, ip)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// List returns records matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendances`
	args := []any{}
	clauses := []string{}
	if f.CourseID != "" {
		clauses = append(clauses, "course_id = $"+itoa(len(args)+1))
		args = append(args, f.CourseID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id = $"+itoa(len(args)+1))
		args = append(args, f.SessionID)
	}
	if f.Date != nil {
		day := f.Date.UTC().Truncate(24 * time.Hour)
		clauses = append(clauses, "marked_at >= $"+itoa(len(args)+1))
		args = append(args, day)
		clauses = append(clauses, "marked_at < $"+itoa(len(args)+1))
		args = append(args, day.Add(24*time.Hour))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY marked_at DESC"
	return r.list(ctx, query, args...)
}

// ListBySession returns a session's records in check-in order. This ordered
// projection stands in for the session's attendance-reference list.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]Attendance, error) {
	return r.list(ctx, `
		SELECT `+attendanceColumns+` FROM attendances
		WHERE session_id = $1
		ORDER BY marked_at
	`, sessionID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Attendance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (*Attendance, error) {
	var a Attendance
	var ip, device sql.NullString
	if err := row.Scan(&a.ID, &a.SessionID, &a.CourseID, &a.StudentID, &a.Status,
		&a.Method, &a.MarkedAt, &ip, &device, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.IPAddress = ip.String
	a.DeviceInfo = device.String
	return &a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
