package attendance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/course"
	"rollcall/internal/metrics"
	"rollcall/internal/session"
)

// SessionDirectory is the slice of the session lifecycle the recorder needs.
type SessionDirectory interface {
	GetActive(ctx context.Context, id string) (*session.Session, error)
	CompletedCount(ctx context.Context, courseID string) (int, error)
}

// TokenValidator checks a rotating proof token against a session.
type TokenValidator interface {
	Validate(sessionID, token string, now time.Time) bool
}

// Service is the attendance recorder: it validates a check-in against session
// state and proof token, enforces dedup, auto-enrolls, and persists the fact.
type Service struct {
	repo     Repository
	sessions SessionDirectory
	courses  course.Repository
	tokens   TokenValidator
	clk      clock.Clock
}

// NewService creates the recorder.
func NewService(repo Repository, sessions SessionDirectory, courses course.Repository, tokens TokenValidator, clk clock.Clock) *Service {
	return &Service{repo: repo, sessions: sessions, courses: courses, tokens: tokens, clk: clk}
}

// MarkInput is a direct (qr-path) check-in submission.
type MarkInput struct {
	SessionID  string
	StudentID  string
	Token      string
	IPAddress  string
	DeviceInfo string
}

// Mark records a direct check-in. Validation short-circuits in a fixed order:
// session active, token, student dedup, device dedup. The dedup pre-checks
// give deterministic errors but the unique indexes are what make concurrent
// duplicates impossible.
func (s *Service) Mark(ctx context.Context, in MarkInput) (*Attendance, error) {
	in.StudentID = normalizeStudent(in.StudentID)
	if in.SessionID == "" || in.StudentID == "" {
		return nil, apperr.New(apperr.Validation, "session and student are required")
	}

	sess, err := s.sessions.GetActive(ctx, in.SessionID)
	if err != nil {
		metrics.Marks.WithLabelValues(MethodQR, "not_active").Inc()
		return nil, err
	}

	if in.Token != "" {
		if !s.tokens.Validate(sess.ID, in.Token, s.clk.Now()) {
			metrics.TokenValidations.WithLabelValues("invalid").Inc()
			metrics.Marks.WithLabelValues(MethodQR, "invalid_token").Inc()
			return nil, apperr.New(apperr.InvalidToken, "invalid or expired token")
		}
		metrics.TokenValidations.WithLabelValues("valid").Inc()
	}

	if in.IPAddress != "" {
		existing, err := s.repo.FindBySessionIP(ctx, sess.ID, in.IPAddress)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			metrics.Marks.WithLabelValues(MethodQR, "conflict").Inc()
			return nil, apperr.New(apperr.Conflict, msgDeviceUsed)
		}
	}

	a, err := s.insert(ctx, sess.ID, sess.CourseID, in.StudentID, MethodQR, in.IPAddress, in.DeviceInfo)
	if err != nil {
		if apperr.IsKind(err, apperr.Conflict) {
			metrics.Marks.WithLabelValues(MethodQR, "conflict").Inc()
		}
		return nil, err
	}
	metrics.Marks.WithLabelValues(MethodQR, "success").Inc()
	return a, nil
}

// RecordManual performs the recorder's core insert for the manual-approval
// path: no token, no session-active requirement. A concurrent direct check-in
// surfaces as Conflict to the caller.
func (s *Service) RecordManual(ctx context.Context, sessionID, courseID, studentID string) (*Attendance, error) {
	studentID = normalizeStudent(studentID)
	if sessionID == "" || courseID == "" || studentID == "" {
		return nil, apperr.New(apperr.Validation, "session, course and student are required")
	}
	a, err := s.insert(ctx, sessionID, courseID, studentID, MethodManual, "", "")
	if err != nil {
		if apperr.IsKind(err, apperr.Conflict) {
			metrics.Marks.WithLabelValues(MethodManual, "conflict").Inc()
		}
		return nil, err
	}
	metrics.Marks.WithLabelValues(MethodManual, "success").Inc()
	return a, nil
}

// insert runs the shared tail of both recording paths: student dedup
// pre-check, best-effort auto-enrollment, then the constrained insert.
func (s *Service) insert(ctx context.Context, sessionID, courseID, studentID, method, ip, device string) (*Attendance, error) {
	existing, err := s.repo.FindBySessionStudent(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.Conflict, msgAlreadyMarked)
	}

	// Auto-enrollment must not block the attendance fact: log and continue.
	if err := s.courses.Enroll(ctx, courseID, studentID); err != nil {
		log.Printf("auto-enroll %s into course %s failed: %v", studentID, courseID, err)
	}

	a := &Attendance{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		CourseID:   courseID,
		StudentID:  studentID,
		Status:     StatusPresent,
		Method:     method,
		MarkedAt:   s.clk.Now(),
		IPAddress:  ip,
		DeviceInfo: device,
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Exists reports whether an attendance fact exists for (session, student).
func (s *Service) Exists(ctx context.Context, sessionID, studentID string) (bool, error) {
	a, err := s.repo.FindBySessionStudent(ctx, sessionID, normalizeStudent(studentID))
	return a != nil, err
}

// ListRecords returns attendance records. A course filter is only served to
// the course's owning lecturer.
func (s *Service) ListRecords(ctx context.Context, lecturerID string, f Filter) ([]Attendance, error) {
	if f.CourseID != "" {
		c, err := s.courses.Get(ctx, f.CourseID)
		if err != nil {
			return nil, err
		}
		if c.LecturerID != lecturerID {
			return nil, apperr.New(apperr.NotAuthorized, "not authorized to view this course attendance")
		}
	}
	return s.repo.List(ctx, f)
}

// ListBySession returns a session's records in check-in order.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]Attendance, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

// Stats is the aggregated projection over attendance and enrollment.
type Stats struct {
	Overall  OverallStats  `json:"overall"`
	Students []StudentStat `json:"students"`
}

// OverallStats summarizes one course (optionally one day).
type OverallStats struct {
	TotalEnrolled        int    `json:"totalEnrolled"`
	TotalPresent         int    `json:"totalPresent"`
	TotalAbsent          int    `json:"totalAbsent"`
	AttendancePercentage string `json:"attendancePercentage"`
}

// StudentStat is one enrolled student's attendance across completed sessions.
type StudentStat struct {
	Student    string `json:"student"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Percentage string `json:"percentage"`
}

// CourseStats computes present/absent aggregates for a course the caller owns.
func (s *Service) CourseStats(ctx context.Context, lecturerID, courseID string, date *time.Time) (*Stats, error) {
	c, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.LecturerID != lecturerID {
		return nil, apperr.New(apperr.NotAuthorized, "not authorized to view this course statistics")
	}

	students, err := s.courses.Students(ctx, courseID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.List(ctx, Filter{CourseID: courseID})
	if err != nil {
		return nil, err
	}
	completed, err := s.sessions.CompletedCount(ctx, courseID)
	if err != nil {
		return nil, err
	}

	presentByStudent := map[string]int{}
	dayPresent := 0
	for _, rec := range records {
		if rec.Status != StatusPresent {
			continue
		}
		presentByStudent[rec.StudentID]++
		if date == nil || sameDay(rec.MarkedAt, *date) {
			dayPresent++
		}
	}

	stats := &Stats{
		Overall: OverallStats{
			TotalEnrolled:        len(students),
			TotalPresent:         dayPresent,
			TotalAbsent:          max(len(students)-dayPresent, 0),
			AttendancePercentage: percentage(dayPresent, len(students)),
		},
		Students: make([]StudentStat, 0, len(students)),
	}
	for _, st := range students {
		present := presentByStudent[st]
		stats.Students = append(stats.Students, StudentStat{
			Student:    st,
			Present:    present,
			Absent:     max(completed-present, 0),
			Percentage: percentage(present, completed),
		})
	}
	return stats, nil
}

func percentage(part, total int) string {
	if total <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(part)/float64(total)*100)
}

func sameDay(t, day time.Time) bool {
	y1, m1, d1 := t.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func normalizeStudent(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
