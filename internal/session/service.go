package session

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/apperr"
	"rollcall/internal/clock"
	"rollcall/internal/course"
	"rollcall/internal/metrics"
)

// DefaultDurationMin is applied when a session is created without an explicit
// duration.
const DefaultDurationMin = 10

// Service owns the session lifecycle: creation, lazy expiry, explicit
// completion and deletion.
type Service struct {
	repo      Repository
	courses   course.Repository
	clk       clock.Clock
	clientURL string
}

// NewService creates a session service. clientURL is the base URL encoded
// into the session's scannable payload.
func NewService(repo Repository, courses course.Repository, clk clock.Clock, clientURL string) *Service {
	return &Service{repo: repo, courses: courses, clk: clk, clientURL: clientURL}
}

// CreateInput carries the lecturer's new-session form.
type CreateInput struct {
	CourseID    string
	Name        string
	Date        time.Time
	TimeOfDay   string
	Location    string
	DurationMin int
	LecturerID  string
}

// Create starts a new active session. expiresAt is fixed at creation and
// never recomputed afterwards.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Session, error) {
	if in.CourseID == "" || in.Name == "" || in.TimeOfDay == "" || in.Date.IsZero() {
		return nil, apperr.New(apperr.Validation, "course, session name, date and time are required")
	}
	if in.DurationMin <= 0 {
		in.DurationMin = DefaultDurationMin
	}

	c, err := s.courses.Get(ctx, in.CourseID)
	if err != nil {
		return nil, err
	}
	if c.LecturerID != in.LecturerID {
		return nil, apperr.New(apperr.NotAuthorized, "not authorized to create a session for this course")
	}

	now := s.clk.Now()
	sess := &Session{
		ID:          uuid.NewString(),
		CourseID:    in.CourseID,
		Name:        in.Name,
		Date:        in.Date,
		TimeOfDay:   in.TimeOfDay,
		Location:    in.Location,
		LecturerID:  in.LecturerID,
		Status:      StatusActive,
		DurationMin: in.DurationMin,
		StartedAt:   now,
		ExpiresAt:   now.Add(time.Duration(in.DurationMin) * time.Minute),
	}
	sess.QRCode = s.clientURL + "/session/" + sess.ID + "/attendance"

	if err := s.repo.Insert(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session after checking the caller owns it.
func (s *Service) Get(ctx context.Context, id, lecturerID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.LecturerID != lecturerID {
		return nil, apperr.New(apperr.NotAuthorized, "not authorized to access this session")
	}
	return sess, nil
}

// List returns the lecturer's sessions, optionally filtered by status.
func (s *Service) List(ctx context.Context, lecturerID, status string) ([]Session, error) {
	return s.repo.ListByLecturer(ctx, lecturerID, status)
}

// ListCompletedByCourse returns recent completed sessions for the public
// course history view.
func (s *Service) ListCompletedByCourse(ctx context.Context, courseID string) ([]Session, error) {
	return s.repo.ListCompletedByCourse(ctx, courseID, 20)
}

// GetActive loads a session and applies the lazy expiry check: a session past
// its expiresAt is transitioned to completed on this touch. Callers get the
// session only while it is genuinely active.
func (s *Service) GetActive(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusActive && s.clk.Now().After(sess.ExpiresAt) {
		changed, err := s.repo.SetStatus(ctx, sess.ID, StatusCompleted, nil)
		if err != nil {
			// The transition will be retried on the next touch; the caller
			// still must not treat the session as active.
			log.Printf("session %s: persisting lazy expiry failed: %v", sess.ID, err)
		}
		if changed {
			metrics.SessionsExpired.Inc()
		}
		sess.Status = StatusCompleted
		return nil, apperr.New(apperr.NotActive, "session has expired")
	}
	if sess.Status != StatusActive {
		return nil, apperr.New(apperr.NotActive, "session is not active")
	}
	return sess, nil
}

// CompletedCount returns the number of completed sessions for a course.
func (s *Service) CompletedCount(ctx context.Context, courseID string) (int, error) {
	return s.repo.CountCompletedByCourse(ctx, courseID)
}

// End completes a session ahead of (or after) its natural expiry.
func (s *Service) End(ctx context.Context, id, lecturerID string) (*Session, error) {
	return s.finish(ctx, id, lecturerID, StatusCompleted)
}

// Cancel voids a session without recording it as held.
func (s *Service) Cancel(ctx context.Context, id, lecturerID string) (*Session, error) {
	return s.finish(ctx, id, lecturerID, StatusCancelled)
}

func (s *Service) finish(ctx context.Context, id, lecturerID, status string) (*Session, error) {
	sess, err := s.Get(ctx, id, lecturerID)
	if err != nil {
		return nil, err
	}
	if sess.Terminal() {
		return nil, apperr.New(apperr.Conflict, "session has already ended")
	}
	now := s.clk.Now()
	changed, err := s.repo.SetStatus(ctx, id, status, &now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.New(apperr.Conflict, "session has already ended")
	}
	sess.Status = status
	sess.EndedAt = &now
	return sess, nil
}

// Delete removes the session and, by cascade, its attendances and manual
// requests.
func (s *Service) Delete(ctx context.Context, id, lecturerID string) error {
	if _, err := s.Get(ctx, id, lecturerID); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.New(apperr.NotFound, "session not found")
	}
	return nil
}
