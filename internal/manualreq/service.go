package manualreq

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/metrics"
	"rollcall/internal/notify"
	"rollcall/internal/session"
)

// SessionStore is the raw session lookup the workflow needs; ownership is
// checked here, against the loaded session.
type SessionStore interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Recorder is the attendance surface the approval path drives.
type Recorder interface {
	RecordManual(ctx context.Context, sessionID, courseID, studentID string) (*attendance.Attendance, error)
	Exists(ctx context.Context, sessionID, studentID string) (bool, error)
}

// Service runs the manual request workflow: student submission, lecturer
// approval (which creates the attendance fact) or rejection.
type Service struct {
	repo     Repository
	sessions SessionStore
	recorder Recorder
	sink     notify.Sink
	clk      clock.Clock
}

// NewService creates the workflow service.
func NewService(repo Repository, sessions SessionStore, recorder Recorder, sink notify.Sink, clk clock.Clock) *Service {
	return &Service{repo: repo, sessions: sessions, recorder: recorder, sink: sink, clk: clk}
}

// SubmitInput is a student's fallback claim.
type SubmitInput struct {
	StudentID string
	SessionID string
	CourseID  string
	Reason    string
}

// Submit files a request. It is refused when an attendance fact or an open
// request already exists for the pair. The lecturer notification is
// best-effort and never fails the submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	in.StudentID = strings.ToUpper(strings.TrimSpace(in.StudentID))
	in.Reason = strings.TrimSpace(in.Reason)
	if in.StudentID == "" || in.SessionID == "" || in.CourseID == "" || in.Reason == "" {
		return nil, apperr.New(apperr.Validation, "student, session, course and reason are required")
	}

	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	marked, err := s.recorder.Exists(ctx, in.SessionID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if marked {
		return nil, apperr.New(apperr.Conflict, "attendance already marked for this session")
	}

	open, err := s.repo.FindPending(ctx, in.SessionID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperr.New(apperr.Conflict, msgAlreadyRequested)
	}

	req := &Request{
		ID:        uuid.NewString(),
		StudentID: in.StudentID,
		SessionID: in.SessionID,
		CourseID:  in.CourseID,
		Reason:    in.Reason,
		Status:    StatusPending,
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return nil, err
	}

	notify.Publish(ctx, s.sink, notify.Event{
		Type:      notify.TypeManualRequest,
		Recipient: sess.LecturerID,
		Title:     "New Manual Attendance Request",
		Body:      in.StudentID + " requested manual attendance for " + sess.Name,
		RefID:     req.ID,
		RefType:   "ManualRequest",
		CreatedAt: s.clk.Now(),
	})
	return req, nil
}

// Get returns a request after checking the caller owns its session.
func (s *Service) Get(ctx context.Context, id, lecturerID string) (*Request, error) {
	req, _, err := s.ownedRequest(ctx, id, lecturerID)
	return req, err
}

// List returns requests against the lecturer's sessions.
func (s *Service) List(ctx context.Context, lecturerID, status string) ([]Request, error) {
	return s.repo.ListByLecturer(ctx, lecturerID, status)
}

// Approve converts a pending request into an attendance fact. If a direct
// check-in raced ahead, the insert conflicts and the request stays pending.
func (s *Service) Approve(ctx context.Context, id, lecturerID, note string) (*Request, error) {
	req, _, err := s.ownedRequest(ctx, id, lecturerID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, apperr.New(apperr.Conflict, "request has already been reviewed")
	}

	if _, err := s.recorder.RecordManual(ctx, req.SessionID, req.CourseID, req.StudentID); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	changed, err := s.repo.Review(ctx, id, StatusApproved, lecturerID, note, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.New(apperr.Conflict, "request has already been reviewed")
	}
	metrics.ManualReviews.WithLabelValues("approved").Inc()

	req.Status = StatusApproved
	req.ReviewedBy = lecturerID
	req.ReviewedAt = &now
	req.ReviewNote = note

	notify.Publish(ctx, s.sink, notify.Event{
		Type:      notify.TypeRequestDecided,
		Recipient: req.StudentID,
		Title:     "Attendance Request Approved",
		Body:      "Your manual attendance request has been approved",
		RefID:     req.ID,
		RefType:   "ManualRequest",
		CreatedAt: now,
	})
	return req, nil
}

// Reject closes a pending request with no attendance side effect.
func (s *Service) Reject(ctx context.Context, id, lecturerID, note string) (*Request, error) {
	req, _, err := s.ownedRequest(ctx, id, lecturerID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, apperr.New(apperr.Conflict, "request has already been reviewed")
	}

	now := s.clk.Now()
	changed, err := s.repo.Review(ctx, id, StatusRejected, lecturerID, note, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.New(apperr.Conflict, "request has already been reviewed")
	}
	metrics.ManualReviews.WithLabelValues("rejected").Inc()

	req.Status = StatusRejected
	req.ReviewedBy = lecturerID
	req.ReviewedAt = &now
	req.ReviewNote = note
	return req, nil
}

func (s *Service) ownedRequest(ctx context.Context, id, lecturerID string) (*Request, *session.Session, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.LecturerID != lecturerID {
		return nil, nil, apperr.New(apperr.NotAuthorized, "not authorized to review this request")
	}
	return req, sess, nil
}
