package manualreq

import (
	"context"
	"sync"
	"testing"
	"time"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/notify"
	"rollcall/internal/session"
)

type inMemoryRepo struct {
	mu       sync.Mutex
	requests map[string]*Request
}

func newInMemoryRepo() *inMemoryRepo {
	return &inMemoryRepo{requests: map[string]*Request{}}
}

func (r *inMemoryRepo) Insert(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.SessionID == req.SessionID && existing.StudentID == req.StudentID && existing.Status == StatusPending {
			return apperr.New(apperr.Conflict, msgAlreadyRequested)
		}
	}
	cp := *req
	cp.CreatedAt = time.Now()
	r.requests[cp.ID] = &cp
	req.CreatedAt = cp.CreatedAt
	return nil
}

func (r *inMemoryRepo) Get(_ context.Context, id string) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "request not found")
	}
	cp := *req
	return &cp, nil
}

func (r *inMemoryRepo) FindPending(_ context.Context, sessionID, studentID string) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.SessionID == sessionID && req.StudentID == studentID && req.Status == StatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryRepo) ListByLecturer(_ context.Context, _ string, status string) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Request
	for _, req := range r.requests {
		if status == "" || req.Status == status {
			res = append(res, *req)
		}
	}
	return res, nil
}

func (r *inMemoryRepo) Review(_ context.Context, id, status, reviewer, note string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != StatusPending {
		return false, nil
	}
	req.Status = status
	req.ReviewedBy = reviewer
	req.ReviewedAt = &at
	req.ReviewNote = note
	return true, nil
}

type fakeSessionStore struct {
	sessions map[string]*session.Session
}

func (f *fakeSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	return s, nil
}

// fakeRecorder mimics the attendance recorder's dedup-checked insert.
type fakeRecorder struct {
	mu     sync.Mutex
	marked map[string]bool // session + "|" + student
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{marked: map[string]bool{}}
}

func (f *fakeRecorder) RecordManual(_ context.Context, sessionID, courseID, studentID string) (*attendance.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + "|" + studentID
	if f.marked[key] {
		return nil, apperr.New(apperr.Conflict, "attendance already marked for this session")
	}
	f.marked[key] = true
	return &attendance.Attendance{
		SessionID: sessionID,
		CourseID:  courseID,
		StudentID: studentID,
		Method:    attendance.MethodManual,
		Status:    attendance.StatusPresent,
	}, nil
}

func (f *fakeRecorder) Exists(_ context.Context, sessionID, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked[sessionID+"|"+studentID], nil
}

type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureSink) Publish(_ context.Context, evt notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *inMemoryRepo
	recorder *fakeRecorder
	sink     *captureSink
	clk      *clock.Fixed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock.Fixed{T: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	repo := newInMemoryRepo()
	recorder := newFakeRecorder()
	sink := &captureSink{}
	sessions := &fakeSessionStore{sessions: map[string]*session.Session{
		"sess-1": {ID: "sess-1", CourseID: "cs101", Name: "Week 3", LecturerID: "lect-1", Status: session.StatusActive},
	}}
	return &fixture{
		svc:      NewService(repo, sessions, recorder, sink, clk),
		repo:     repo,
		recorder: recorder,
		sink:     sink,
		clk:      clk,
	}
}

func submitInput() SubmitInput {
	return SubmitInput{StudentID: "u2020/0001", SessionID: "sess-1", CourseID: "cs101", Reason: "phone broke"}
}

func TestSubmitCreatesPendingAndNotifiesLecturer(t *testing.T) {
	f := newFixture(t)

	req, err := f.svc.Submit(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != StatusPending {
		t.Fatalf("status = %q, want pending", req.Status)
	}
	if req.StudentID != "U2020/0001" {
		t.Fatalf("student = %q, want uppercased", req.StudentID)
	}
	if len(f.sink.events) != 1 || f.sink.events[0].Recipient != "lect-1" {
		t.Fatalf("events = %+v, want one notification to the lecturer", f.sink.events)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	in := submitInput()
	in.Reason = "   "
	if _, err := f.svc.Submit(context.Background(), in); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("err = %v, want Validation", err)
	}
}

func TestSubmitMissingSession(t *testing.T) {
	f := newFixture(t)
	in := submitInput()
	in.SessionID = "nope"
	if _, err := f.svc.Submit(context.Background(), in); !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestSubmitConflictsWhenAlreadyMarked(t *testing.T) {
	f := newFixture(t)
	_, _ = f.recorder.RecordManual(context.Background(), "sess-1", "cs101", "U2020/0001")

	if _, err := f.svc.Submit(context.Background(), submitInput()); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("err = %v, want Conflict for already-marked student", err)
	}
}

func TestSubmitConflictsWhenRequestOpen(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Submit(context.Background(), submitInput()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := f.svc.Submit(context.Background(), submitInput()); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("err = %v, want Conflict for duplicate request", err)
	}
}

func TestSubmitSurvivesNotifyFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.sink = failingSink{}

	if _, err := f.svc.Submit(context.Background(), submitInput()); err != nil {
		t.Fatalf("Submit must not surface notification failure, got %v", err)
	}
}

type failingSink struct{}

func (failingSink) Publish(context.Context, notify.Event) error {
	return context.DeadlineExceeded
}

func TestApproveCreatesAttendanceAndStampsReview(t *testing.T) {
	f := newFixture(t)
	req, _ := f.svc.Submit(context.Background(), submitInput())
	f.clk.Advance(time.Hour)

	approved, err := f.svc.Approve(context.Background(), req.ID, "lect-1", "verified manually")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("status = %q, want approved", approved.Status)
	}
	if approved.ReviewedBy != "lect-1" || approved.ReviewNote != "verified manually" {
		t.Fatalf("review stamp = %q/%q", approved.ReviewedBy, approved.ReviewNote)
	}
	if approved.ReviewedAt == nil || !approved.ReviewedAt.Equal(f.clk.Now()) {
		t.Fatalf("reviewedAt = %v, want %v", approved.ReviewedAt, f.clk.Now())
	}
	if marked, _ := f.recorder.Exists(context.Background(), "sess-1", "U2020/0001"); !marked {
		t.Fatal("approval must create the attendance fact")
	}
	// Lecturer notification from submit, student notification from approval.
	if len(f.sink.events) != 2 || f.sink.events[1].Recipient != "U2020/0001" {
		t.Fatalf("events = %+v, want approval notification to student", f.sink.events)
	}
}

func TestApproveRacedByDirectCheckIn(t *testing.T) {
	f := newFixture(t)
	req, _ := f.svc.Submit(context.Background(), submitInput())

	// A late direct check-in lands between submit and approval.
	f.recorder.marked["sess-1|U2020/0001"] = true

	_, err := f.svc.Approve(context.Background(), req.ID, "lect-1", "")
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
	// The request stays pending.
	stored, _ := f.repo.Get(context.Background(), req.ID)
	if stored.Status != StatusPending {
		t.Fatalf("status = %q, want pending after failed approval", stored.Status)
	}
}

func TestApproveTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	req, _ := f.svc.Submit(context.Background(), submitInput())

	if _, err := f.svc.Approve(context.Background(), req.ID, "lect-1", ""); err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	if _, err := f.svc.Approve(context.Background(), req.ID, "lect-1", ""); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("err = %v, want Conflict on re-review", err)
	}
}

func TestApproveChecksOwnership(t *testing.T) {
	f := newFixture(t)
	req, _ := f.svc.Submit(context.Background(), submitInput())

	if _, err := f.svc.Approve(context.Background(), req.ID, "intruder", ""); !apperr.IsKind(err, apperr.NotAuthorized) {
		t.Fatalf("err = %v, want NotAuthorized", err)
	}
}

func TestRejectStampsWithoutAttendance(t *testing.T) {
	f := newFixture(t)
	req, _ := f.svc.Submit(context.Background(), submitInput())

	rejected, err := f.svc.Reject(context.Background(), req.ID, "lect-1", "no evidence")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != StatusRejected || rejected.ReviewNote != "no evidence" {
		t.Fatalf("rejected = %+v", rejected)
	}
	if marked, _ := f.recorder.Exists(context.Background(), "sess-1", "U2020/0001"); marked {
		t.Fatal("rejection must not create attendance")
	}
	// Rejection closes the pending slot; the student may file again.
	if _, err := f.svc.Submit(context.Background(), submitInput()); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
}

func TestRejectTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	req, _ := f.svc.Submit(context.Background(), submitInput())

	if _, err := f.svc.Reject(context.Background(), req.ID, "lect-1", ""); err != nil {
		t.Fatalf("first Reject: %v", err)
	}
	if _, err := f.svc.Reject(context.Background(), req.ID, "lect-1", ""); !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}
