package session

import "time"

// Session statuses. A session is created active and only ever moves to
// completed or cancelled; both are terminal.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Session is a single time-boxed attendance-taking event tied to one course.
type Session struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"courseId"`
	Name        string     `json:"sessionName"`
	Date        time.Time  `json:"date"`
	TimeOfDay   string     `json:"time"`
	Location    string     `json:"location,omitempty"`
	LecturerID  string     `json:"lecturerId"`
	QRCode      string     `json:"qrCode,omitempty"`
	Status      string     `json:"status"`
	DurationMin int        `json:"duration"`
	StartedAt   time.Time  `json:"startedAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Terminal reports whether the session can no longer transition.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}
