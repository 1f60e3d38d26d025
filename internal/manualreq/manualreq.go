package manualreq

import "time"

// Request statuses; pending is the only non-terminal state.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Request is a student's fallback claim that they attended a session, filed
// when the token-based check-in path failed. A lecturer resolves it exactly
// once.
type Request struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student"`
	SessionID  string     `json:"session"`
	CourseID   string     `json:"course"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ReviewedBy string     `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	ReviewNote string     `json:"reviewNote,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
