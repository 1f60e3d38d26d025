package attendance

import "time"

// Check-in methods.
const (
	MethodQR     = "qr"
	MethodManual = "manual"
)

// StatusPresent is the only status the protocol itself writes; absent/late
// exist for reporting layers.
const StatusPresent = "present"

// Attendance is one student's recorded presence at one session. Records are
// immutable after creation and unique per (session, student).
type Attendance struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session"`
	CourseID   string    `json:"course"`
	StudentID  string    `json:"student"`
	Status     string    `json:"status"`
	Method     string    `json:"method"`
	MarkedAt   time.Time `json:"markedAt"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
