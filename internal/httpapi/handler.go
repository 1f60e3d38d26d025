package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/clock"
	"rollcall/internal/manualreq"
	"rollcall/internal/session"
	"rollcall/internal/token"
)

// Handler exposes the attendance protocol over HTTP.
type Handler struct {
	Sessions *session.Service
	Recorder *attendance.Service
	Requests *manualreq.Service
	Tokens   *token.Authenticator
	Clock    clock.Clock
}

// Register mounts all routes under /api. lecturerAuth guards the owner-only
// endpoints; the check-in and submission paths are public by design.
func (h *Handler) Register(r *gin.Engine, lecturerAuth gin.HandlerFunc) {
	api := r.Group("/api")

	// Public: the display polls this for the rotating proof token.
	api.GET("/sessions/:id/token", h.sessionToken)
	// Public: course history for the student portal.
	api.GET("/sessions/public/:courseId", h.completedSessions)
	// Public: student check-in and fallback request paths.
	api.POST("/attendance/mark", h.markAttendance)
	api.POST("/manual-requests", h.submitRequest)
	api.POST("/manual-requests/public", h.submitRequest)

	lecturer := api.Group("", lecturerAuth)
	lecturer.POST("/sessions", h.createSession)
	lecturer.GET("/sessions", h.listSessions)
	lecturer.GET("/sessions/:id", h.getSession)
	lecturer.PUT("/sessions/:id/end", h.endSession)
	lecturer.PUT("/sessions/:id/cancel", h.cancelSession)
	lecturer.DELETE("/sessions/:id", h.deleteSession)
	lecturer.GET("/attendance", h.listAttendance)
	lecturer.GET("/attendance/stats/:courseId", h.attendanceStats)
	lecturer.GET("/manual-requests", h.listRequests)
	lecturer.GET("/manual-requests/:id", h.getRequest)
	lecturer.PUT("/manual-requests/:id/approve", h.approveRequest)
	lecturer.PUT("/manual-requests/:id/reject", h.rejectRequest)
}

// --- sessions ---

func (h *Handler) sessionToken(c *gin.Context) {
	sess, err := h.Sessions.GetActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	tok, window, expiresIn := h.Tokens.Issue(sess.ID, h.Clock.Now())
	respond(c, http.StatusOK, "", gin.H{
		"token":      tok,
		"timeWindow": window,
		"expiresIn":  int(expiresIn.Seconds()),
	})
}

func (h *Handler) createSession(c *gin.Context) {
	var req struct {
		Course      string `json:"course" binding:"required"`
		SessionName string `json:"sessionName" binding:"required"`
		Date        string `json:"date" binding:"required"`
		Time        string `json:"time" binding:"required"`
		Location    string `json:"location"`
		Duration    int    `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	sess, err := h.Sessions.Create(c.Request.Context(), session.CreateInput{
		CourseID:    req.Course,
		Name:        req.SessionName,
		Date:        date,
		TimeOfDay:   req.Time,
		Location:    req.Location,
		DurationMin: req.Duration,
		LecturerID:  auth.Principal(c),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusCreated, "Session created successfully", sess)
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.Sessions.List(c.Request.Context(), auth.Principal(c), c.Query("status"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCount(c, len(sessions), sessions)
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"), auth.Principal(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	records, err := h.Recorder.ListBySession(c.Request.Context(), sess.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"session": sess, "attendances": records})
}

func (h *Handler) completedSessions(c *gin.Context) {
	sessions, err := h.Sessions.ListCompletedByCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCount(c, len(sessions), sessions)
}

func (h *Handler) endSession(c *gin.Context) {
	sess, err := h.Sessions.End(c.Request.Context(), c.Param("id"), auth.Principal(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Session ended successfully", sess)
}

func (h *Handler) cancelSession(c *gin.Context) {
	sess, err := h.Sessions.Cancel(c.Request.Context(), c.Param("id"), auth.Principal(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Session cancelled", sess)
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.Sessions.Delete(c.Request.Context(), c.Param("id"), auth.Principal(c)); err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Session deleted successfully", gin.H{})
}

// --- attendance ---

func (h *Handler) markAttendance(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId" binding:"required"`
		StudentID string `json:"studentId" binding:"required"`
		Token     string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.Recorder.Mark(c.Request.Context(), attendance.MarkInput{
		SessionID:  req.SessionID,
		StudentID:  req.StudentID,
		Token:      req.Token,
		IPAddress:  c.ClientIP(),
		DeviceInfo: c.Request.UserAgent(),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusCreated, "Attendance marked successfully", rec)
}

func (h *Handler) listAttendance(c *gin.Context) {
	f := attendance.Filter{
		CourseID:  c.Query("courseId"),
		SessionID: c.Query("sessionId"),
	}
	if d := c.Query("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		f.Date = &day
	}
	records, err := h.Recorder.ListRecords(c.Request.Context(), auth.Principal(c), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCount(c, len(records), records)
}

func (h *Handler) attendanceStats(c *gin.Context) {
	var date *time.Time
	if d := c.Query("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		date = &day
	}
	stats, err := h.Recorder.CourseStats(c.Request.Context(), auth.Principal(c), c.Param("courseId"), date)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "", stats)
}

// --- manual requests ---

func (h *Handler) submitRequest(c *gin.Context) {
	var req struct {
		Student string `json:"student" binding:"required"`
		Course  string `json:"course" binding:"required"`
		Session string `json:"session" binding:"required"`
		Reason  string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := h.Requests.Submit(c.Request.Context(), manualreq.SubmitInput{
		StudentID: req.Student,
		SessionID: req.Session,
		CourseID:  req.Course,
		Reason:    req.Reason,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusCreated, "Manual request submitted successfully", created)
}

func (h *Handler) listRequests(c *gin.Context) {
	requests, err := h.Requests.List(c.Request.Context(), auth.Principal(c), c.Query("status"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCount(c, len(requests), requests)
}

func (h *Handler) getRequest(c *gin.Context) {
	req, err := h.Requests.Get(c.Request.Context(), c.Param("id"), auth.Principal(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "", req)
}

func (h *Handler) approveRequest(c *gin.Context) {
	note := reviewNote(c)
	req, err := h.Requests.Approve(c.Request.Context(), c.Param("id"), auth.Principal(c), note)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Request approved successfully", req)
}

func (h *Handler) rejectRequest(c *gin.Context) {
	note := reviewNote(c)
	req, err := h.Requests.Reject(c.Request.Context(), c.Param("id"), auth.Principal(c), note)
	if err != nil {
		respondErr(c, err)
		return
	}
	respond(c, http.StatusOK, "Request rejected", req)
}

func reviewNote(c *gin.Context) string {
	var body struct {
		Note string `json:"note"`
	}
	// The note is optional; an empty or absent body is fine.
	_ = c.ShouldBindJSON(&body)
	return body.Note
}
