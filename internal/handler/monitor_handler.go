package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
)

// MonitorFeed streams the frames mirrored to a monitor channel.
type MonitorFeed interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Presence reports whether a user has a live connection.
type Presence interface {
	Online(userID int) bool
}

// MonitorHandler streams an exam's student activity to supervisors over SSE.
type MonitorHandler struct {
	feed     MonitorFeed
	exams    ExamLookup
	attempts AttemptLister
	presence Presence
	log      zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(feed MonitorFeed, exams ExamLookup, attempts AttemptLister, presence Presence, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		feed:     feed,
		exams:    exams,
		attempts: attempts,
		presence: presence,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorExam struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Subject          string    `json:"subject"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
}

type monitorStats struct {
	Opened     int `json:"opened"`
	InProgress int `json:"in_progress"`
	Finished   int `json:"finished"`
	Online     int `json:"online"`
}

type monitorAttempt struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	StudentID        int                 `json:"student_id"`
	Status           model.AttemptStatus `json:"status"`
	Answered         int                 `json:"answered"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Online           bool                `json:"online"`
}

type monitorSnapshot struct {
	Exam     monitorExam      `json:"exam"`
	Stats    monitorStats     `json:"stats"`
	Attempts []monitorAttempt `json:"attempts"`
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Sends a snapshot, then relays every mirrored activity frame as an SSE data line.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	exam, err := h.exams.GetExam(reqCtx, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	frames, err := h.feed.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", h.snapshot(exam))
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	// Refresh only after activity; an idle exam has nothing new to report.
	dirty := false

	log := h.log.With().Str("exam_id", examID.String()).Logger()
	log.Info().Msg("Supervisor attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Supervisor detached from live monitor")
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(frame)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refresh.C:
			if !dirty {
				continue
			}
			dirty = false
			c.SSEvent("snapshot", h.snapshot(exam))
			c.Writer.Flush()

		case <-keepAlive.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) snapshot(exam *model.Exam) monitorSnapshot {
	now := time.Now()
	list := h.attempts.ListByExam(exam.ID)

	snap := monitorSnapshot{
		Exam: monitorExam{
			ID:               exam.ID,
			Title:            exam.Title,
			Subject:          exam.Subject,
			TimeLimitMinutes: exam.TimeLimitMinutes,
		},
		Attempts: make([]monitorAttempt, 0, len(list)),
	}

	for _, a := range list {
		online := h.presence.Online(a.StudentID)
		snap.Stats.Opened++
		switch {
		case a.Status == model.AttemptStatusInProgress:
			snap.Stats.InProgress++
		case a.Status.Terminal():
			snap.Stats.Finished++
		}
		if online {
			snap.Stats.Online++
		}
		snap.Attempts = append(snap.Attempts, monitorAttempt{
			AttemptID:        a.ID,
			StudentID:        a.StudentID,
			Status:           a.Status,
			Answered:         len(a.Answers),
			RemainingSeconds: a.RemainingSeconds(now),
			Online:           online,
		})
	}
	return snap
}
