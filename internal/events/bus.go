// Package events turns attempt activity into frames for rooms and the
// supervisor monitor channel.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/room"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

// DefaultRelayBuffer bounds the monitor mirror when none is configured.
const DefaultRelayBuffer = 256

// Fanout delivers frames to live connections.
type Fanout interface {
	Broadcast(room string, msg []byte) int
	SendToUser(userID int, msg []byte) int
}

// MirrorPublisher forwards frames to an out-of-process channel.
type MirrorPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ActivityJournal queues activity for the durable audit log. A mirror that
// also implements it receives every relayed activity.
type ActivityJournal interface {
	Record(ctx context.Context, a model.Activity) error
}

type mirrorMsg struct {
	channel  string
	payload  []byte
	activity *model.Activity
}

// Bus publishes activity to rooms synchronously and mirrors it to the
// monitor channel asynchronously. The mirror drops on overflow.
type Bus struct {
	fanout  Fanout
	mirror  MirrorPublisher
	journal ActivityJournal

	mu     sync.RWMutex
	relay  chan mirrorMsg
	closed bool
	wg     sync.WaitGroup

	now func() time.Time
	log zerolog.Logger
}

// NewBus creates a Bus. mirror may be nil.
func NewBus(fanout Fanout, mirror MirrorPublisher, relayBuffer int, log zerolog.Logger) *Bus {
	if relayBuffer <= 0 {
		relayBuffer = DefaultRelayBuffer
	}
	b := &Bus{
		fanout: fanout,
		mirror: mirror,
		now:    time.Now,
		log:    log.With().Str("component", "event_bus").Logger(),
	}
	if j, ok := mirror.(ActivityJournal); ok {
		b.journal = j
	}
	if mirror != nil {
		b.relay = make(chan mirrorMsg, relayBuffer)
		b.wg.Add(1)
		go b.runRelay()
	}
	return b
}

// StudentActivity notifies everyone monitoring the student.
func (b *Bus) StudentActivity(ctx context.Context, a model.Activity) {
	if a.Timestamp.IsZero() {
		a.Timestamp = b.now()
	}
	frame, err := ws.Encode(ws.EventStudentActivity, a)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to encode activity")
		return
	}
	b.fanout.Broadcast(room.StudentRoom(a.StudentID), frame)
	b.enqueueMirror(mirrorMsg{
		channel:  config.CacheKey.ExamMonitorChannel(a.ExamID.String()),
		payload:  frame,
		activity: &a,
	})
}

// Notify announces to every student of the notification's grade.
func (b *Bus) Notify(ctx context.Context, n model.Notification) int {
	if n.Timestamp.IsZero() {
		n.Timestamp = b.now()
	}
	frame, err := ws.Encode(ws.EventNotification, n)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to encode notification")
		return 0
	}
	delivered := b.fanout.Broadcast(room.GradeRoom(n.GradeLevel), frame)
	b.log.Info().
		Str("exam_id", n.ExamID.String()).
		Int("grade_level", n.GradeLevel).
		Int("delivered", delivered).
		Msg("Notification sent")
	return delivered
}

// Tick sends the remaining time to the student's own connections.
func (b *Bus) Tick(ctx context.Context, studentID int, attemptID uuid.UUID, remaining time.Duration) {
	frame, err := ws.Encode(ws.EventClockTick, ws.ClockTickData{
		AttemptID:        attemptID.String(),
		RemainingSeconds: int(remaining.Round(time.Second).Seconds()),
	})
	if err != nil {
		return
	}
	b.fanout.SendToUser(studentID, frame)
}

// Finished sends the graded result summary to the student's own connections.
func (b *Bus) Finished(ctx context.Context, result *model.Result) {
	frame, err := ws.Encode(ws.EventAttemptGraded, ws.NewAttemptGraded(result))
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to encode graded result")
		return
	}
	b.fanout.SendToUser(result.StudentID, frame)
}

// Close stops the mirror relay after it drains what is queued.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed || b.relay == nil {
		b.closed = true
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.relay)
	b.mu.Unlock()
	b.wg.Wait()
}

// NewExamNotification builds the new-exam announcement for a grade.
func NewExamNotification(examID uuid.UUID, gradeLevel int, subject string) model.Notification {
	return model.Notification{
		Type:       model.NotificationNewExam,
		Message:    fmt.Sprintf("A new %s exam is available for you!", subject),
		ExamID:     examID,
		GradeLevel: gradeLevel,
	}
}

func (b *Bus) enqueueMirror(msg mirrorMsg) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.relay == nil || b.closed {
		return
	}
	select {
	case b.relay <- msg:
	default:
		b.log.Warn().Str("channel", msg.channel).Msg("Monitor relay full, activity dropped")
	}
}

func (b *Bus) runRelay() {
	defer b.wg.Done()
	for msg := range b.relay {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := b.mirror.Publish(ctx, msg.channel, msg.payload); err != nil {
			b.log.Error().Err(err).Str("channel", msg.channel).Msg("Monitor publish failed")
		}
		if b.journal != nil && msg.activity != nil {
			if err := b.journal.Record(ctx, *msg.activity); err != nil {
				b.log.Error().Err(err).
					Str("attempt_id", msg.activity.AttemptID.String()).
					Msg("Activity journal write failed")
			}
		}
		cancel()
	}
}
