package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/room"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stemsi/exstem-live/internal/validator"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

const (
	maxMessageBytes = 8 << 10
	actionTimeout   = 10 * time.Second
)

// LiveSessions is AttemptService plus the disconnect hook.
type LiveSessions interface {
	AttemptService
	Detach(studentID int)
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits every origin (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// LiveHandler serves the real-time channel shared by students and supervisors.
type LiveHandler struct {
	router   *room.Router
	sessions LiveSessions
	exams    ExamLookup
	notifier Notifier
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(router *room.Router, sessions LiveSessions, exams ExamLookup, notifier Notifier, log zerolog.Logger, allowedOrigins []string) *LiveHandler {
	return &LiveHandler{
		router:   router,
		sessions: sessions,
		exams:    exams,
		notifier: notifier,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// liveConn is one upgraded connection and its router membership.
type liveConn struct {
	conn     *websocket.Conn
	client   *room.Client
	identity model.Identity
	log      zerolog.Logger
}

// Live godoc
// WS /ws/v1/live?token=...
// Every frame is {"event": name, "data": {...}} in both directions.
func (h *LiveHandler) Live(c *gin.Context) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client, err := h.router.Register(identity)
	if err != nil {
		ws.WriteFrame(conn, codeFrame(response.ErrInternal, nil))
		ws.WriteClose(conn)
		conn.Close()
		return
	}

	lc := &liveConn{
		conn:     conn,
		client:   client,
		identity: identity,
		log: h.log.With().
			Int("user_id", identity.ID).
			Str("role", string(identity.Role)).
			Str("conn_id", client.ID.String()).
			Logger(),
	}
	lc.log.Info().Msg("Client connected")

	done := make(chan struct{})
	go h.writePump(lc, done)

	h.readLoop(lc)

	if h.router.Unregister(client) && identity.Role == model.RoleStudent {
		h.sessions.Detach(identity.ID)
		lc.log.Info().Msg("Last connection closed, attempt clocks detached")
	}
	<-done
}

// writePump is the only writer of conn. It exits when the client's queue is
// closed by Unregister or a write fails.
func (h *LiveHandler) writePump(lc *liveConn, done chan<- struct{}) {
	ticker := time.NewTicker(ws.PingPeriod())
	defer func() {
		ticker.Stop()
		lc.conn.Close()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-lc.client.Send():
			if !ok {
				ws.WriteClose(lc.conn)
				return
			}
			if err := ws.WriteFrame(lc.conn, frame); err != nil {
				lc.log.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(lc.conn); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) readLoop(lc *liveConn) {
	ws.PrepareRead(lc.conn, maxMessageBytes)
	for {
		env, err := ws.ReadEnvelope(lc.conn)
		if errors.Is(err, ws.ErrMalformedFrame) {
			h.reply(lc, codeFrame(response.ErrInvalidPayload, nil))
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lc.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				lc.log.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(lc, env)
	}
}

func (h *LiveHandler) dispatch(lc *liveConn, env ws.RequestEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch env.Event {
	case ws.ActionPing:
		h.reply(lc, ws.MustEncode(ws.EventPong, nil))

	case ws.ActionJoinExam:
		if examID, ok := h.decodeExam(lc, env); ok {
			h.router.JoinExamRoom(lc.client, examID)
		}

	case ws.ActionLeaveExam:
		if examID, ok := h.decodeExam(lc, env); ok {
			h.router.LeaveExamRoom(lc.client, examID)
		}

	case ws.ActionMonitorStudent:
		var req ws.MonitorRequest
		if h.decode(lc, env, &req) {
			// Refusals are logged by the router and never reported to the client.
			_ = h.router.Monitor(lc.client, req.StudentID)
		}

	case ws.ActionStopMonitoring:
		var req ws.MonitorRequest
		if h.decode(lc, env, &req) {
			h.router.StopMonitoring(lc.client, req.StudentID)
		}

	case ws.ActionStartExam:
		examID, ok := h.decodeExam(lc, env)
		if !ok || !h.requireStudent(lc) {
			return
		}
		attempt, _, err := openAndStart(ctx, h.sessions, lc.identity, examID)
		if err != nil {
			h.reply(lc, errorFrame(err))
			return
		}
		h.router.JoinExamRoom(lc.client, examID)
		h.reply(lc, ws.MustEncode(ws.EventAttemptState, attemptState(attempt)))

	case ws.ActionSubmitAnswer:
		var req ws.SubmitAnswerRequest
		if !h.decode(lc, env, &req) || !h.requireStudent(lc) {
			return
		}
		if err := h.submitAnswer(ctx, lc, req); err != nil {
			h.reply(lc, errorFrame(err))
		}

	case ws.ActionSubmitExam:
		examID, ok := h.decodeExam(lc, env)
		if !ok || !h.requireStudent(lc) {
			return
		}
		// The graded result reaches every connection of the student through the bus.
		if err := h.submitExam(ctx, lc, examID); err != nil {
			h.reply(lc, errorFrame(err))
		}

	case ws.ActionNewExamAvailable:
		var req ws.NewExamRequest
		if !h.decode(lc, env, &req) {
			return
		}
		if !lc.identity.Role.CanSupervise() {
			h.reply(lc, codeFrame(response.ErrSupervisorOnly, nil))
			return
		}
		if _, err := announce(ctx, h.exams, h.notifier, uuid.MustParse(req.ExamID), req.GradeLevel, req.Subject); err != nil {
			h.reply(lc, errorFrame(err))
		}

	default:
		lc.log.Warn().Str("event", string(env.Event)).Msg("Unknown event")
		h.reply(lc, codeFrame(response.ErrUnknownEvent, map[string]string{"event": string(env.Event)}))
	}
}

func (h *LiveHandler) submitAnswer(ctx context.Context, lc *liveConn, req ws.SubmitAnswerRequest) error {
	attempt, err := h.sessions.ForStudentExam(lc.identity.ID, uuid.MustParse(req.ExamID))
	if err != nil {
		return err
	}
	return h.sessions.Answer(ctx, lc.identity, attempt.ID, uuid.MustParse(req.QuestionID), req.Answer)
}

func (h *LiveHandler) submitExam(ctx context.Context, lc *liveConn, examID uuid.UUID) error {
	attempt, err := h.sessions.ForStudentExam(lc.identity.ID, examID)
	if err != nil {
		return err
	}
	_, err = h.sessions.Submit(ctx, lc.identity, attempt.ID)
	if errors.Is(err, session.ErrNotPersisted) {
		lc.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Result graded but not persisted")
	}
	return err
}

// reply queues frame for this connection only.
func (h *LiveHandler) reply(lc *liveConn, frame []byte) {
	if !h.router.Reply(lc.client, frame) {
		lc.log.Debug().Msg("Reply dropped")
	}
}

func (h *LiveHandler) requireStudent(lc *liveConn) bool {
	if lc.identity.Role != model.RoleStudent {
		h.reply(lc, codeFrame(response.ErrStudentAccessOnly, nil))
		return false
	}
	return true
}

// decode unmarshals and validates env.Data into dst, replying with an error frame on failure.
func (h *LiveHandler) decode(lc *liveConn, env ws.RequestEnvelope, dst any) bool {
	if err := ws.DecodeData(env, dst); err != nil {
		h.reply(lc, codeFrame(response.ErrInvalidPayload, map[string]string{"detail": err.Error()}))
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		h.reply(lc, codeFrame(response.ErrValidation, fields))
		return false
	}
	return true
}

func (h *LiveHandler) decodeExam(lc *liveConn, env ws.RequestEnvelope) (uuid.UUID, bool) {
	var req ws.ExamRequest
	if !h.decode(lc, env, &req) {
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ExamID), true
}

func attemptState(a model.Attempt) ws.AttemptStateData {
	return ws.AttemptStateData{
		AttemptID:        a.ID.String(),
		ExamID:           a.ExamID.String(),
		Status:           a.Status,
		RemainingSeconds: a.RemainingSeconds(time.Now()),
	}
}
