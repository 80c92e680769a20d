// Package room tracks live connections and the named rooms they belong to.
package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/model"
)

// DefaultQueueSize is the outbound buffer of a client when none is configured.
const DefaultQueueSize = 64

var (
	ErrUnauthorizedMonitor = errors.New("only teachers and admins may monitor students")
	ErrRouterClosed        = errors.New("router is closed")
)

// RoleRoom is joined by every connection of the role.
func RoleRoom(r model.Role) string { return string(r) }

// GradeRoom is joined by students of the grade.
func GradeRoom(grade int) string { return fmt.Sprintf("grade-%d", grade) }

// ExamRoom is joined explicitly by clients following an exam.
func ExamRoom(examID uuid.UUID) string { return "exam-" + examID.String() }

// StudentRoom is joined by supervisors monitoring the student.
func StudentRoom(studentID int) string { return fmt.Sprintf("student-%d", studentID) }

// Client is one live connection. Messages are pre-encoded frames.
type Client struct {
	ID       uuid.UUID
	Identity model.Identity

	send  chan []byte
	rooms map[string]struct{} // guarded by Router.mu
}

// Send is drained by the connection's write pump. It is closed on Unregister.
func (c *Client) Send() <-chan []byte { return c.send }

// Router maps rooms to connections. Every mutation holds the write lock and
// every fan-out holds the read lock, so a broadcast never observes a
// half-removed client.
type Router struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	users   map[int]map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]*Client
	closed  bool

	queueSize int
	log       zerolog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(queueSize int, log zerolog.Logger) *Router {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Router{
		clients:   make(map[uuid.UUID]*Client),
		users:     make(map[int]map[uuid.UUID]*Client),
		rooms:     make(map[string]map[uuid.UUID]*Client),
		queueSize: queueSize,
		log:       log.With().Str("component", "room_router").Logger(),
	}
}

// Register adds a connection for identity and joins its role room and, for
// students with a grade, its grade room.
func (r *Router) Register(identity model.Identity) (*Client, error) {
	c := &Client{
		ID:       uuid.New(),
		Identity: identity,
		send:     make(chan []byte, r.queueSize),
		rooms:    make(map[string]struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRouterClosed
	}

	r.clients[c.ID] = c
	if r.users[identity.ID] == nil {
		r.users[identity.ID] = make(map[uuid.UUID]*Client)
	}
	r.users[identity.ID][c.ID] = c

	r.joinLocked(c, RoleRoom(identity.Role))
	if grade, ok := identity.GradeLevel(); ok && identity.Role == model.RoleStudent {
		r.joinLocked(c, GradeRoom(grade))
	}

	r.log.Debug().
		Str("conn_id", c.ID.String()).
		Int("user_id", identity.ID).
		Str("role", string(identity.Role)).
		Msg("Client registered")
	return c, nil
}

// Unregister removes c from every room and closes its queue. It reports
// whether the user has no other live connection. Unknown clients are ignored.
func (r *Router) Unregister(c *Client) (lastForUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID]; !ok {
		return false
	}
	r.removeLocked(c)

	_, stillOnline := r.users[c.Identity.ID]
	return !stillOnline
}

// JoinExamRoom subscribes c to an exam room.
func (r *Router) JoinExamRoom(c *Client, examID uuid.UUID) {
	r.join(c, ExamRoom(examID))
}

// LeaveExamRoom unsubscribes c from an exam room.
func (r *Router) LeaveExamRoom(c *Client, examID uuid.UUID) {
	r.leave(c, ExamRoom(examID))
}

// Monitor subscribes a supervisor to a student's activity. Any other role is
// refused with ErrUnauthorizedMonitor and nothing changes.
func (r *Router) Monitor(c *Client, studentID int) error {
	if !c.Identity.Role.CanSupervise() {
		r.log.Warn().
			Int("user_id", c.Identity.ID).
			Str("role", string(c.Identity.Role)).
			Int("student_id", studentID).
			Msg("Unauthorized monitor attempt")
		return ErrUnauthorizedMonitor
	}
	r.join(c, StudentRoom(studentID))
	return nil
}

// StopMonitoring leaves a student's room. Safe when c never joined it.
func (r *Router) StopMonitoring(c *Client, studentID int) {
	r.leave(c, StudentRoom(studentID))
}

// Broadcast queues msg for every member of room and returns how many clients
// accepted it. A full queue drops the message for that client only.
func (r *Router) Broadcast(room string, msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deliverLocked(r.rooms[room], msg, room)
}

// SendToUser queues msg for every connection of userID.
func (r *Router) SendToUser(userID int, msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deliverLocked(r.users[userID], msg, "")
}

// Reply queues msg for c alone. It reports false when c is gone or its queue is full.
func (r *Router) Reply(c *Client, msg []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.clients[c.ID]; !ok {
		return false
	}
	return r.deliverLocked(map[uuid.UUID]*Client{c.ID: c}, msg, "") == 1
}

// Members returns the connection ids in room.
func (r *Router) Members(room string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

// InRoom reports whether c is a member of room.
func (r *Router) InRoom(c *Client, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][c.ID]
	return ok
}

// ConnectionCount returns the number of live connections.
func (r *Router) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Online reports whether userID has at least one live connection.
func (r *Router) Online(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Close unregisters every client and refuses new registrations.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, c := range r.clients {
		r.removeLocked(c)
	}
	r.log.Info().Msg("Room router closed")
}

func (r *Router) join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return
	}
	r.joinLocked(c, room)
}

func (r *Router) leave(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, room)
}

func (r *Router) joinLocked(c *Client, room string) {
	members := r.rooms[room]
	if members == nil {
		members = make(map[uuid.UUID]*Client)
		r.rooms[room] = members
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}
}

func (r *Router) leaveLocked(c *Client, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	delete(c.rooms, room)
}

func (r *Router) removeLocked(c *Client) {
	for room := range c.rooms {
		r.leaveLocked(c, room)
	}
	delete(r.clients, c.ID)
	if conns := r.users[c.Identity.ID]; conns != nil {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(r.users, c.Identity.ID)
		}
	}
	close(c.send)
}

func (r *Router) deliverLocked(targets map[uuid.UUID]*Client, msg []byte, room string) int {
	delivered := 0
	for _, c := range targets {
		select {
		case c.send <- msg:
			delivered++
		default:
			r.log.Warn().
				Str("conn_id", c.ID.String()).
				Int("user_id", c.Identity.ID).
				Str("room", room).
				Msg("Client queue full, message dropped")
		}
	}
	return delivered
}
