package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/room"
)

type sent struct {
	target string
	userID int
	frame  []byte
}

type fakeFanout struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeFanout) Broadcast(r string, msg []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{target: r, frame: msg})
	return 1
}

func (f *fakeFanout) SendToUser(id int, msg []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{userID: id, frame: msg})
	return 1
}

type published struct {
	channel string
	payload []byte
}

type fakeMirror struct {
	out   chan published
	block chan struct{}
}

func (m *fakeMirror) Publish(_ context.Context, ch string, payload []byte) error {
	if m.block != nil {
		<-m.block
	}
	m.out <- published{channel: ch, payload: payload}
	return nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func decode(t *testing.T, b []byte) frame {
	t.Helper()
	var f frame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestBus_StudentActivityGoesToMonitorRoomAndMirror(t *testing.T) {
	fan := &fakeFanout{}
	mirror := &fakeMirror{out: make(chan published, 4)}
	bus := NewBus(fan, mirror, 4, zerolog.Nop())
	defer bus.Close()

	examID := uuid.New()
	qid := uuid.New()
	bus.StudentActivity(context.Background(), model.Activity{
		Type:        model.ActivityAnswerSubmitted,
		StudentID:   42,
		StudentName: "Ayu",
		ExamID:      examID,
		QuestionID:  &qid,
	})

	require.Len(t, fan.sent, 1)
	assert.Equal(t, room.StudentRoom(42), fan.sent[0].target)

	f := decode(t, fan.sent[0].frame)
	assert.Equal(t, "student-activity", f.Event)
	var a map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &a))
	assert.Equal(t, "answer-submitted", a["type"])
	assert.Equal(t, "Ayu", a["studentName"])
	assert.Equal(t, qid.String(), a["questionId"])
	assert.NotEmpty(t, a["timestamp"])

	select {
	case p := <-mirror.out:
		assert.Equal(t, "exam:"+examID.String()+":monitor", p.channel)
		assert.Equal(t, fan.sent[0].frame, p.payload)
	case <-time.After(time.Second):
		t.Fatal("activity was not mirrored")
	}
}

func TestBus_NotifyTargetsGradeRoom(t *testing.T) {
	fan := &fakeFanout{}
	bus := NewBus(fan, nil, 0, zerolog.Nop())
	defer bus.Close()

	examID := uuid.New()
	n := bus.Notify(context.Background(), NewExamNotification(examID, 10, "Physics"))
	assert.Equal(t, 1, n)

	require.Len(t, fan.sent, 1)
	assert.Equal(t, "grade-10", fan.sent[0].target)
	f := decode(t, fan.sent[0].frame)
	assert.Equal(t, "notification", f.Event)

	var got map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, "new-exam", got["type"])
	assert.Equal(t, "A new Physics exam is available for you!", got["message"])
	assert.Equal(t, examID.String(), got["examId"])
	assert.NotContains(t, got, "GradeLevel")
}

func TestBus_TickAndFinishedGoToStudent(t *testing.T) {
	fan := &fakeFanout{}
	bus := NewBus(fan, nil, 0, zerolog.Nop())
	defer bus.Close()

	attemptID := uuid.New()
	bus.Tick(context.Background(), 7, attemptID, 90*time.Second+400*time.Millisecond)
	bus.Finished(context.Background(), &model.Result{
		AttemptID:        attemptID,
		StudentID:        7,
		TotalPoints:      3,
		MaxPoints:        4,
		PercentageScore:  75,
		IsPassed:         true,
		TimeSpentSeconds: 125,
	})

	require.Len(t, fan.sent, 2)
	assert.Equal(t, 7, fan.sent[0].userID)
	tick := decode(t, fan.sent[0].frame)
	assert.Equal(t, "clock-tick", tick.Event)
	assert.JSONEq(t, `{"attemptId":"`+attemptID.String()+`","remainingSeconds":90}`, string(tick.Data))

	graded := decode(t, fan.sent[1].frame)
	assert.Equal(t, "attempt-graded", graded.Event)
	var g map[string]any
	require.NoError(t, json.Unmarshal(graded.Data, &g))
	assert.Equal(t, 75.0, g["percentageScore"])
	assert.Equal(t, "2m 5s", g["formattedTimeSpent"])
}

func TestBus_MirrorOverflowNeverBlocks(t *testing.T) {
	fan := &fakeFanout{}
	mirror := &fakeMirror{out: make(chan published, 16), block: make(chan struct{})}
	bus := NewBus(fan, mirror, 1, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.StudentActivity(context.Background(), model.Activity{StudentID: 1, ExamID: uuid.New()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a stalled mirror")
	}
	assert.Len(t, fan.sent, 10)

	close(mirror.block)
	bus.Close()
	assert.LessOrEqual(t, len(mirror.out), 2)

	bus.StudentActivity(context.Background(), model.Activity{StudentID: 1})
	bus.Close()
}

type journalMirror struct {
	fakeMirror
	recorded chan model.Activity
}

func (m *journalMirror) Record(_ context.Context, a model.Activity) error {
	m.recorded <- a
	return nil
}

func TestBus_ActivityIsJournaledAfterPublish(t *testing.T) {
	fan := &fakeFanout{}
	mirror := &journalMirror{
		fakeMirror: fakeMirror{out: make(chan published, 4)},
		recorded:   make(chan model.Activity, 4),
	}
	bus := NewBus(fan, mirror, 4, zerolog.Nop())

	attemptID := uuid.New()
	bus.StudentActivity(context.Background(), model.Activity{
		Type:      model.ActivityAttemptStarted,
		StudentID: 9,
		ExamID:    uuid.New(),
		AttemptID: attemptID,
	})
	bus.Notify(context.Background(), NewExamNotification(uuid.New(), 10, "Biology"))
	bus.Close()

	require.Len(t, mirror.recorded, 1)
	got := <-mirror.recorded
	assert.Equal(t, attemptID, got.AttemptID)
	assert.Equal(t, model.ActivityAttemptStarted, got.Type)
	assert.False(t, got.Timestamp.IsZero())
	assert.Len(t, mirror.out, 1)
}
