package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/config"
)

type fakeFeed struct {
	channel string
	frames  chan []byte
}

func (f *fakeFeed) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	f.channel = channel
	return f.frames, nil
}

type fakePresence map[int]bool

func (p fakePresence) Online(id int) bool { return p[id] }

func TestMonitor_SnapshotThenRelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Open(ctx, studentID(1), f.exam.ID)
	require.NoError(t, err)
	a, err := f.manager.Open(ctx, studentID(2), f.exam.ID)
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, studentID(2), a.ID)
	require.NoError(t, err)

	feed := &fakeFeed{frames: make(chan []byte, 1)}
	h := NewMonitorHandler(feed, f.catalog, f.manager, fakePresence{2: true}, zerolog.Nop())

	r := gin.New()
	r.GET("/monitor/:id", h.MonitorExamSSE)

	reqCtx, cancel := context.WithCancel(ctx)
	req := httptest.NewRequest(http.MethodGet, "/monitor/"+f.exam.ID.String(), nil).WithContext(reqCtx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	feed.frames <- []byte(`{"event":"student-activity","data":{"type":"answer-submitted"}}`)
	// The buffered frame is consumed once the relay loop runs.
	require.Eventually(t, func() bool { return len(feed.frames) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.Equal(t, config.CacheKey.ExamMonitorChannel(f.exam.ID.String()), feed.channel)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"))
	assert.Contains(t, body, "event:snapshot")
	assert.Contains(t, body, `"opened":2`)
	assert.Contains(t, body, `"in_progress":1`)
	assert.Contains(t, body, `"online":1`)
	assert.True(t, strings.Contains(body, `data: {"event":"student-activity"`))
}

func TestMonitor_UnknownExam(t *testing.T) {
	f := newFixture(t)
	h := NewMonitorHandler(&fakeFeed{}, f.catalog, f.manager, fakePresence{}, zerolog.Nop())

	r := gin.New()
	r.GET("/monitor/:id", h.MonitorExamSSE)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/monitor/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
