package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/events"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/room"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stemsi/exstem-live/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type fakeExams struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExams) ListActive(context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range f.exams {
		if e.IsActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeExams) ListActiveByGrade(_ context.Context, grade int) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range f.exams {
		if e.IsActive && e.GradeLevel == grade {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeQuestions struct {
	questions map[uuid.UUID][]model.Question
}

func (f *fakeQuestions) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.questions[examID], nil
}

type flakyResults struct {
	mu    sync.Mutex
	fail  bool
	saved []*model.Result
}

func (r *flakyResults) SaveResult(_ context.Context, res *model.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("redis down")
	}
	r.saved = append(r.saved, res)
	return nil
}

func (r *flakyResults) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

type fakeResultQueries struct {
	mu       sync.Mutex
	results  map[uuid.UUID]*model.Result
	feedback map[uuid.UUID]string
}

func (f *fakeResultQueries) GetByID(_ context.Context, id uuid.UUID) (*model.Result, error) {
	r, ok := f.results[id]
	if !ok {
		return nil, repository.ErrResultNotFound
	}
	return r, nil
}

func (f *fakeResultQueries) ListByExam(_ context.Context, examID uuid.UUID, page, perPage int) ([]repository.ResultSummary, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)
	var out []repository.ResultSummary
	for _, r := range f.results {
		if r.ExamID == examID {
			out = append(out, repository.ResultSummary{Result: *r, FormattedTimeSpent: r.FormattedTimeSpent()})
		}
	}
	return out, response.NewPagination(page, perPage, len(out)), nil
}

func (f *fakeResultQueries) ListByStudent(_ context.Context, studentID int) ([]repository.ResultSummary, error) {
	var out []repository.ResultSummary
	for _, r := range f.results {
		if r.StudentID == studentID {
			out = append(out, repository.ResultSummary{Result: *r})
		}
	}
	return out, nil
}

func (f *fakeResultQueries) AddFeedback(_ context.Context, id uuid.UUID, feedback string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.results[id]; !ok {
		return repository.ErrResultNotFound
	}
	if _, done := f.feedback[id]; done {
		return repository.ErrFeedbackExists
	}
	f.feedback[id] = feedback
	return nil
}

type fixture struct {
	engine    *gin.Engine
	auth      *service.AuthService
	catalog   *service.CatalogService
	manager   *session.Manager
	router    *room.Router
	bus       *events.Bus
	results   *flakyResults
	queries   *fakeResultQueries
	exam      *model.Exam
	questions []model.Question
}

func intPtr(v int) *int { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()

	exam := &model.Exam{
		ID:           uuid.New(),
		Title:        "Capitals",
		Subject:      "Geography",
		GradeLevel:   10,
		PassingScore: model.DefaultPassingScore,
		IsActive:     true,
	}
	questions := []model.Question{
		{ID: uuid.New(), ExamID: exam.ID, Type: model.QuestionTypeSingleChoice, Correct: model.ScalarAnswer("b"), Points: 1, OrderNum: 1,
			Options: []model.Option{{ID: "a", Text: "Bandung"}, {ID: "b", Text: "Jakarta"}}},
		{ID: uuid.New(), ExamID: exam.ID, Type: model.QuestionTypeTrueFalse, Correct: model.BoolAnswer(true), Points: 1, OrderNum: 2},
		{ID: uuid.New(), ExamID: exam.ID, Type: model.QuestionTypeOrderedSequence, Correct: model.SequenceAnswer("x", "y", "z"), Points: 2, OrderNum: 3},
	}

	catalog := service.NewCatalogService(
		&fakeExams{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}},
		&fakeQuestions{questions: map[uuid.UUID][]model.Question{exam.ID: questions}},
		nil, time.Minute, log,
	)

	rt := room.NewRouter(16, log)
	bus := events.NewBus(rt, nil, 0, log)
	results := &flakyResults{}
	manager := session.NewManager(session.Deps{
		Catalog:   catalog,
		Results:   results,
		Publisher: bus,
	}, 20*time.Millisecond, log)
	queries := &fakeResultQueries{results: map[uuid.UUID]*model.Result{}, feedback: map[uuid.UUID]string{}}

	t.Cleanup(func() {
		manager.Shutdown()
		rt.Close()
		bus.Close()
	})

	auth := service.NewAuthService("test-secret", time.Hour)
	student := NewStudentHandler(manager, catalog, queries, log)
	admin := NewAdminHandler(queries, catalog, manager, bus, log)
	live := NewLiveHandler(rt, manager, catalog, bus, log, nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())

	studentAPI := r.Group("/api/v1/student", middleware.RequireIdentity(auth), middleware.RequireStudent())
	studentAPI.GET("/exams", student.ListExams)
	studentAPI.POST("/exams/:exam_id/attempt", student.StartAttempt)
	studentAPI.GET("/exams/:exam_id/attempt", student.GetAttempt)
	studentAPI.GET("/exams/:exam_id/paper", student.GetPaper)
	studentAPI.PUT("/exams/:exam_id/answers", student.SaveAnswer)
	studentAPI.POST("/exams/:exam_id/submit", student.Submit)
	studentAPI.GET("/exams/:exam_id/result", student.GetResult)
	studentAPI.POST("/exams/:exam_id/result/persist", student.RetryPersist)
	studentAPI.GET("/results", student.ListResults)

	adminAPI := r.Group("/api/v1/admin", middleware.RequireIdentity(auth), middleware.RequireSupervisor())
	adminAPI.GET("/exams/:id/results", admin.ListExamResults)
	adminAPI.GET("/exams/:id/attempts", admin.ListLiveAttempts)
	adminAPI.GET("/results/:id", admin.GetResult)
	adminAPI.POST("/results/:id/feedback", admin.AddFeedback)
	adminAPI.POST("/notifications", admin.NotifyExam)
	adminAPI.POST("/exams/:id/cache/refresh", admin.RefreshExamCache)

	r.GET("/ws/v1/live", middleware.RequireIdentity(auth), live.Live)

	return &fixture{
		engine:    r,
		auth:      auth,
		catalog:   catalog,
		manager:   manager,
		router:    rt,
		bus:       bus,
		results:   results,
		queries:   queries,
		exam:      exam,
		questions: questions,
	}
}

func (f *fixture) token(t *testing.T, id model.Identity) string {
	t.Helper()
	tok, err := f.auth.GenerateToken(id)
	require.NoError(t, err)
	return tok
}

func studentID(id int) model.Identity {
	return model.Identity{ID: id, Name: "Siti", Role: model.RoleStudent, Grade: intPtr(10)}
}

func teacherID(id int) model.Identity {
	return model.Identity{ID: id, Name: "Pak Budi", Role: model.RoleTeacher}
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (f *fixture) do(t *testing.T, id model.Identity, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token(t, id))
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}
