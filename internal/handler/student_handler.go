package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stemsi/exstem-live/internal/validator"
)

// PaperService serves the student-facing catalog.
type PaperService interface {
	GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error)
	ListForGrade(ctx context.Context, gradeLevel int) ([]model.Exam, error)
}

// StudentResultLister lists a student's persisted results.
type StudentResultLister interface {
	ListByStudent(ctx context.Context, studentID int) ([]repository.ResultSummary, error)
}

// StudentHandler handles the student exam-taking endpoints.
type StudentHandler struct {
	sessions AttemptService
	papers   PaperService
	results  StudentResultLister
	log      zerolog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(sessions AttemptService, papers PaperService, results StudentResultLister, log zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		sessions: sessions,
		papers:   papers,
		results:  results,
		log:      log.With().Str("component", "student_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/student/exams
// Returns the active exams offered to the student's grade.
func (h *StudentHandler) ListExams(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}

	grade, hasGrade := id.GradeLevel()
	if !hasGrade {
		response.Success(c, http.StatusOK, gin.H{"exams": []model.Exam{}})
		return
	}

	exams, err := h.papers.ListForGrade(c.Request.Context(), grade)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempt
// Opens and starts the student's attempt. Repeating the call while the
// attempt is running returns it unchanged.
func (h *StudentHandler) StartAttempt(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, created, err := openAndStart(c.Request.Context(), h.sessions, id, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"attempt": newAttemptView(attempt)})
}

// GetAttempt godoc
// GET /api/v1/student/exams/:exam_id/attempt
// Covers page reloads: answered questions and the remaining time.
func (h *StudentHandler) GetAttempt(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.sessions.ForStudentExam(id.ID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": newAttemptView(attempt)})
}

// GetPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the cached paper. The student must hold a running attempt.
func (h *StudentHandler) GetPaper(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.sessions.ForStudentExam(id.ID, examID)
	if errors.Is(err, session.ErrAttemptNotFound) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if attempt.Status.Terminal() {
		fail(c, h.log, session.ErrSessionClosed)
		return
	}

	paper, err := h.papers.GetPaper(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// SaveAnswer godoc
// PUT /api/v1/student/exams/:exam_id/answers
// Records one answer, replacing any earlier answer to the same question.
func (h *StudentHandler) SaveAnswer(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.sessions.ForStudentExam(id.ID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	if err := h.sessions.Answer(c.Request.Context(), id, attempt.ID, uuid.MustParse(req.QuestionID), req.Answer); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the attempt. A result that could not be queued for storage is still
// returned, with 202 and persisted=false.
func (h *StudentHandler) Submit(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.sessions.ForStudentExam(id.ID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	result, err := h.sessions.Submit(c.Request.Context(), id, attempt.ID)
	if errors.Is(err, session.ErrNotPersisted) && result != nil {
		response.Success(c, http.StatusAccepted, gin.H{"result": result, "persisted": false})
		return
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result, "persisted": true})
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the compiled result of the student's finished attempt.
func (h *StudentHandler) GetResult(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.sessions.ForStudentExam(id.ID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	result, err := h.sessions.Result(id, attempt.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// RetryPersist godoc
// POST /api/v1/student/exams/:exam_id/result/persist
// Re-queues a compiled result whose earlier persistence failed.
func (h *StudentHandler) RetryPersist(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.sessions.ForStudentExam(id.ID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if err := h.sessions.PersistResult(c.Request.Context(), attempt.ID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"persisted": true})
}

// ListResults godoc
// GET /api/v1/student/results
func (h *StudentHandler) ListResults(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}

	results, err := h.results.ListByStudent(c.Request.Context(), id.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if results == nil {
		results = []repository.ResultSummary{}
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}
