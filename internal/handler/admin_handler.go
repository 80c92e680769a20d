package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/validator"
)

// ResultQueries is the supervisor read side of results. *service.ResultService implements it.
type ResultQueries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.ResultSummary, *response.Pagination, error)
	AddFeedback(ctx context.Context, id uuid.UUID, feedback string, supervisorID int) error
}

// CatalogRefresher reloads an exam's cached catalog entries.
type CatalogRefresher interface {
	ExamLookup
	Invalidate(ctx context.Context, examID uuid.UUID) error
	Warm(ctx context.Context, exam *model.Exam) error
}

// AdminHandler handles supervisor endpoints: results, feedback, notifications.
type AdminHandler struct {
	results  ResultQueries
	exams    CatalogRefresher
	attempts AttemptLister
	notifier Notifier
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(results ResultQueries, exams CatalogRefresher, attempts AttemptLister, notifier Notifier, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		results:  results,
		exams:    exams,
		attempts: attempts,
		notifier: notifier,
		log:      log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListExamResults godoc
// GET /api/v1/admin/exams/:id/results?page=1&per_page=20
func (h *AdminHandler) ListExamResults(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(response.DefaultPerPage)))

	results, pagination, err := h.results.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if results == nil {
		results = []repository.ResultSummary{}
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// ListLiveAttempts godoc
// GET /api/v1/admin/exams/:id/attempts
// Returns the attempts currently held in memory for the exam.
func (h *AdminHandler) ListLiveAttempts(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	list := h.attempts.ListByExam(examID)
	views := make([]attemptView, len(list))
	for i, a := range list {
		views[i] = newAttemptView(a)
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": views})
}

// GetResult godoc
// GET /api/v1/admin/results/:id
func (h *AdminHandler) GetResult(c *gin.Context) {
	resultID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.results.GetByID(c.Request.Context(), resultID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// AddFeedback godoc
// POST /api/v1/admin/results/:id/feedback
// Feedback is written once; a second attempt yields FEEDBACK_EXISTS.
func (h *AdminHandler) AddFeedback(c *gin.Context) {
	id, ok := identityOrAbort(c)
	if !ok {
		return
	}
	resultID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.AddFeedbackRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.results.AddFeedback(c.Request.Context(), resultID, req.Feedback, id.ID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"result_id": resultID, "feedback": req.Feedback})
}

// NotifyExam godoc
// POST /api/v1/admin/notifications
// Announces an exam to every connected student of a grade.
func (h *AdminHandler) NotifyExam(c *gin.Context) {
	var req model.NotifyExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	delivered, err := announce(c.Request.Context(), h.exams, h.notifier, uuid.MustParse(req.ExamID), req.GradeLevel, req.Subject)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"delivered": delivered})
}

// RefreshExamCache godoc
// POST /api/v1/admin/exams/:id/cache/refresh
// Drops the cached exam, questions and paper and reloads them from the catalog.
// Inactive exams are dropped but not reloaded.
func (h *AdminHandler) RefreshExamCache(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.exams.Invalidate(ctx, examID); err != nil {
		fail(c, h.log, err)
		return
	}
	exam, err := h.exams.GetExam(ctx, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if !exam.IsActive {
		response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "warmed": false})
		return
	}
	if err := h.exams.Warm(ctx, exam); err != nil {
		fail(c, h.log, err)
		return
	}

	h.log.Info().Str("exam_id", examID.String()).Msg("Exam cache refreshed")
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "warmed": true})
}
