package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/response"
)

// pendingResultTTL bounds how long a queued result stays readable from Redis.
const pendingResultTTL = 24 * time.Hour

// ResultService hands compiled results to the persistence queue and serves
// the read side for students and supervisors.
type ResultService struct {
	repo *repository.ResultRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(repo *repository.ResultRepository, rdb *redis.Client, log zerolog.Logger) *ResultService {
	return &ResultService{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "result_service").Logger(),
	}
}

// SaveResult caches the result and queues it for the result worker.
func (s *ResultService) SaveResult(ctx context.Context, result *model.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.PendingResultKey(result.ID.String()), raw, pendingResultTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue result: %w", err)
	}

	s.log.Debug().
		Str("result_id", result.ID.String()).
		Int("student_id", result.StudentID).
		Float64("score", result.PercentageScore).
		Msg("Result queued")
	return nil
}

// GetByID returns a result, falling back to the pending copy while the
// worker has not written it yet.
func (s *ResultService) GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, repository.ErrResultNotFound) {
		return nil, fmt.Errorf("get result: %w", err)
	}

	raw, rerr := s.rdb.Get(ctx, config.CacheKey.PendingResultKey(id.String())).Bytes()
	if rerr != nil {
		return nil, repository.ErrResultNotFound
	}
	var pending model.Result
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode pending result: %w", err)
	}
	return &pending, nil
}

// ListByExam returns a page of result summaries for an exam.
func (s *ResultService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.ResultSummary, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)
	list, total, err := s.repo.ListByExam(ctx, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	return list, response.NewPagination(page, perPage, total), nil
}

// ListByStudent returns every result of a student.
func (s *ResultService) ListByStudent(ctx context.Context, studentID int) ([]repository.ResultSummary, error) {
	return s.repo.ListByStudent(ctx, studentID)
}

// AddFeedback attaches supervisor feedback once.
func (s *ResultService) AddFeedback(ctx context.Context, id uuid.UUID, feedback string, supervisorID int) error {
	if err := s.repo.AddFeedback(ctx, id, feedback); err != nil {
		return err
	}
	s.log.Info().Str("result_id", id.String()).Int("supervisor_id", supervisorID).Msg("Feedback recorded")
	return nil
}
