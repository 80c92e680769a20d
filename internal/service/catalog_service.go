package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

var ErrExamNotFound = errors.New("exam not found")

// ExamReader is the read side of the exam table.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListActive(ctx context.Context) ([]model.Exam, error)
	ListActiveByGrade(ctx context.Context, gradeLevel int) ([]model.Exam, error)
}

// QuestionReader is the read side of the question table.
type QuestionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// CatalogService serves exam metadata and questions from Redis, falling back
// to PostgreSQL and refilling the cache on a miss.
type CatalogService struct {
	exams     ExamReader
	questions QuestionReader
	rdb       *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(exams ExamReader, questions QuestionReader, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "catalog_service").Logger(),
	}
}

// GetExam returns exam metadata.
func (s *CatalogService) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	var exam model.Exam
	if s.readCache(ctx, config.CacheKey.ExamCatalogKey(examID.String()), &exam) {
		return &exam, nil
	}

	e, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	s.writeCache(ctx, config.CacheKey.ExamCatalogKey(examID.String()), e)
	return e, nil
}

// GetQuestions returns the exam's questions with answer keys, in display order.
func (s *CatalogService) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	var qs []model.Question
	if s.readCache(ctx, config.CacheKey.ExamQuestionsKey(examID.String()), &qs) {
		return qs, nil
	}

	qs, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	s.writeCache(ctx, config.CacheKey.ExamQuestionsKey(examID.String()), qs)
	return qs, nil
}

// GetPaper returns the student-facing paper of an active exam.
func (s *CatalogService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	if s.readCache(ctx, config.CacheKey.ExamPaperKey(examID.String()), &paper) {
		return &paper, nil
	}

	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, ErrExamNotFound
	}
	qs, err := s.GetQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	p := model.NewExamPaper(exam, qs)
	s.writeCache(ctx, config.CacheKey.ExamPaperKey(examID.String()), p)
	return p, nil
}

// ListForGrade returns the active exams offered to a grade.
func (s *CatalogService) ListForGrade(ctx context.Context, gradeLevel int) ([]model.Exam, error) {
	exams, err := s.exams.ListActiveByGrade(ctx, gradeLevel)
	if err != nil {
		return nil, fmt.Errorf("list exams for grade: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Warm loads one exam's metadata, questions and paper into Redis in a single pipeline.
func (s *CatalogService) Warm(ctx context.Context, exam *model.Exam) error {
	if s.rdb == nil {
		return nil
	}
	qs, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(qs) == 0 {
		return fmt.Errorf("exam %s: no questions", exam.ID)
	}

	examJSON, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	questionsJSON, err := json.Marshal(qs)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	paperJSON, err := json.Marshal(model.NewExamPaper(exam, qs))
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	id := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamCatalogKey(id), examJSON, s.ttl)
	pipe.Set(ctx, config.CacheKey.ExamQuestionsKey(id), questionsJSON, s.ttl)
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(id), paperJSON, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().Str("exam_id", id).Int("questions", len(qs)).Msg("Cache warmed")
	return nil
}

// PrewarmAll loads every active exam into Redis on startup.
func (s *CatalogService) PrewarmAll(ctx context.Context) error {
	exams, err := s.exams.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.Warm(ctx, &exams[i]); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

// Invalidate drops the cached copies of an exam.
func (s *CatalogService) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if s.rdb == nil {
		return nil
	}
	id := examID.String()
	return s.rdb.Del(ctx,
		config.CacheKey.ExamCatalogKey(id),
		config.CacheKey.ExamQuestionsKey(id),
		config.CacheKey.ExamPaperKey(id),
	).Err()
}

// readCache reports whether key was found and decoded. Redis errors count as a miss.
func (s *CatalogService) readCache(ctx context.Context, key string, dst any) bool {
	if s.rdb == nil {
		return false
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (s *CatalogService) writeCache(ctx context.Context, key string, v any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
