package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// AnswerPayload is the queued unit consumed by the answer worker.
type AnswerPayload struct {
	AttemptID  string          `json:"attempt_id"`
	ExamID     string          `json:"exam_id"`
	StudentID  int             `json:"student_id"`
	QuestionID string          `json:"q_id"`
	Answer     json.RawMessage `json:"answer"`
}

// AnswerService buffers the latest answers in Redis and queues them for PostgreSQL.
type AnswerService struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(rdb *redis.Client, ttl time.Duration) *AnswerService {
	return &AnswerService{rdb: rdb, ttl: ttl}
}

// RecordAnswer stores the answer in the student's hash and queues it.
func (s *AnswerService) RecordAnswer(ctx context.Context, attempt *model.Attempt, questionID uuid.UUID, value model.Answer) error {
	answerJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	payload, err := json.Marshal(AnswerPayload{
		AttemptID:  attempt.ID.String(),
		ExamID:     attempt.ExamID.String(),
		StudentID:  attempt.StudentID,
		QuestionID: questionID.String(),
		Answer:     answerJSON,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	key := config.CacheKey.StudentAnswersKey(attempt.ExamID.String(), attempt.StudentID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, questionID.String(), answerJSON)
	pipe.Expire(ctx, key, s.ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue answer: %w", err)
	}
	return nil
}
