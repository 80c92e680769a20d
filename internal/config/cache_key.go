package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamCatalogKey returns the cache key for an exam's metadata
func (r *CacheKeyStruct) ExamCatalogKey(examID string) string {
	return fmt.Sprintf("exam:%s:catalog", examID)
}

// ExamQuestionsKey returns the cache key for an exam's questions, answer key included
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// ExamPaperKey returns the cache key for the student-facing paper
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// PendingResultKey returns the cache key for a compiled result awaiting persistence
func (r *CacheKeyStruct) PendingResultKey(resultID string) string {
	return fmt.Sprintf("result:%s:pending", resultID)
}

// StudentAnswersKey returns the cache key for a student's latest answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
