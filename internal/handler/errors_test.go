package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/scoring"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/session"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

func TestClassify(t *testing.T) {
	missing := uuid.New()
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"validation", &session.ValidationError{Field: "answer", Reason: "is required"}, http.StatusBadRequest, response.ErrValidation},
		{"incomplete", &scoring.IncompleteAttemptError{Missing: []uuid.UUID{missing}}, http.StatusUnprocessableEntity, response.ErrIncompleteAttempt},
		{"double submit", errors.Join(session.ErrSessionClosed, scoring.ErrDuplicateSubmission), http.StatusConflict, response.ErrDuplicateSubmission},
		{"closed", session.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
		{"already started", session.ErrAlreadyStarted, http.StatusConflict, response.ErrAlreadyStarted},
		{"not started", session.ErrNotStarted, http.StatusConflict, response.ErrAttemptNotStarted},
		{"exists", session.ErrAttemptExists, http.StatusConflict, response.ErrAttemptExists},
		{"attempt missing", session.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
		{"not eligible", session.ErrNotEligible, http.StatusForbidden, response.ErrExamNotAvailable},
		{"not persisted", fmt.Errorf("%w: boom", session.ErrNotPersisted), http.StatusServiceUnavailable, response.ErrResultNotPersisted},
		{"no questions", scoring.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
		{"wrapped exam missing", fmt.Errorf("get exam: %w", service.ErrExamNotFound), http.StatusNotFound, response.ErrExamNotFound},
		{"result missing", repository.ErrResultNotFound, http.StatusNotFound, response.ErrNotFound},
		{"feedback exists", repository.ErrFeedbackExists, http.StatusConflict, response.ErrFeedbackExists},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.status, got.status)
			assert.Equal(t, tt.code, got.code)
		})
	}

	assert.Equal(t, missing.String(), classify(&scoring.IncompleteAttemptError{Missing: []uuid.UUID{missing}}).fields["missing"])
}

func TestErrorFrame(t *testing.T) {
	var env struct {
		Event ws.Event     `json:"event"`
		Data  ws.ErrorData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(errorFrame(&session.ValidationError{Field: "question_id", Reason: "is required"}), &env))
	assert.Equal(t, ws.EventError, env.Event)
	assert.Equal(t, string(response.ErrValidation), env.Data.Code)
	assert.Equal(t, "is required", env.Data.Fields["question_id"])
	assert.Equal(t, response.GetMessage(response.ErrValidation), env.Data.Message)
}
