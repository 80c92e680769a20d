package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/scoring"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/session"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

// apiError is a domain error resolved to its transport representation.
type apiError struct {
	status int
	code   response.ErrCode
	fields map[string]string
}

// classify maps core errors to a status and error code. Order matters:
// a double submit wraps both ErrSessionClosed and ErrDuplicateSubmission.
func classify(err error) apiError {
	var ve *session.ValidationError
	var incomplete *scoring.IncompleteAttemptError

	switch {
	case errors.As(err, &ve):
		return apiError{http.StatusBadRequest, response.ErrValidation, map[string]string{ve.Field: ve.Reason}}
	case errors.As(err, &incomplete):
		ids := make([]string, len(incomplete.Missing))
		for i, id := range incomplete.Missing {
			ids[i] = id.String()
		}
		return apiError{http.StatusUnprocessableEntity, response.ErrIncompleteAttempt, map[string]string{"missing": strings.Join(ids, ",")}}
	case errors.Is(err, scoring.ErrDuplicateSubmission):
		return apiError{status: http.StatusConflict, code: response.ErrDuplicateSubmission}
	case errors.Is(err, session.ErrSessionClosed):
		return apiError{status: http.StatusConflict, code: response.ErrSessionClosed}
	case errors.Is(err, session.ErrAlreadyStarted):
		return apiError{status: http.StatusConflict, code: response.ErrAlreadyStarted}
	case errors.Is(err, session.ErrNotStarted):
		return apiError{status: http.StatusConflict, code: response.ErrAttemptNotStarted}
	case errors.Is(err, session.ErrAttemptExists):
		return apiError{status: http.StatusConflict, code: response.ErrAttemptExists}
	case errors.Is(err, session.ErrAttemptNotFound):
		return apiError{status: http.StatusNotFound, code: response.ErrAttemptNotFound}
	case errors.Is(err, session.ErrNotEligible):
		return apiError{status: http.StatusForbidden, code: response.ErrExamNotAvailable}
	case errors.Is(err, session.ErrNotPersisted):
		return apiError{status: http.StatusServiceUnavailable, code: response.ErrResultNotPersisted}
	case errors.Is(err, scoring.ErrNoQuestions):
		return apiError{status: http.StatusConflict, code: response.ErrNoQuestions}
	case errors.Is(err, service.ErrExamNotFound):
		return apiError{status: http.StatusNotFound, code: response.ErrExamNotFound}
	case errors.Is(err, repository.ErrResultNotFound):
		return apiError{status: http.StatusNotFound, code: response.ErrNotFound}
	case errors.Is(err, repository.ErrFeedbackExists):
		return apiError{status: http.StatusConflict, code: response.ErrFeedbackExists}
	default:
		return apiError{status: http.StatusInternalServerError, code: response.ErrInternal}
	}
}

// fail writes the envelope for err. Unclassified errors are logged.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	e := classify(err)
	if e.status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	if e.fields != nil {
		response.FailWithFields(c, e.status, e.code, e.fields)
		return
	}
	response.Fail(c, e.status, e.code)
}

// errorFrame renders err as a WebSocket error event.
func errorFrame(err error) []byte {
	e := classify(err)
	return ws.EncodeError(string(e.code), response.GetMessage(e.code), e.fields)
}

// codeFrame renders a bare error code as a WebSocket error event.
func codeFrame(code response.ErrCode, fields map[string]string) []byte {
	return ws.EncodeError(string(code), response.GetMessage(code), fields)
}
