package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/model"
)

func TestActivityRows(t *testing.T) {
	at := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)
	a := model.Activity{
		Type:      model.ActivityAttemptSubmitted,
		StudentID: 12,
		ExamID:    uuid.New(),
		AttemptID: uuid.New(),
		Timestamp: at,
	}
	raw := `{"type":"attempt-submitted"}`

	rows := activityRows([]queuedActivity{{activity: a, raw: raw}})
	require.Len(t, rows, 1)
	require.Len(t, rows[0], len(activityColumns))
	assert.Equal(t, a.AttemptID, rows[0][0])
	assert.Equal(t, a.ExamID, rows[0][1])
	assert.Equal(t, 12, rows[0][2])
	assert.Equal(t, "attempt-submitted", rows[0][3])
	assert.Equal(t, raw, string(rows[0][4].([]byte)))
	assert.Equal(t, at, rows[0][5])
	assert.Empty(t, activityRows(nil))
}
