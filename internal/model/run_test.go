package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestRunResultStatus(t *testing.T) {
	t.Parallel()

	var nilResult *RunResult
	assert.Equal(t, RunStatusFailed, nilResult.Status())
	assert.Equal(t, RunStatusComplete, (&RunResult{Inserted: 3}).Status())
	assert.Equal(t, RunStatusFailed, (&RunResult{Error: "context canceled"}).Status())
}
