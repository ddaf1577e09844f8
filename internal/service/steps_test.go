package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScriptStep_Run(t *testing.T) {
	t.Run("success - output captured in the workspace", func(t *testing.T) {
		// arrange
		ws := t.TempDir()
		var out bytes.Buffer
		step := ScriptStep{Name: "echo", Script: "echo hello && pwd", Timeout: 5 * time.Second}

		// act
		err := step.Run(context.Background(), &StepContext{Workspace: ws, Output: &out})

		// assert
		assert.NoError(t, err)
		assert.Contains(t, out.String(), "hello")
		assert.Contains(t, out.String(), ws)
	})
	t.Run("failure - non-zero exit", func(t *testing.T) {
		// arrange
		var out bytes.Buffer
		step := ScriptStep{Name: "fail", Script: "echo broken >&2; exit 3"}

		// act
		err := step.Run(context.Background(), &StepContext{Workspace: t.TempDir(), Output: &out})

		// assert
		assert.ErrorContains(t, err, "step 'fail' failed")
		assert.Contains(t, out.String(), "broken")
	})
	t.Run("failure - step timeout", func(t *testing.T) {
		// arrange
		var out bytes.Buffer
		step := ScriptStep{Name: "slow", Script: "sleep 5", Timeout: 50 * time.Millisecond}

		// act
		err := step.Run(context.Background(), &StepContext{Workspace: t.TempDir(), Output: &out})

		// assert
		var timeoutErr StepTimeoutError
		assert.True(t, errors.As(err, &timeoutErr))
		assert.Equal(t, "slow", timeoutErr.Step)
	})
	t.Run("failure - cancelled by caller", func(t *testing.T) {
		// arrange
		var out bytes.Buffer
		step := ScriptStep{Name: "slow", Script: "sleep 5", Timeout: time.Minute}
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		// act
		err := step.Run(ctx, &StepContext{Workspace: t.TempDir(), Output: &out})

		// assert
		var cancelErr RunCancelError
		assert.True(t, errors.As(err, &cancelErr))
	})
}
