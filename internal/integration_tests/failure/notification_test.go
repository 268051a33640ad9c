package failure

import (
	"errors"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/scheduler"
	"github.com/specialistvlad/biolockgo/internal/status"
	"github.com/specialistvlad/biolockgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipeline = `
pipeline {
  name                    = "gut"
  disable_implicit_stages = true
}

stage "Alpha" {}
stage "Beta" {}
stage "Notify" {}
`

// TestFailure_RunsNotificationStage makes the notification stage report a
// failure of an earlier stage, with the failed stage on its context.
func TestFailure_RunsNotificationStage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := testutil.NewWorkspace(t)
	journal := &testutil.Journal{}
	mod := &testutil.ProbeModule{
		IDs:          []string{"Alpha", "Beta", "Notify"},
		Journal:      journal,
		Fail:         map[string]error{"Beta": errors.New("classifier crashed")},
		Notification: "Notify",
	}

	// --- Act ---
	result := ws.Run(t, pipeline, testutil.HarnessOptions{}, mod)

	// --- Assert ---
	var stageErr *scheduler.StageError
	require.ErrorAs(t, result.Err, &stageErr)
	assert.Equal(t, "1_Beta", stageErr.Stage)
	assert.ErrorContains(t, result.Err, "classifier crashed")
	assert.Equal(t, []string{"Alpha", "Beta", "Notify:failure:1_Beta"}, journal.Calls())
	testutil.AssertPipelineMarker(t, result.Root(), status.FailedMarker)
	assert.Contains(t, result.LogOutput, "Pipeline failed.")
}

// TestFailure_NotificationStageFailureIsSwallowed keeps the original error
// when the notification stage itself is the one that failed.
func TestFailure_NotificationStageFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := testutil.NewWorkspace(t)
	journal := &testutil.Journal{}
	mod := &testutil.ProbeModule{
		IDs:          []string{"Alpha", "Beta", "Notify"},
		Journal:      journal,
		Fail:         map[string]error{"Notify": errors.New("smtp down")},
		Notification: "Notify",
	}

	// --- Act ---
	result := ws.Run(t, pipeline, testutil.HarnessOptions{}, mod)

	// --- Assert ---
	require.ErrorContains(t, result.Err, "smtp down")
	assert.Equal(t, []string{"Alpha", "Beta", "Notify"}, journal.Calls())
	assert.Contains(t, result.LogOutput, "Failure notification failed.")
}

// TestFailure_NotificationStageIsResetOnRestart reruns the notification
// stage even though it completed in the failed run.
func TestFailure_NotificationStageIsResetOnRestart(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := testutil.NewWorkspace(t)
	journal := &testutil.Journal{}
	ids := []string{"Alpha", "Notify", "Beta"}
	reordered := `
pipeline {
  name                    = "gut"
  disable_implicit_stages = true
}

stage "Alpha" {}
stage "Notify" {}
stage "Beta" {}
`
	failing := &testutil.ProbeModule{IDs: ids, Journal: journal, Fail: map[string]error{"Beta": errors.New("boom")}, Notification: "Notify"}
	require.Error(t, ws.Run(t, reordered, testutil.HarnessOptions{}, failing).Err)

	// --- Act ---
	healthy := &testutil.ProbeModule{IDs: ids, Journal: journal, Notification: "Notify"}
	result := ws.Run(t, reordered, testutil.HarnessOptions{Restart: true}, healthy)

	// --- Assert ---
	require.NoError(t, result.Err, result.LogOutput)
	assert.Equal(t, []string{"Alpha", "Notify", "Beta", "Notify:failure:2_Beta", "Notify", "Beta"}, journal.Calls())
}
