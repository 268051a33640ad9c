package procrun

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type safeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func testContext(buf *safeBuffer) context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(buf, nil)))
}

func TestRun_StreamsOutputAndSkipsBlankLines(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	buf := &safeBuffer{}
	r := New()

	// --- Act ---
	err := r.Run(testContext(buf), "echo", "bash", "-c", "echo hello; echo; echo oops 1>&2")

	// --- Assert ---
	require.NoError(t, err)
	logs := buf.String()
	assert.Contains(t, logs, "[echo] hello")
	assert.Contains(t, logs, "[echo] oops")
	assert.Contains(t, logs, "level=WARN")
	assert.NotContains(t, logs, `msg="[echo] "`)
}

func TestRun_NonZeroExit(t *testing.T) {
	t.Parallel()

	err := New().Run(testContext(&safeBuffer{}), "fail", "bash", "-c", "exit 3")

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "fail exited with code 3", exitErr.Error())
}

func TestRun_StartFailure(t *testing.T) {
	t.Parallel()

	err := New().Run(testContext(&safeBuffer{}), "missing", filepath.Join(t.TempDir(), "no-such-binary"))

	require.Error(t, err)
	var exitErr *ExitError
	assert.NotErrorAs(t, err, &exitErr)
	assert.Contains(t, err.Error(), "failed to start missing")
}

func TestStart_WaitsForBackgroundCommands(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := New()
	target := filepath.Join(t.TempDir(), "done")

	// --- Act ---
	r.Start(testContext(&safeBuffer{}), "touch", "touch", target)
	r.Wait()

	// --- Assert ---
	_, err := os.Stat(target)
	require.NoError(t, err)
}

func TestShellVar(t *testing.T) {
	// Uses process environment, so not parallel.
	t.Setenv("BLJ_TEST_SHELL_VAR", "/opt/rdp")
	ctx := testContext(&safeBuffer{})
	r := New()

	value, err := r.ShellVar(ctx, "BLJ_TEST_SHELL_VAR")
	require.NoError(t, err)
	assert.Equal(t, "/opt/rdp", value)

	value, err = r.ShellVar(ctx, "BLJ_TEST_UNSET_VAR")
	require.NoError(t, err)
	assert.Empty(t, value)

	_, err = r.ShellVar(ctx, "bad;name")
	require.Error(t, err)
}
