package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/app"
	"github.com/specialistvlad/biolockgo/internal/hcl"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Workspace is the directory tree of an integration test: pipeline config,
// input sequences and the projects directory that receives pipeline roots.
type Workspace struct {
	Dir         string
	ConfigDir   string
	InputDir    string
	ProjectsDir string
}

// NewWorkspace creates an empty workspace under t.TempDir().
func NewWorkspace(t *testing.T) *Workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &Workspace{
		Dir:         dir,
		ConfigDir:   filepath.Join(dir, "config"),
		InputDir:    filepath.Join(dir, "input"),
		ProjectsDir: filepath.Join(dir, "projects"),
	}
	for _, d := range []string{ws.ConfigDir, ws.InputDir, ws.ProjectsDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return ws
}

// HarnessOptions selects the invocation mode.
type HarnessOptions struct {
	Restart bool
	// Direct runs only the stage with DirectOrdinal.
	Direct        bool
	DirectOrdinal int
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// Root is the pipeline root of the run, empty if no plan was built.
func (r *HarnessResult) Root() string {
	if r.App == nil || r.App.Plan() == nil {
		return ""
	}
	return r.App.Plan().Root
}

// Run writes pipelineHCL into the config directory and runs the app on it.
// A panic during startup is returned as the result error.
func (ws *Workspace) Run(t *testing.T, pipelineHCL string, opts HarnessOptions, modules ...registry.Module) *HarnessResult {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(ws.ConfigDir, "pipeline.hcl"), []byte(pipelineHCL), 0o644))

	direct := -1
	if opts.Direct {
		direct = opts.DirectOrdinal
	}
	cfg, err := app.NewConfig(app.Config{
		ConfigPath:    ws.ConfigDir,
		ProjectsDir:   ws.ProjectsDir,
		Restart:       opts.Restart,
		DirectOrdinal: direct,
		LogLevel:      "debug",
		LogFormat:     "text",
		PollInterval:  DefaultPollInterval,
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, cfg, hcl.NewLoader(), modules...)
	}()
	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	runErr := testApp.Run(context.Background())

	if os.Getenv("BIOLOCK_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}
	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}
