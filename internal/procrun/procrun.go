// Package procrun launches external commands and streams their output into
// the structured log.
package procrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// shellVarPrefix tags the line ShellVar looks for in the shell output.
const shellVarPrefix = "BLJ_VAR_"

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Label string
	Code  int
	Err   error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Label, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner executes commands. Background submissions made with Start are
// tracked so callers can Wait for them before exiting.
type Runner struct {
	shell string
	wg    sync.WaitGroup
}

// New returns a Runner that uses bash for shell helpers.
func New() *Runner {
	return &Runner{shell: "bash"}
}

// Run starts args[0] with the remaining arguments, logs every non-blank
// output line under label and waits for the command to exit.
func (r *Runner) Run(ctx context.Context, label string, args ...string) error {
	return r.run(ctx, label, nil, args)
}

func (r *Runner) run(ctx context.Context, label string, onLine func(string), args []string) error {
	if len(args) == 0 {
		return errors.New("procrun: no command given")
	}
	logger := ctxlog.FromContext(ctx).With("process", label)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	logger.Debug("Starting process.", "command", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", label, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		return stream(stdout, func(line string) {
			logger.Info(fmt.Sprintf("[%s] %s", label, line))
			if onLine != nil {
				onLine(line)
			}
		})
	})
	g.Go(func() error {
		return stream(stderr, func(line string) {
			logger.Warn(fmt.Sprintf("[%s] %s", label, line))
		})
	})
	streamErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Label: label, Code: exitErr.ExitCode(), Err: err}
		}
		return fmt.Errorf("%s failed: %w", label, err)
	}
	if streamErr != nil {
		return fmt.Errorf("failed to read output of %s: %w", label, streamErr)
	}
	logger.Debug("Process finished.")
	return nil
}

func stream(rd io.Reader, emit func(string)) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			emit(line)
		}
	}
	return sc.Err()
}

// Start runs the command in the background. Failures are logged, never
// returned.
func (r *Runner) Start(ctx context.Context, label string, args ...string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Run(ctx, label, args...); err != nil {
			ctxlog.FromContext(ctx).Warn("Background process failed.", "process", label, "error", err)
		}
	}()
}

// Wait blocks until every command launched with Start has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// ShellVar returns the value of an environment variable as seen by the
// runner shell, empty when unset.
func (r *Runner) ShellVar(ctx context.Context, name string) (string, error) {
	if !varName.MatchString(name) {
		return "", fmt.Errorf("invalid shell variable name %q", name)
	}
	key := shellVarPrefix + name + "="
	script := fmt.Sprintf(`echo "%s${%s}"`, key, name)

	var value string
	found := false
	err := r.run(ctx, "shell-var", func(line string) {
		if !found && strings.HasPrefix(line, key) {
			value = strings.TrimPrefix(line, key)
			found = true
		}
	}, []string{r.shell, "-c", script})
	if err != nil {
		return "", err
	}
	return value, nil
}
