package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/status"
)

// DefaultInterval is the time between two polls.
const DefaultInterval = 60 * time.Second

// logEvery forces a status line after this many unchanged polls.
const logEvery = 10

// ScriptSource is the part of status.Store the monitor reads.
type ScriptSource interface {
	Scripts(ctx context.Context, dir string) ([]string, error)
	ScriptStates(ctx context.Context, dir string) (map[string]status.ScriptState, error)
	ScriptErrors(ctx context.Context, dir string) (map[string][]string, error)
}

// Observer receives the counts of every poll.
type Observer interface {
	BatchProgress(script string, c Counts)
}

// Batch is one MAIN_ script to wait for.
type Batch struct {
	// MainScript is the full path of the MAIN_ script.
	MainScript string
	// TimeoutMinutes bounds the wait; zero waits forever.
	TimeoutMinutes int
}

func (b Batch) dir() string  { return filepath.Dir(b.MainScript) }
func (b Batch) name() string { return filepath.Base(b.MainScript) }

// Counts summarizes the markers of a batch.
type Counts struct {
	Total   int
	Started int
	Success int
	Failed  int
}

// Running is the number of units started but not finished.
func (c Counts) Running() int { return c.Started - c.Success - c.Failed }

// Queued is the number of units not started yet.
func (c Counts) Queued() int { return c.Total - c.Started }

// Done reports whether every unit reached a terminal marker.
func (c Counts) Done() bool { return c.Success+c.Failed == c.Total }

// Progress carries log deduplication state between polls.
type Progress struct {
	last  string
	polls int
}

// Monitor polls script batches.
type Monitor struct {
	src      ScriptSource
	clock    Clock
	interval time.Duration
	observer Observer
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithObserver reports every poll to o.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// New returns a Monitor reading markers from src.
func New(src ScriptSource, opts ...Option) *Monitor {
	m := &Monitor{src: src, clock: realClock{}, interval: DefaultInterval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wait polls the batch until it completes, fails, times out or ctx ends.
func (m *Monitor) Wait(ctx context.Context, b Batch) error {
	logger := ctxlog.FromContext(ctx).With("script", b.name())
	logger.Info("Waiting for script batch.",
		"poll_interval", m.interval.String(),
		"timeout_minutes", b.TimeoutMinutes,
		"legend", "Running=Started-Success-Failed, Queued=Total-Started")

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	var (
		progress Progress
		elapsed  time.Duration
	)
	timeout := time.Duration(b.TimeoutMinutes) * time.Minute
	for {
		done, err := m.Poll(ctx, b, &progress)
		if err != nil {
			return err
		}
		if done {
			logger.Info("Script batch finished.")
			return nil
		}
		if timeout > 0 && elapsed >= timeout {
			return &TimeoutError{Script: b.MainScript, Minutes: b.TimeoutMinutes}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			elapsed += m.interval
		}
	}
}

// Poll checks the batch once. It returns true when every unit reached a
// terminal marker and fails as soon as any failure marker shows up.
func (m *Monitor) Poll(ctx context.Context, b Batch, p *Progress) (bool, error) {
	c, err := m.count(ctx, b)
	if err != nil {
		return false, err
	}

	line := fmt.Sprintf("%s Status (Total=%d): Success=%d; Failed=%d; Running=%d; Queued=%d",
		b.name(), c.Total, c.Success, c.Failed, c.Running(), c.Queued())
	switch {
	case line != p.last:
		ctxlog.FromContext(ctx).Info(line)
		p.last = line
		p.polls = 0
	default:
		p.polls++
		if p.polls%logEvery == 0 {
			ctxlog.FromContext(ctx).Info(line)
		}
	}
	if m.observer != nil {
		m.observer.BatchProgress(b.name(), c)
	}

	if err := m.failures(ctx, b); err != nil {
		return false, err
	}
	return c.Done(), nil
}

// units lists the worker scripts of the batch. A main script that is not a
// shell script is its own single unit.
func (m *Monitor) units(ctx context.Context, b Batch) ([]string, error) {
	main := b.name()
	ext := filepath.Ext(main)
	if ext != ".sh" {
		return []string{main}, nil
	}
	names, err := m.src.Scripts(ctx, b.dir())
	if err != nil {
		return nil, err
	}
	var units []string
	for _, n := range names {
		if n != main && filepath.Ext(n) == ext {
			units = append(units, n)
		}
	}
	return units, nil
}

func (m *Monitor) count(ctx context.Context, b Batch) (Counts, error) {
	units, err := m.units(ctx, b)
	if err != nil {
		return Counts{}, err
	}
	states, err := m.src.ScriptStates(ctx, b.dir())
	if err != nil {
		return Counts{}, err
	}

	c := Counts{Total: len(units)}
	for _, u := range units {
		st := states[u]
		if st.Started || st.Success || st.Failed {
			c.Started++
		}
		if st.Success {
			c.Success++
		}
		if st.Failed {
			c.Failed++
		}
	}
	return c, nil
}

// failures returns a BatchFailedError when the main script or any worker
// left a failure marker.
func (m *Monitor) failures(ctx context.Context, b Batch) error {
	errs, err := m.src.ScriptErrors(ctx, b.dir())
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		return nil
	}
	scripts := make([]string, 0, len(errs))
	for s := range errs {
		scripts = append(scripts, s)
	}
	sort.Strings(scripts)

	fe := &BatchFailedError{Script: b.MainScript}
	for _, s := range scripts {
		if len(errs[s]) == 0 {
			fe.Errors = append(fe.Errors, s+" | failed without an error message")
		}
		for _, line := range errs[s] {
			fe.Errors = append(fe.Errors, s+" | "+line)
		}
	}
	return fe
}

// BatchFailedError is returned when a script of the batch failed.
type BatchFailedError struct {
	Script string
	Errors []string
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("%s reported failures:\n%s", filepath.Base(e.Script), strings.Join(e.Errors, "\n"))
}

// TimeoutError is returned when a batch did not finish in time.
type TimeoutError struct {
	Script  string
	Minutes int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d minutes", e.Script, e.Minutes)
}
