package status

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/specialistvlad/biolockgo/internal/stage"
)

// Memory is an in-process Store. It never touches the filesystem, which
// lets scheduler and monitor tests run against scripted marker sequences.
//
// Stage and pipeline states live in sync.Maps keyed by directory, since
// each key is written independently. Script bookkeeping is grouped per
// directory and guarded by a mutex because listings must see a consistent
// set of scripts and markers.
type Memory struct {
	stages    sync.Map // Key: stage dir, Value: State
	pipelines sync.Map // Key: pipeline root, Value: State

	mu      sync.Mutex
	scripts map[string]map[string]*memScript
	resets  map[string]int
}

type memScript struct {
	state  ScriptState
	errors []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scripts: make(map[string]map[string]*memScript),
		resets:  make(map[string]int),
	}
}

// EnsureStageDir implements Store.
func (m *Memory) EnsureStageDir(context.Context, stage.Descriptor) error {
	return nil
}

// StageState implements Store.
func (m *Memory) StageState(_ context.Context, d stage.Descriptor) (State, error) {
	st, ok := m.stages.Load(d.Dir)
	if !ok {
		return Absent, nil
	}
	return st.(State), nil
}

// MarkStageStarted implements Store.
func (m *Memory) MarkStageStarted(_ context.Context, d stage.Descriptor) error {
	m.stages.Store(d.Dir, Started)
	return nil
}

// MarkStageComplete implements Store.
func (m *Memory) MarkStageComplete(_ context.Context, d stage.Descriptor) error {
	m.stages.Store(d.Dir, Complete)
	return nil
}

// ResetStage implements Store.
func (m *Memory) ResetStage(_ context.Context, d stage.Descriptor) error {
	m.stages.Delete(d.Dir)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scripts, d.ScriptDir())
	m.resets[d.Dir]++
	return nil
}

// Resets reports how many times the stage directory was reset.
func (m *Memory) Resets(d stage.Descriptor) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets[d.Dir]
}

// TotalResets is the number of resets across all stages.
func (m *Memory) TotalResets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.resets {
		n += c
	}
	return n
}

// PipelineState implements Store.
func (m *Memory) PipelineState(_ context.Context, root string) (State, error) {
	st, ok := m.pipelines.Load(root)
	if !ok {
		return Absent, nil
	}
	return st.(State), nil
}

// MarkPipeline implements Store.
func (m *Memory) MarkPipeline(_ context.Context, root string, st State) error {
	if st != Complete && st != Failed {
		return fmt.Errorf("pipeline cannot be marked %s", st)
	}
	m.pipelines.Store(root, st)
	return nil
}

// AddScript registers a script file in dir.
func (m *Memory) AddScript(dir, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script(dir, name)
}

// SetScriptState replaces the markers of a script, registering it if needed.
func (m *Memory) SetScriptState(dir, name string, st ScriptState, errLines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.script(dir, name)
	s.state = st
	s.errors = errLines
}

func (m *Memory) script(dir, name string) *memScript {
	dir = filepath.Clean(dir)
	if m.scripts[dir] == nil {
		m.scripts[dir] = make(map[string]*memScript)
	}
	s, ok := m.scripts[dir][name]
	if !ok {
		s = &memScript{}
		m.scripts[dir][name] = s
	}
	return s
}

// Scripts implements Store.
func (m *Memory) Scripts(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.scripts[filepath.Clean(dir)] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ScriptStates implements Store.
func (m *Memory) ScriptStates(_ context.Context, dir string) (map[string]ScriptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make(map[string]ScriptState)
	for name, s := range m.scripts[filepath.Clean(dir)] {
		if s.state != (ScriptState{}) {
			states[name] = s.state
		}
	}
	return states, nil
}

// ScriptErrors implements Store.
func (m *Memory) ScriptErrors(_ context.Context, dir string) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := make(map[string][]string)
	for name, s := range m.scripts[filepath.Clean(dir)] {
		if s.state.Failed {
			errs[name] = append([]string(nil), s.errors...)
		}
	}
	return errs, nil
}
