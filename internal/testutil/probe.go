package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// Journal records stage hook calls across runs.
type Journal struct {
	mu    sync.Mutex
	calls []string
}

// Record appends an entry.
func (j *Journal) Record(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, entry)
}

// Calls returns a copy of every entry so far.
func (j *Journal) Calls() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

// ProbeModule registers stages that record their ExecuteTask calls and
// write one file named after themselves into their output directory.
type ProbeModule struct {
	IDs     []string
	Journal *Journal
	// Fail makes ExecuteTask of the given stage return the error.
	Fail map[string]error
	// Notification is registered as the notification stage when set. It
	// records "<id>:failure:<failed stage>" when invoked for a failure.
	Notification string
}

// Register implements the registry.Module interface.
func (m *ProbeModule) Register(r *registry.Registry) {
	for _, id := range m.IDs {
		r.Register(&registry.Entry{
			ID:           id,
			Notification: id == m.Notification,
			New:          func() stage.Stage { return &probe{id: id, m: m} },
		})
	}
}

type probe struct {
	stage.Base
	id string
	m  *ProbeModule
}

func (p *probe) ExecuteTask(_ context.Context, sc *stage.Context) error {
	if sc.Failure != nil {
		p.m.Journal.Record(p.id + ":failure:" + sc.FailedStage)
		return nil
	}
	p.m.Journal.Record(p.id)
	if err := p.m.Fail[p.id]; err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(sc.OutputDir(), p.id+".txt"), []byte(p.id), 0o644)
}
