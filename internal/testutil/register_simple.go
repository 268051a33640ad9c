package testutil

import "github.com/specialistvlad/biolockgo/internal/registry"

// SimpleModule is a test helper that registers a fixed set of entries.
type SimpleModule struct {
	Entries []*registry.Entry
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	for _, e := range m.Entries {
		r.Register(e)
	}
}
