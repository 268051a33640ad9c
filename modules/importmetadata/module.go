// Package importmetadata provides the stage that starts every pipeline: it
// puts the shared metadata table into place, generating one from the input
// file names when the pipeline has none.
package importmetadata

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// ID is the registry identifier of the stage.
const ID = "ImportMetadata"

// DefaultIDColumn heads the sample column of a generated table.
const DefaultIDColumn = "SampleID"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the stage with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:       ID,
		Implicit: true,
		New:      func() stage.Stage { return &Importer{} },
	})
}

// Importer writes the normalized metadata table into its output directory.
type Importer struct {
	stage.Base
}

// CheckDependencies rejects a configured metadata file that cannot be parsed.
func (im *Importer) CheckDependencies(_ context.Context, sc *stage.Context) error {
	if sc.Metadata == nil {
		return errors.New("no metadata table configured")
	}
	path := sc.Metadata.Path()
	if !fsutil.Exists(path) {
		return nil
	}
	if _, err := metadata.ReadFile(path); err != nil {
		return fmt.Errorf("metadata file %s: %w", path, err)
	}
	return nil
}

// ExecuteTask copies the configured table, or builds one row per input
// sample when no file exists.
func (im *Importer) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	logger := ctxlog.FromContext(ctx)
	out := filepath.Join(sc.OutputDir(), sc.Metadata.FileName())

	if src := sc.Metadata.Path(); fsutil.Exists(src) {
		snap, err := metadata.ReadFile(src)
		if err != nil {
			return err
		}
		logger.Info("Importing metadata.", "source", src, "samples", len(snap.Rows))
		return metadata.Write(out, snap)
	}

	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	snap := Generate(sc.Prop("id_column", DefaultIDColumn), inputs)
	logger.Info("No metadata file found, generated one from input files.", "samples", len(snap.Rows))
	return metadata.Write(out, snap)
}

// Generate builds a single-column table holding the sample id of every
// input file, in input order and without duplicates.
func Generate(idColumn string, inputs []string) *metadata.Snapshot {
	snap := &metadata.Snapshot{Columns: []string{idColumn}}
	seen := make(map[string]bool)
	for _, in := range inputs {
		id := metadata.SampleID(in)
		if seen[id] {
			continue
		}
		seen[id] = true
		snap.Rows = append(snap.Rows, []string{id})
	}
	return snap
}
