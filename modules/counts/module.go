// Package counts turns per-sample classifier reports into count tables:
// one OTU matrix for the whole run, then one table per taxonomic level.
package counts

import (
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

const (
	CompileOtuCountsID = "CompileOtuCounts"
	BuildTaxaTablesID  = "BuildTaxaTables"

	// OtuCountSuffix ends the name of every per-sample classifier report.
	OtuCountSuffix = "_otu_count.tsv"
	// OtuTableName is the merged matrix written by CompileOtuCounts.
	OtuTableName = "otu_counts.tsv"
	// TaxaTablePrefix starts the name of every per-level table.
	TaxaTablePrefix = "taxa_table_"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers both count stages.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:     CompileOtuCountsID,
		Branch: stage.BranchOtuCount,
		New:    func() stage.Stage { return &OtuCompiler{} },
	})
	r.Register(&registry.Entry{
		ID:     BuildTaxaTablesID,
		Branch: stage.BranchTaxaCount,
		New:    func() stage.Stage { return &TaxaTableBuilder{} },
	})
}
