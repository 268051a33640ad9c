// Package seqprep holds the implicit stages that prepare raw sequence files
// before classification: demultiplexing, conversion to single-line FASTA,
// decompression and read counting.
package seqprep

import (
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// Stage identifiers. They match the built-in plan defaults.
const (
	DemultiplexerID     = "Demultiplexer"
	FastaConverterID    = "AwkFastaConverter"
	GunzipperID         = "Gunzipper"
	RegisterNumReadsID  = "RegisterNumReads"
	DefaultReadsColumn  = "Num_Reads"
	DefaultSampleDelim  = "_"
	propSampleDelimiter = "sample_delim"
	propReadsColumn     = "column"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers every sequence preparation stage.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:            DemultiplexerID,
		Branch:        stage.BranchSeq,
		Implicit:      true,
		SeqProcessing: true,
		New:           func() stage.Stage { return &Demultiplexer{} },
	})
	r.Register(&registry.Entry{
		ID:            FastaConverterID,
		Branch:        stage.BranchSeq,
		Implicit:      true,
		SeqProcessing: true,
		New:           func() stage.Stage { return &FastaConverter{} },
	})
	r.Register(&registry.Entry{
		ID:            GunzipperID,
		Branch:        stage.BranchSeq,
		Implicit:      true,
		SeqProcessing: true,
		New:           func() stage.Stage { return &Gunzipper{} },
	})
	r.Register(&registry.Entry{
		ID:          RegisterNumReadsID,
		Implicit:    true,
		CountsReads: true,
		New:         func() stage.Stage { return &ReadCounter{} },
	})
}
