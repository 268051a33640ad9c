// Package classifier wraps the external taxonomic classifiers. Each stage
// writes one script command per sample that runs the tool and reduces its
// report to "<sample>_otu_count.tsv", a two-column taxon/count table that
// CompileOtuCounts merges.
package classifier

import (
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

const (
	RdpID    = "RdpClassifier"
	QiimeID  = "QiimeClosedRefClassifier"
	KrakenID = "KrakenClassifier"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers every classifier.
func (m *Module) Register(r *registry.Registry) {
	for _, t := range []*tool{rdp, qiime, kraken} {
		r.Register(&registry.Entry{
			ID:     t.id,
			Branch: stage.BranchClassifier,
			New:    func() stage.Stage { return &Classifier{tool: t} },
		})
	}
}
