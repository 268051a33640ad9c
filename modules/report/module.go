// Package report provides JsonReport, which summarizes the count tables and
// statistics of a run into a single JSON document.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/modules/counts"
	"github.com/specialistvlad/biolockgo/modules/stats"
)

const (
	ID = "JsonReport"
	// FileName is the report written into the output directory.
	FileName     = "report.json"
	defaultAlpha = 0.05
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the stage.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:     ID,
		Branch: stage.BranchReport,
		New:    func() stage.Stage { return &Reporter{Now: time.Now} },
	})
}

// Report is the JSON document.
type Report struct {
	Pipeline        string            `json:"pipeline"`
	RunID           string            `json:"run_id"`
	Generated       time.Time         `json:"generated"`
	Samples         int               `json:"samples"`
	MetadataColumns []string          `json:"metadata_columns"`
	Levels          map[string]*Level `json:"levels"`
	Significant     []Finding         `json:"significant"`
}

// Level summarizes one taxa table.
type Level struct {
	Taxa   int            `json:"taxa"`
	Totals map[string]int `json:"totals"`
}

// Finding is one test whose adjusted p-value passed the threshold.
type Finding struct {
	Level string  `json:"level"`
	Taxon string  `json:"taxon"`
	Field string  `json:"field"`
	Test  string  `json:"test"`
	P     float64 `json:"p"`
	AdjP  float64 `json:"adj_p"`
}

// Reporter collects the tables of every upstream stage.
type Reporter struct {
	stage.Base
	Now func() time.Time
}

func (r *Reporter) CheckDependencies(_ context.Context, sc *stage.Context) error {
	if a := sc.Prop("alpha", ""); a != "" {
		if v, err := strconv.ParseFloat(a, 64); err != nil || v <= 0 || v > 1 {
			return fmt.Errorf("alpha must be a number in (0, 1], got %q", a)
		}
	}
	return nil
}

func (r *Reporter) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	alpha := defaultAlpha
	if v, err := strconv.ParseFloat(sc.Prop("alpha", ""), 64); err == nil {
		alpha = v
	}

	rep := &Report{
		Pipeline:    sc.PipelineName,
		RunID:       sc.RunID,
		Generated:   r.Now().UTC(),
		Levels:      make(map[string]*Level),
		Significant: []Finding{},
	}
	if sc.Metadata != nil {
		if snap, err := sc.Metadata.Read(); err == nil {
			rep.Samples = len(snap.Rows)
			rep.MetadataColumns = snap.Columns
		}
	}

	// nearest stage first, so a level is taken from its latest table
	for _, d := range sc.Upstream {
		files, err := fsutil.ListFiles(d.OutputDir())
		if err != nil {
			return err
		}
		for _, f := range files {
			name := strings.TrimSuffix(filepath.Base(f), ".tsv")
			if level, ok := strings.CutPrefix(name, counts.TaxaTablePrefix); ok {
				if _, seen := rep.Levels[level]; seen {
					continue
				}
				lvl, err := summarizeLevel(f)
				if err != nil {
					return err
				}
				rep.Levels[level] = lvl
			}
			if level, ok := strings.CutSuffix(filepath.Base(f), stats.PValueSuffix); ok {
				found, err := findings(f, level, alpha)
				if err != nil {
					return err
				}
				rep.Significant = append(rep.Significant, found...)
			}
		}
	}
	sort.Slice(rep.Significant, func(i, j int) bool { return rep.Significant[i].AdjP < rep.Significant[j].AdjP })

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(sc.OutputDir(), FileName)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Report written.", "path", path, "levels", len(rep.Levels), "significant", len(rep.Significant))
	return nil
}

func summarizeLevel(path string) (*Level, error) {
	table, err := metadata.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lvl := &Level{Taxa: len(table.Columns) - 1, Totals: make(map[string]int)}
	for _, taxon := range table.Columns[1:] {
		values, _ := table.Column(taxon)
		for _, v := range values {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("bad count %q for %s in %s", v, taxon, path)
			}
			lvl.Totals[taxon] += n
		}
	}
	return lvl, nil
}

// findings reads a p-value table: taxon, field, test, p, adj_p.
func findings(path, level string, alpha float64) ([]Finding, error) {
	table, err := metadata.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, row := range table.Rows {
		if len(row) < 5 {
			continue
		}
		p, errP := strconv.ParseFloat(row[3], 64)
		adj, errA := strconv.ParseFloat(row[4], 64)
		if errP != nil || errA != nil || adj > alpha {
			continue
		}
		out = append(out, Finding{Level: level, Taxon: row[0], Field: row[1], Test: row[2], P: p, AdjP: adj})
	}
	return out, nil
}
