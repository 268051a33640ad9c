package counts

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// DefaultLevels are reported when the stage has no "levels" property.
const DefaultLevels = "phylum,class,order,family,genus"

// Unclassified collects counts of lineages that stop above a level.
const Unclassified = "unclassified"

// levelPrefix maps a level to the lineage prefix the classifiers write.
var levelPrefix = map[string]string{
	"domain":  "d__",
	"kingdom": "k__",
	"phylum":  "p__",
	"class":   "c__",
	"order":   "o__",
	"family":  "f__",
	"genus":   "g__",
	"species": "s__",
}

// TaxaTableBuilder collapses the OTU matrix to one table per level.
type TaxaTableBuilder struct {
	stage.Base
}

func (s *TaxaTableBuilder) levels(sc *stage.Context) []string {
	var out []string
	for _, l := range strings.Split(sc.Prop("levels", DefaultLevels), ",") {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (s *TaxaTableBuilder) CheckDependencies(_ context.Context, sc *stage.Context) error {
	for _, l := range s.levels(sc) {
		if _, ok := levelPrefix[l]; !ok {
			return fmt.Errorf("unknown taxonomic level %q", l)
		}
	}
	return nil
}

func (s *TaxaTableBuilder) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	logger := ctxlog.FromContext(ctx)
	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	var otuPath string
	for _, in := range inputs {
		if filepath.Base(in) == OtuTableName {
			otuPath = in
		}
	}
	if otuPath == "" {
		return fmt.Errorf("%w: %s", ErrNoCounts, OtuTableName)
	}
	otu, err := metadata.ReadFile(otuPath)
	if err != nil {
		return err
	}

	for _, level := range s.levels(sc) {
		table, err := Collapse(otu, levelPrefix[level])
		if err != nil {
			return err
		}
		out := filepath.Join(sc.OutputDir(), TaxaTablePrefix+level+".tsv")
		if err := metadata.Write(out, table); err != nil {
			return err
		}
		logger.Info("Taxa table written.", "level", level, "taxa", len(table.Columns)-1)
	}
	return nil
}

// Collapse sums the OTU columns of otu by the lineage element carrying
// prefix. The prefix itself is dropped from the resulting column names.
func Collapse(otu *metadata.Snapshot, prefix string) (*metadata.Snapshot, error) {
	samples := otu.SampleIDs()
	perSample := make(map[string]map[string]int, len(samples))
	taxa := make(map[string]struct{})
	for _, lineage := range otu.Columns[1:] {
		taxon := Unclassified
		for _, part := range strings.Split(lineage, ";") {
			if name, ok := strings.CutPrefix(strings.TrimSpace(part), prefix); ok && name != "" {
				taxon = name
				break
			}
		}
		taxa[taxon] = struct{}{}

		values, _ := otu.Column(lineage)
		for i, v := range values {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("bad count %q for %s in sample %s", v, lineage, samples[i])
			}
			if perSample[samples[i]] == nil {
				perSample[samples[i]] = make(map[string]int)
			}
			perSample[samples[i]][taxon] += n
		}
	}
	return Matrix(samples, perSample, taxa), nil
}
