package counts

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// ErrNoCounts is returned when no upstream stage produced count files.
var ErrNoCounts = errors.New("no count files found")

// OtuCompiler merges the per-sample reports into one sample-by-taxon matrix.
type OtuCompiler struct {
	stage.Base
}

// PostRequisites makes every OTU matrix feed the taxa tables.
func (s *OtuCompiler) PostRequisites() []string {
	return []string{BuildTaxaTablesID}
}

func (s *OtuCompiler) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}

	perSample := make(map[string]map[string]int)
	var samples []string
	taxa := make(map[string]struct{})
	for _, in := range inputs {
		name := filepath.Base(in)
		sample, ok := strings.CutSuffix(name, OtuCountSuffix)
		if !ok {
			continue
		}
		counts, err := ReadCounts(in)
		if err != nil {
			return err
		}
		perSample[sample] = counts
		samples = append(samples, sample)
		for t := range counts {
			taxa[t] = struct{}{}
		}
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w with suffix %s", ErrNoCounts, OtuCountSuffix)
	}

	table := Matrix(samples, perSample, taxa)
	out := filepath.Join(sc.OutputDir(), OtuTableName)
	if err := metadata.Write(out, table); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("OTU table compiled.", "samples", len(samples), "taxa", len(taxa))
	return nil
}

// ReadCounts parses a taxon<TAB>count file. Counts of repeated taxa add up.
func ReadCounts(path string) (map[string]int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		n, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("bad count for %q in %s: %w", rec[0], path, err)
		}
		counts[rec[0]] += n
	}
	return counts, nil
}

// Matrix lays out counts with one row per sample, in the given order, and
// one column per taxon, sorted. Absent taxa count zero.
func Matrix(samples []string, counts map[string]map[string]int, taxa map[string]struct{}) *metadata.Snapshot {
	columns := make([]string, 0, len(taxa))
	for t := range taxa {
		columns = append(columns, t)
	}
	slices.Sort(columns)

	table := &metadata.Snapshot{Columns: append([]string{"SampleID"}, columns...)}
	for _, s := range samples {
		row := []string{s}
		for _, t := range columns {
			row = append(row, strconv.Itoa(counts[s][t]))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
