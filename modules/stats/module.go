// Package stats provides CalculateStats, the R stage that tests every taxa
// table against the reportable metadata fields.
package stats

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/scriptgen"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/modules/counts"
)

const ID = "CalculateStats"

// PValueSuffix ends every result table, e.g. "genus_pvalues.tsv".
const PValueSuffix = "_pvalues.tsv"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the stage.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Entry{
		ID:     ID,
		Branch: stage.BranchR,
		New:    func() stage.Stage { return &Calculator{} },
	})
}

var bodyTmpl = template.Must(template.New("stats").Funcs(template.FuncMap{
	"rvec": rVector,
}).Parse(`  meta <- read.delim({{.Metadata | printf "%q"}}, check.names = FALSE, stringsAsFactors = FALSE)
  numeric <- {{rvec .Numeric}}
  categorical <- {{rvec .Categorical}}
{{- range .Tables}}
  counts <- read.delim({{.Input | printf "%q"}}, check.names = FALSE)
  data <- merge(meta, counts, by.x = 1, by.y = 1)
  taxa <- setdiff(colnames(counts), colnames(counts)[1])
  rows <- list()
  for (taxon in taxa) {
    for (field in numeric) {
      p <- suppressWarnings(cor.test(data[[taxon]], as.numeric(data[[field]]), method = "spearman")$p.value)
      rows[[length(rows) + 1]] <- data.frame(taxon = taxon, field = field, test = "spearman", p = p)
    }
    for (field in categorical) {
      p <- kruskal.test(data[[taxon]], as.factor(data[[field]]))$p.value
      rows[[length(rows) + 1]] <- data.frame(taxon = taxon, field = field, test = "kruskal", p = p)
    }
  }
  result <- do.call(rbind, rows)
  if (!is.null(result)) result$adj_p <- p.adjust(result$p, method = {{$.Adjust | printf "%q"}})
  write.table(result, {{.Output | printf "%q"}}, sep = "\t", quote = FALSE, row.names = FALSE)
{{- end}}`))

type table struct {
	Input  string
	Output string
}

// Calculator writes the MAIN_ R script of the stage.
type Calculator struct {
	stage.Base
}

func (c *Calculator) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	logger := ctxlog.FromContext(ctx)
	if sc.Metadata == nil {
		return fmt.Errorf("%s needs a metadata table", ID)
	}
	if sc.Reportable == nil || len(sc.Reportable.Numeric)+len(sc.Reportable.Categorical) == 0 {
		logger.Warn("No reportable metadata fields, nothing to test.")
		return nil
	}

	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	var tables []table
	for _, in := range inputs {
		name := filepath.Base(in)
		level, ok := strings.CutPrefix(strings.TrimSuffix(name, ".tsv"), counts.TaxaTablePrefix)
		if !ok {
			continue
		}
		tables = append(tables, table{Input: in, Output: filepath.Join(sc.OutputDir(), level+PValueSuffix)})
	}
	if len(tables) == 0 {
		return fmt.Errorf("%w: no %s*.tsv among %d input files", counts.ErrNoCounts, counts.TaxaTablePrefix, len(inputs))
	}

	var body strings.Builder
	err = bodyTmpl.Execute(&body, struct {
		Metadata    string
		Numeric     []string
		Categorical []string
		Tables      []table
		Adjust      string
	}{sc.Metadata.Path(), sc.Reportable.Numeric, sc.Reportable.Categorical, tables, sc.Prop("p_adjust", "BH")})
	if err != nil {
		return fmt.Errorf("failed to render R script: %w", err)
	}
	main, err := scriptgen.WriteRScript(sc, body.String())
	if err != nil {
		return err
	}
	logger.Info("R script written.", "main", filepath.Base(main), "tables", len(tables))
	return nil
}

func rVector(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "c(" + strings.Join(quoted, ", ") + ")"
}
