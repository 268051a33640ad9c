package classifier

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/scriptgen"
	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/modules/counts"
)

// ErrNoSequences is returned when a classifier has nothing to classify.
var ErrNoSequences = errors.New("no sequence files to classify")

// tool describes how one classifier is invoked and how its report is reduced.
type tool struct {
	id string
	// required lists properties without a usable default.
	required []string
	// run returns the command that classifies in and leaves the report at report.
	run func(sc *stage.Context, in, report string) string
	// reduce is an awk program turning the report into taxon<TAB>count lines.
	reduce string
}

var rdp = &tool{
	id: RdpID,
	run: func(sc *stage.Context, in, report string) string {
		return fmt.Sprintf("java -jar %s classify -f fixrank -o %s %s",
			scriptgen.Quote(sc.Prop("jar", "classifier.jar")), scriptgen.Quote(report), scriptgen.Quote(in))
	},
	// fixrank rows: id, strand, then name/rank/confidence triples
	reduce: `BEGIN{FS="\t"} {t=""; for(i=3;i+2<=NF;i+=3) if($(i+2)>=c) t=t (t==""?"":";") substr($(i+1),1,1) "__" $i; if(t!="") n[t]++} END{for(k in n) print k "\t" n[k]}`,
}

var qiime = &tool{
	id: QiimeID,
	run: func(sc *stage.Context, in, report string) string {
		out := strings.TrimSuffix(report, ".txt")
		return fmt.Sprintf("%s -i %s -o %s -f && biom convert -i %s -o %s --to-tsv --header-key taxonomy",
			sc.Prop("exe", "pick_closed_reference_otus.py"), scriptgen.Quote(in), scriptgen.Quote(out),
			scriptgen.Quote(filepath.Join(out, "otu_table.biom")), scriptgen.Quote(report))
	},
	reduce: `BEGIN{FS="\t"} /^#/{next} {gsub(/; /,";",$NF); n[$NF]+=$2} END{for(k in n) print k "\t" n[k]}`,
}

var kraken = &tool{
	id:       KrakenID,
	required: []string{"db"},
	run: func(sc *stage.Context, in, report string) string {
		db := scriptgen.Quote(sc.Prop("db", ""))
		return fmt.Sprintf("kraken --db %s --fasta-input %s | kraken-translate --mpa-format --db %s > %s",
			db, scriptgen.Quote(in), db, scriptgen.Quote(report))
	},
	reduce: `BEGIN{FS="\t"} {gsub(/\|/,";",$2); n[$2]++} END{for(k in n) print k "\t" n[k]}`,
}

// Classifier is the stage shared by every tool.
type Classifier struct {
	stage.Base
	tool *tool
}

// PostRequisites puts the count compiler right after the classifier.
func (c *Classifier) PostRequisites() []string {
	return []string{counts.CompileOtuCountsID}
}

func (c *Classifier) CheckDependencies(_ context.Context, sc *stage.Context) error {
	var errs []error
	for _, p := range c.tool.required {
		if sc.Prop(p, "") == "" {
			errs = append(errs, fmt.Errorf("%s requires property %q", c.tool.id, p))
		}
	}
	return errors.Join(errs...)
}

func (c *Classifier) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return ErrNoSequences
	}

	confidence := sc.Prop("confidence", "0.8")
	commands := make([]string, 0, len(inputs))
	for _, in := range inputs {
		sample := metadata.SampleID(in)
		report := filepath.Join(sc.TempDir(), sample+".txt")
		out := filepath.Join(sc.OutputDir(), sample+counts.OtuCountSuffix)
		commands = append(commands,
			c.tool.run(sc, in, report),
			fmt.Sprintf("awk -v c=%s %s %s > %s",
				scriptgen.Quote(confidence), scriptgen.Quote(c.tool.reduce), scriptgen.Quote(report), scriptgen.Quote(out)),
		)
	}

	// both commands of a sample must land in the same worker
	batch := max(sc.BatchSize, 1) * 2
	scoped := *sc
	scoped.BatchSize = batch
	main, err := scriptgen.WriteBatch(&scoped, commands)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Classifier scripts written.", "tool", c.tool.id, "main", filepath.Base(main), "samples", len(inputs))
	return nil
}
