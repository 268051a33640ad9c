package seqprep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/scriptgen"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// ErrNoSequences is returned by a sequence stage that found nothing to read.
var ErrNoSequences = errors.New("no sequence files to process")

const (
	fastqToFasta = `NR%4==1{print ">" substr($0,2)} NR%4==2{print}`
	joinFasta    = `/^>/{if(seq!="")print seq; print; seq=""; next} {seq=seq $0} END{if(seq!="")print seq}`
	// splitBySample writes every record into out/<sample><ext>, the sample
	// being the read id up to its last delimiter.
	splitBySample = `NR%%%d==1{id=substr($1,2); n=split(id,p,d); if(n>1){id=p[1]; for(i=2;i<n;i++)id=id d p[i]} f=out "/" id ext} {print > f}`
)

// reader returns the shell command that streams a sequence file.
func reader(path string) string {
	if fsutil.IsGzipped(path) {
		return "gunzip -c " + scriptgen.Quote(path)
	}
	return "cat " + scriptgen.Quote(path)
}

func isFastq(path string) bool {
	name := strings.TrimSuffix(strings.ToLower(path), fsutil.GzipExt)
	return strings.HasSuffix(name, ".fastq") || strings.HasSuffix(name, ".fq")
}

// writeScripts renders one command per input file and writes the batch.
func writeScripts(ctx context.Context, sc *stage.Context, command func(in string) string) error {
	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return ErrNoSequences
	}
	commands := make([]string, 0, len(inputs))
	for _, in := range inputs {
		commands = append(commands, command(in))
	}
	main, err := scriptgen.WriteBatch(sc, commands)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Sequence scripts written.", "main", filepath.Base(main), "files", len(inputs))
	return nil
}

// Demultiplexer splits multiplexed files into one file per sample.
type Demultiplexer struct {
	stage.Base
}

func (s *Demultiplexer) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	delim := sc.Prop(propSampleDelimiter, DefaultSampleDelim)
	return writeScripts(ctx, sc, func(in string) string {
		lines, ext := 2, ".fasta"
		if isFastq(in) {
			lines, ext = 4, ".fastq"
		}
		program := fmt.Sprintf(splitBySample, lines)
		return fmt.Sprintf("%s | awk -v out=%s -v d=%s -v ext=%s %s",
			reader(in), scriptgen.Quote(sc.OutputDir()), scriptgen.Quote(delim), ext, scriptgen.Quote(program))
	})
}

// FastaConverter turns FASTQ and multi-line FASTA into single-line FASTA.
type FastaConverter struct {
	stage.Base
}

func (s *FastaConverter) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	return writeScripts(ctx, sc, func(in string) string {
		program := joinFasta
		if isFastq(in) {
			program = fastqToFasta
		}
		out := filepath.Join(sc.OutputDir(), metadata.SampleID(in)+".fasta")
		return fmt.Sprintf("%s | awk %s > %s", reader(in), scriptgen.Quote(program), scriptgen.Quote(out))
	})
}

// Gunzipper decompresses gzipped input. Plain files are copied unchanged.
type Gunzipper struct {
	stage.Base
}

func (s *Gunzipper) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	return writeScripts(ctx, sc, func(in string) string {
		if !fsutil.IsGzipped(in) {
			return fmt.Sprintf("cp %s %s", scriptgen.Quote(in), scriptgen.Quote(sc.OutputDir()))
		}
		out := filepath.Join(sc.OutputDir(), strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)))
		return fmt.Sprintf("gunzip -c %s > %s", scriptgen.Quote(in), scriptgen.Quote(out))
	})
}
