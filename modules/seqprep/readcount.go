package seqprep

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

// ReadCounter adds the number of reads of every sample to the metadata
// table. It writes no sequence files, so the next stage still reads the
// files this one counted.
type ReadCounter struct {
	stage.Base
}

func (s *ReadCounter) CheckDependencies(_ context.Context, sc *stage.Context) error {
	if sc.Metadata == nil {
		return fmt.Errorf("%s needs a metadata table", RegisterNumReadsID)
	}
	return nil
}

func (s *ReadCounter) ExecuteTask(ctx context.Context, sc *stage.Context) error {
	logger := ctxlog.FromContext(ctx)
	inputs, err := sc.InputFiles()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return ErrNoSequences
	}

	counts := make(map[string]string, len(inputs))
	for _, in := range inputs {
		n, err := CountReads(in)
		if err != nil {
			return err
		}
		counts[metadata.SampleID(in)] = strconv.Itoa(n)
		logger.Debug("Reads counted.", "file", filepath.Base(in), "reads", n)
	}

	snap, err := sc.Metadata.Read()
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	column := sc.Prop(propReadsColumn, DefaultReadsColumn)
	out := filepath.Join(sc.OutputDir(), sc.Metadata.FileName())
	if err := metadata.Write(out, snap.WithColumn(column, counts)); err != nil {
		return err
	}
	logger.Info("Read counts added to metadata.", "column", column, "samples", len(counts))
	return nil
}

// CountReads counts the records of a FASTQ or FASTA file, gzipped or not.
func CountReads(path string) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	var r io.Reader = fh
	if fsutil.IsGzipped(path) {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	fastq := isFastq(path)
	lines, headers := 0, 0
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		if strings.HasPrefix(line, ">") {
			headers++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if fastq {
		return lines / 4, nil
	}
	return headers, nil
}
