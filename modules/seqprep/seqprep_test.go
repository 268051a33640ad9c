package seqprep_test

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/procrun"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/scriptgen"
	"github.com/specialistvlad/biolockgo/internal/testutil"
	"github.com/specialistvlad/biolockgo/modules/seqprep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fastq = "@s1_1 lane1\nACGT\n+\nIIII\n@s2_1 lane1\nGGCC\n+\nIIII\n@s1_2 lane1\nTTAA\n+\nIIII\n"

func TestRegister_Flags(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := registry.New()

	// --- Act ---
	(&seqprep.Module{}).Register(reg)

	// --- Assert ---
	for _, id := range []string{seqprep.DemultiplexerID, seqprep.FastaConverterID, seqprep.GunzipperID} {
		e, err := reg.Lookup(id)
		require.NoError(t, err)
		assert.True(t, e.Implicit, id)
		assert.True(t, e.SeqProcessing, id)
	}
	counter, err := reg.Lookup(seqprep.RegisterNumReadsID)
	require.NoError(t, err)
	assert.True(t, counter.CountsReads)
	assert.False(t, counter.SeqProcessing)
}

func TestCountReads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	gzPath := filepath.Join(dir, "s3.fastq.gz")
	fh, err := os.Create(gzPath)
	require.NoError(t, err)
	gz := gzip.NewWriter(fh)
	_, err = gz.Write([]byte(fastq))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, fh.Close())

	testCases := []struct {
		name string
		path string
		want int
	}{
		{"fastq", testutil.WriteFile(t, dir, "s1.fastq", fastq), 3},
		{"multi-line fasta", testutil.WriteFile(t, dir, "s2.fasta", ">a\nAC\nGT\n>b\nTT\n\n"), 2},
		{"gzipped fastq", gzPath, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			n, err := seqprep.CountReads(tc.path)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestReadCounter_AddsColumn(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sc := testutil.NewStageContext(t, seqprep.RegisterNumReadsID, "ImportMetadata")
	testutil.WriteFile(t, sc.PipelineRoot, testutil.MetadataFileName, "SampleID\tDiet\ns1\tlow\ns2\thigh\n")
	sc.PipelineInputs = []string{testutil.WriteFile(t, t.TempDir(), "s1.fastq", fastq)}

	// --- Act ---
	err := (&seqprep.ReadCounter{}).ExecuteTask(testutil.Context(nil), sc)

	// --- Assert ---
	require.NoError(t, err)
	snap, err := metadata.ReadFile(filepath.Join(sc.OutputDir(), testutil.MetadataFileName))
	require.NoError(t, err)
	reads, ok := snap.Column(seqprep.DefaultReadsColumn)
	require.True(t, ok)
	assert.Equal(t, []string{"3", metadata.DefaultNullValue}, reads)
}

func TestSequenceStages_NoInput(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sc := testutil.NewStageContext(t, seqprep.GunzipperID)

	// --- Act ---
	err := (&seqprep.Gunzipper{}).ExecuteTask(testutil.Context(nil), sc)

	// --- Assert ---
	require.ErrorIs(t, err, seqprep.ErrNoSequences)
}

func TestFastaConverter_RunsScripts(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testutil.Context(nil)
	sc := testutil.NewStageContext(t, seqprep.FastaConverterID)
	in := t.TempDir()
	sc.PipelineInputs = []string{
		testutil.WriteFile(t, in, "s1.fastq", "@r1\nACGT\n+\nIIII\n"),
		testutil.WriteFile(t, in, "s2.fasta", ">r2\nAC\nGT\n"),
	}

	// --- Act ---
	require.NoError(t, (&seqprep.FastaConverter{}).ExecuteTask(ctx, sc))
	main := filepath.Join(sc.ScriptDir(), scriptgen.MainScriptName(sc.Stage, ".sh"))
	err := procrun.New().Run(ctx, "main", "bash", main)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ">r1\nACGT\n", testutil.ReadFile(t, filepath.Join(sc.OutputDir(), "s1.fasta")))
	assert.Equal(t, ">r2\nACGT\n", testutil.ReadFile(t, filepath.Join(sc.OutputDir(), "s2.fasta")))
}

func TestDemultiplexer_SplitsBySample(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx := testutil.Context(nil)
	sc := testutil.NewStageContext(t, seqprep.DemultiplexerID)
	sc.PipelineInputs = []string{testutil.WriteFile(t, t.TempDir(), "run.fastq", fastq)}

	// --- Act ---
	require.NoError(t, (&seqprep.Demultiplexer{}).ExecuteTask(ctx, sc))
	main := filepath.Join(sc.ScriptDir(), scriptgen.MainScriptName(sc.Stage, ".sh"))
	err := procrun.New().Run(ctx, "main", "bash", main)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "@s1_1 lane1\nACGT\n+\nIIII\n@s1_2 lane1\nTTAA\n+\nIIII\n",
		testutil.ReadFile(t, filepath.Join(sc.OutputDir(), "s1.fastq")))
	assert.Equal(t, "@s2_1 lane1\nGGCC\n+\nIIII\n",
		testutil.ReadFile(t, filepath.Join(sc.OutputDir(), "s2.fastq")))
}
