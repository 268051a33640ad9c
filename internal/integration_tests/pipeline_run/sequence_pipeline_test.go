package pipeline_run

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/app"
	"github.com/specialistvlad/biolockgo/internal/status"
	"github.com/specialistvlad/biolockgo/internal/testutil"
	"github.com/specialistvlad/biolockgo/modules/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSequencePipeline runs the built-in stages end to end with real bash
// scripts: metadata generation, read counting, FASTA conversion and the
// JSON report.
func TestSequencePipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := testutil.NewWorkspace(t)
	testutil.WriteFile(t, ws.InputDir, "gut_01.fastq", "@r1\nACGT\n+\nIIII\n@r2\nGGCC\n+\nIIII\n")
	testutil.WriteFile(t, ws.InputDir, "gut_02.fasta", ">r3\nAC\nGT\n")
	pipeline := `
pipeline {
  name            = "gut"
  input_dirs      = ["` + ws.InputDir + `"]
  multi_line_seqs = true
}

stage "AwkFastaConverter" {
  batch_size = 2
}

stage "JsonReport" {}
`

	// --- Act ---
	result := ws.Run(t, pipeline, testutil.HarnessOptions{}, app.CoreModules()...)

	// --- Assert ---
	require.NoError(t, result.Err, result.LogOutput)
	root := result.Root()
	assert.Equal(t, []string{"ImportMetadata", "RegisterNumReads", "AwkFastaConverter", "JsonReport"}, result.App.Plan().IDs())
	testutil.AssertPipelineMarker(t, root, status.CompleteMarker)
	for _, dir := range testutil.StageDirs(t, root) {
		testutil.AssertStageComplete(t, root, dir)
	}

	converted := filepath.Join(root, "2_AwkFastaConverter", "output")
	assert.Equal(t, ">r1\nACGT\n>r2\nGGCC\n", testutil.ReadFile(t, filepath.Join(converted, "gut_01.fasta")))
	assert.Equal(t, ">r3\nACGT\n", testutil.ReadFile(t, filepath.Join(converted, "gut_02.fasta")))

	raw, err := os.ReadFile(filepath.Join(root, "3_JsonReport", "output", report.FileName))
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, 2, rep.Samples)
	assert.Equal(t, []string{"SampleID", "Num_Reads"}, rep.MetadataColumns)
	assert.Equal(t, result.App.RunID(), rep.RunID)
}

// TestSequencePipeline_ScriptFailureFailsStage checks that a failing worker
// fails its stage and the pipeline, leaving the failure markers behind.
func TestSequencePipeline_ScriptFailureFailsStage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := testutil.NewWorkspace(t)
	testutil.WriteFile(t, ws.InputDir, "gut_01.fastq.gz", "this is not gzip data")
	pipeline := `
pipeline {
  name                    = "gut"
  input_dirs              = ["` + ws.InputDir + `"]
  disable_implicit_stages = true
}

stage "Gunzipper" {}
`

	// --- Act ---
	result := ws.Run(t, pipeline, testutil.HarnessOptions{}, app.CoreModules()...)

	// --- Assert ---
	require.Error(t, result.Err)
	root := result.Root()
	testutil.AssertPipelineMarker(t, root, status.FailedMarker)
	assert.Contains(t, result.Err.Error(), "Gunzipper")
	assert.Contains(t, result.LogOutput, "Pipeline failed.")
}
