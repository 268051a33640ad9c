package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirName_PadsToPlanWidth(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		ordinal, total int
		want           string
	}{
		{0, 3, "0_Gunzipper"},
		{2, 10, "02_Gunzipper"},
		{9, 10, "09_Gunzipper"},
		{42, 120, "042_Gunzipper"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, DirName(tc.ordinal, tc.total, "Gunzipper"))
	}
}

func TestDescriptor_Subdirectories(t *testing.T) {
	t.Parallel()

	d := Descriptor{ID: "RdpClassifier", Ordinal: 1, Dir: "/p/1_RdpClassifier"}

	assert.Equal(t, "/p/1_RdpClassifier/output", d.OutputDir())
	assert.Equal(t, "/p/1_RdpClassifier/temp", d.TempDir())
	assert.Equal(t, "/p/1_RdpClassifier/script", d.ScriptDir())
	assert.Equal(t, "1_RdpClassifier", d.String())
}

func TestContext_InputFiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	seq := Descriptor{ID: "Seq", Ordinal: 0, Dir: filepath.Join(root, "0_Seq")}
	meta := Descriptor{ID: "Meta", Ordinal: 1, Dir: filepath.Join(root, "1_Meta")}
	for _, d := range []Descriptor{seq, meta} {
		require.NoError(t, os.MkdirAll(d.OutputDir(), 0755))
	}
	sc := &Context{
		Upstream:       []Descriptor{meta, seq},
		PipelineInputs: []string{"/in/x.fq"},
		Metadata:       metadata.NewFile(filepath.Join(root, "meta.tsv")),
	}

	// --- Act / Assert ---
	files, err := sc.InputFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/x.fq"}, files, "empty upstream outputs fall back to pipeline input")

	require.NoError(t, os.WriteFile(filepath.Join(meta.OutputDir(), "meta.tsv"), []byte("SampleID\n"), 0644))
	out := filepath.Join(seq.OutputDir(), "x.fa")
	require.NoError(t, os.WriteFile(out, []byte(">a\nACGT\n"), 0644))
	files, err = sc.InputFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{out}, files, "a stage that only wrote metadata is skipped")

	prev, ok := sc.Previous()
	require.True(t, ok)
	assert.Equal(t, "Meta", prev.ID)
}

func TestContext_Props(t *testing.T) {
	t.Parallel()

	sc := &Context{Props: map[string]string{"threads": "8", "bad": "x", "blank": " "}}

	assert.Equal(t, 8, sc.IntProp("threads", 1))
	assert.Equal(t, 1, sc.IntProp("bad", 1))
	assert.Equal(t, "def", sc.Prop("blank", "def"))
	assert.Equal(t, "def", sc.Prop("missing", "def"))
}
