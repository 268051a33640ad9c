package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "SampleID\tAge\tSex\tSite\n" +
	"s1\t34\tM\tgut\n" +
	"s2\tNA\tF\tgut\n" +
	"s3\t51\tF\tgut\n"

func writeTable(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "metadata.tsv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFile_PublishRepointsPath(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	original := writeTable(t, t.TempDir(), sample)
	table := NewFile(original)
	next := writeTable(t, t.TempDir(), sample)

	// --- Act ---
	err := table.Publish(next)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, next, table.Path())
	assert.Equal(t, "metadata.tsv", table.FileName())

	snap, err := table.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, snap.SampleIDs())
}

func TestFile_PublishRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	original := writeTable(t, t.TempDir(), sample)
	table := NewFile(original)
	empty := writeTable(t, t.TempDir(), "")

	// --- Act ---
	err := table.Publish(empty)

	// --- Assert ---
	require.ErrorIs(t, err, ErrEmptyTable)
	assert.Equal(t, original, table.Path(), "a rejected file must not replace the current version")
}

func TestSnapshot_WithColumnAndWrite(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	snap, err := ReadFile(writeTable(t, dir, sample))
	require.NoError(t, err)

	// --- Act ---
	extended := snap.WithColumn("Num_Reads", map[string]string{"s1": "10", "s3": "7"})
	out := filepath.Join(dir, "out.tsv")
	require.NoError(t, Write(out, extended))
	reread, err := ReadFile(out)

	// --- Assert ---
	require.NoError(t, err)
	reads, ok := reread.Column("Num_Reads")
	require.True(t, ok)
	assert.Equal(t, []string{"10", "NA", "7"}, reads)
	assert.Len(t, snap.Columns, 4, "the source snapshot must be left untouched")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	snap, err := ReadFile(writeTable(t, t.TempDir(), sample))
	require.NoError(t, err)

	// --- Act ---
	r := Classify(snap)

	// --- Assert ---
	assert.Equal(t, []string{"Age"}, r.Numeric)
	assert.Equal(t, []string{"Sex"}, r.Categorical)
}
