package metadata

import (
	"path/filepath"
	"strings"
)

// seqExts are stripped, in order, when a sample id is derived from a file name.
var seqExts = []string{".gz", ".fastq", ".fq", ".fasta", ".fa", ".fna"}

// SampleID derives the sample identifier from a sequence file name:
// "gut_01.fastq.gz" becomes "gut_01". Paired-read suffixes are kept.
func SampleID(path string) string {
	name := filepath.Base(path)
	for _, ext := range seqExts {
		if trimmed, ok := strings.CutSuffix(strings.ToLower(name), ext); ok {
			name = name[:len(trimmed)]
		}
	}
	return name
}
