package stage

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Conventional subdirectories of every stage root.
const (
	OutputDirName = "output"
	TempDirName   = "temp"
	ScriptDirName = "script"

	// MainScriptPrefix starts the name of the script that launches a batch.
	MainScriptPrefix = "MAIN_"
)

// Descriptor identifies one stage inside a plan.
type Descriptor struct {
	ID      string
	Ordinal int
	Dir     string
}

// DirName builds the "{ordinal}_{id}" directory name. The ordinal is
// zero-padded to the number of digits in total.
func DirName(ordinal, total int, id string) string {
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("%0*d_%s", width, ordinal, id)
}

// Name is the base name of the stage root.
func (d Descriptor) Name() string {
	return filepath.Base(d.Dir)
}

func (d Descriptor) OutputDir() string { return filepath.Join(d.Dir, OutputDirName) }
func (d Descriptor) TempDir() string   { return filepath.Join(d.Dir, TempDirName) }
func (d Descriptor) ScriptDir() string { return filepath.Join(d.Dir, ScriptDirName) }

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return d.Name()
}
