package stage

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/metadata"
	"github.com/specialistvlad/biolockgo/internal/notify"
)

// Context is everything a stage may know about the run it belongs to.
type Context struct {
	Stage Descriptor
	// Upstream lists the earlier stages of the plan, nearest first.
	Upstream []Descriptor

	RunID        string
	PipelineName string
	PipelineRoot string

	// PipelineInputs are the configured input files. The first stage reads
	// them; every later stage reads its predecessor's output.
	PipelineInputs []string

	Timeout   int
	BatchSize int
	Props     map[string]string

	Metadata   metadata.Table
	Reportable *metadata.Reportable
	Notifier   notify.Sender

	// Failure is set only when the notification stage runs after another
	// stage failed.
	Failure     error
	FailedStage string
	Summary     string
}

// Previous returns the stage right before this one.
func (c *Context) Previous() (Descriptor, bool) {
	if len(c.Upstream) == 0 {
		return Descriptor{}, false
	}
	return c.Upstream[0], true
}

// InputFiles returns the files this stage consumes: the output of the
// nearest upstream stage that wrote more than a metadata table, or the
// pipeline inputs when none did.
func (c *Context) InputFiles() ([]string, error) {
	for _, d := range c.Upstream {
		files, err := fsutil.ListFiles(d.OutputDir())
		if err != nil {
			return nil, err
		}
		files = slices.DeleteFunc(files, c.isMetadata)
		if len(files) > 0 {
			return files, nil
		}
	}
	return append([]string(nil), c.PipelineInputs...), nil
}

func (c *Context) isMetadata(path string) bool {
	return c.Metadata != nil && filepath.Base(path) == c.Metadata.FileName()
}

func (c *Context) OutputDir() string { return c.Stage.OutputDir() }
func (c *Context) TempDir() string   { return c.Stage.TempDir() }
func (c *Context) ScriptDir() string { return c.Stage.ScriptDir() }

// TimeoutMinutes is the script timeout, zero when unbounded.
func (c *Context) TimeoutMinutes() int { return c.Timeout }

// Prop returns a property or def when it is unset.
func (c *Context) Prop(name, def string) string {
	if v, ok := c.Props[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// IntProp returns an integer property or def when it is unset or malformed.
func (c *Context) IntProp(name string, def int) int {
	v, err := strconv.Atoi(c.Prop(name, ""))
	if err != nil {
		return def
	}
	return v
}
