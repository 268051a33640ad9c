package hcl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/biolockgo/internal/config"
	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// DefaultScriptPermissions is applied to script directories when the
// pipeline block does not say otherwise.
const DefaultScriptPermissions = "ug+rwx"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	env map[string]string
}

// NewLoader creates a new HCL configuration loader that exposes the process
// environment to expressions.
func NewLoader() *Loader {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &Loader{env: env}
}

func (l *Loader) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(l.env))
	for k, v := range l.env {
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

// Load parses every .hcl file found under paths, in lexical order, and
// merges the blocks into one model. Exactly one pipeline block must exist
// across all files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	model := &config.Model{}
	var pipelineFile string

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if root.Pipeline != nil {
			if pipelineFile != "" {
				return nil, fmt.Errorf("duplicate pipeline block in %s, first declared in %s", file, pipelineFile)
			}
			pipelineFile = file
			model.Pipeline = translatePipeline(root.Pipeline)
		}
		if root.Defaults != nil {
			model.Defaults = translateDefaults(root.Defaults)
		}
		if root.Notify != nil {
			model.Notify = translateNotify(root.Notify)
		}
		for _, s := range root.Stages {
			stage, err := translateStage(s, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Stages = append(model.Stages, stage)
		}
	}

	if pipelineFile == "" {
		return nil, errors.New("no pipeline block found")
	}
	logger.Debug("HCL loading complete.", "pipeline", model.Pipeline.Name, "stages", len(model.Stages))
	return model, nil
}

func translatePipeline(p *pipelineBlock) config.Pipeline {
	out := config.Pipeline{
		Name:                  p.Name,
		InputDirs:             p.InputDirs,
		MetadataFile:          p.MetadataFile,
		DisableImplicitStages: p.DisableImplicitStages,
		DisablePreReqStages:   p.DisablePreReqStages,
		ReportNumReads:        true,
		Multiplexed:           p.Multiplexed,
		MultiLineSeqs:         p.MultiLineSeqs,
		PairedReads:           p.PairedReads,
		DeleteTempFiles:       p.DeleteTempFiles,
		MaxResolutionDepth:    p.MaxResolutionDepth,
		ScriptPermissions:     DefaultScriptPermissions,
		PipelinePermissions:   p.PipelinePermissions,
	}
	if p.ReportNumReads != nil {
		out.ReportNumReads = *p.ReportNumReads
	}
	if p.ScriptPermissions != nil {
		out.ScriptPermissions = *p.ScriptPermissions
	}
	return out
}

func translateDefaults(d *defaultsBlock) config.Defaults {
	return config.Defaults{
		MetadataImporter: d.MetadataImporter,
		Demultiplexer:    d.Demultiplexer,
		FastaConverter:   d.FastaConverter,
		ReadCounter:      d.ReadCounter,
		Gunzipper:        d.Gunzipper,
	}
}

func translateNotify(n *notifyBlock) *config.Notify {
	return &config.Notify{
		URL:                n.URL,
		Namespace:          n.Namespace,
		Event:              n.Event,
		InsecureSkipVerify: n.InsecureSkipVerify,
	}
}

func translateStage(s *stageBlock, evalCtx *hcl.EvalContext) (*config.Stage, error) {
	props, err := decodeProperties(s.Properties, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", s.ID, err)
	}
	return &config.Stage{
		ID:        s.ID,
		Timeout:   s.Timeout,
		BatchSize: s.BatchSize,
		Props:     props,
	}, nil
}

// decodeProperties evaluates a properties object into string values. Numbers
// and bools are accepted and rendered in their HCL form.
func decodeProperties(expr hcl.Expression, evalCtx *hcl.EvalContext) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	converted, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil {
		return nil, fmt.Errorf("properties must be an object of strings, numbers or bools: %w", err)
	}
	var props map[string]string
	if err := gocty.FromCtyValue(converted, &props); err != nil {
		return nil, err
	}
	return props, nil
}

// findAllHCLFiles walks all given paths and returns a sorted list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		var found []string
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return allFiles, nil
}
