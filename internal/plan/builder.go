package plan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/fsutil"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/stage"
)

var (
	// ErrDepthExceeded is returned when requisite resolution nests deeper
	// than the configured maximum.
	ErrDepthExceeded = errors.New("requisite resolution exceeded max depth")
	// ErrCycle is returned when a stage requires itself, directly or not.
	ErrCycle = errors.New("requisite cycle detected")
)

// DefaultMaxDepth bounds requisite resolution per configured stage.
const DefaultMaxDepth = 50

// GunzipMarker identifies classifier stages that cannot read gzipped input.
const GunzipMarker = "qiime"

// Flags are the global switches that shape a plan.
type Flags struct {
	DisableImplicitStages bool
	DisablePreReqStages   bool
	ReportNumReads        bool
	Multiplexed           bool
	MultiLineSeqs         bool
	PairedReads           bool
}

// Defaults names the stages the builder inserts on its own.
type Defaults struct {
	MetadataImporter string
	Demultiplexer    string
	FastaConverter   string
	ReadCounter      string
	Gunzipper        string
}

// DefaultStages returns the built-in implicit stage identifiers.
func DefaultStages() Defaults {
	return Defaults{
		MetadataImporter: "ImportMetadata",
		Demultiplexer:    "Demultiplexer",
		FastaConverter:   "AwkFastaConverter",
		ReadCounter:      "RegisterNumReads",
		Gunzipper:        "Gunzipper",
	}
}

// Input is everything a build depends on.
type Input struct {
	Root       string
	StageIDs   []string
	Flags      Flags
	Defaults   Defaults
	InputFiles []string
	// IsGzipped defaults to a file extension check.
	IsGzipped func(path string) bool
	// MaxDepth defaults to DefaultMaxDepth.
	MaxDepth int
}

// Builder builds plans against a stage registry.
type Builder struct {
	reg *registry.Registry
}

// NewBuilder returns a Builder resolving identifiers through reg.
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{reg: reg}
}

// Build constructs the plan.
func (b *Builder) Build(ctx context.Context, in Input) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting plan construction.", "configured", in.StageIDs)

	if in.IsGzipped == nil {
		in.IsGzipped = fsutil.IsGzipped
	}
	if in.MaxDepth <= 0 {
		in.MaxDepth = DefaultMaxDepth
	}
	if in.Defaults == (Defaults{}) {
		in.Defaults = DefaultStages()
	}

	c := &construction{
		reg:     b.reg,
		in:      in,
		present: make(map[string]bool),
	}

	configured := c.addImplicit(ctx)
	logger.Debug("Build: Implicit stages added.", "stages", c.ids)

	if err := c.addConfigured(ctx, configured); err != nil {
		return nil, err
	}
	c.flush()
	logger.Debug("Build: Requisites resolved.", "stages", c.ids, "branches", len(c.branches))

	if err := c.insertReadCounter(ctx); err != nil {
		return nil, err
	}
	if err := c.insertGunzipper(ctx); err != nil {
		return nil, err
	}

	for _, id := range c.ids {
		if _, err := c.reg.Lookup(id); err != nil {
			return nil, err
		}
	}

	p := c.assign()
	logger.Debug("Build: Plan construction successful.", "stages", p.IDs())
	return p, nil
}

// construction is the mutable state of a single Build call.
type construction struct {
	reg *registry.Registry
	in  Input

	ids      []string
	present  map[string]bool
	buffer   []string
	branches []Branch

	depth int
	path  []string
}

// addImplicit puts the system-owned stages in front and returns the
// configured list without them.
func (c *construction) addImplicit(ctx context.Context) []string {
	configured := append([]string(nil), c.in.StageIDs...)
	if c.in.Flags.DisableImplicitStages {
		return configured
	}

	d := c.in.Defaults
	implicit := []string{d.MetadataImporter}
	if c.in.Flags.Multiplexed {
		implicit = append(implicit, d.Demultiplexer)
	}
	if c.in.Flags.MultiLineSeqs {
		implicit = append(implicit, d.FastaConverter)
	}
	for _, id := range implicit {
		c.ids = append(c.ids, id)
		c.present[id] = true
		configured = slices.DeleteFunc(configured, func(s string) bool { return s == id })
	}
	c.branches = append(c.branches, Branch{Type: stage.BranchNone, IDs: append([]string(nil), implicit...)})
	ctxlog.FromContext(ctx).Debug("Implicit stages prepended.", "stages", implicit)
	return configured
}

func (c *construction) addConfigured(ctx context.Context, configured []string) error {
	logger := ctxlog.FromContext(ctx)

	for _, id := range configured {
		entry, err := c.reg.Lookup(id)
		if err != nil {
			return err
		}
		if entry.Implicit && !c.in.Flags.DisableImplicitStages {
			logger.Warn("Ignoring configured stage, implicit stages are added by the system when needed.", "stage", id)
			continue
		}

		if entry.Branch == stage.BranchClassifier && c.bufferHasClassifier() {
			c.flush()
		}

		if !c.in.Flags.DisablePreReqStages {
			pre, err := c.resolveTop(id, prerequisites)
			if err != nil {
				return err
			}
			for _, p := range pre {
				if c.add(p) {
					logger.Info("Added prerequisite stage.", "stage", p, "for", id)
				}
			}
		}

		if c.add(id) {
			logger.Info("Added stage.", "stage", id)
		}

		post, err := c.resolveTop(id, postrequisites)
		if err != nil {
			return err
		}
		for _, p := range post {
			if c.add(p) {
				logger.Info("Added postrequisite stage.", "stage", p, "for", id)
			}
		}
	}
	return nil
}

// add appends id to the branch buffer unless it is already planned.
func (c *construction) add(id string) bool {
	if c.present[id] {
		return false
	}
	if entry, err := c.reg.Lookup(id); err == nil && entry.Branch == stage.BranchClassifier && c.bufferHasClassifier() {
		c.flush()
	}
	c.present[id] = true
	c.buffer = append(c.buffer, id)
	return true
}

func (c *construction) bufferHasClassifier() bool {
	for _, id := range c.buffer {
		if entry, err := c.reg.Lookup(id); err == nil && entry.Branch == stage.BranchClassifier {
			return true
		}
	}
	return false
}

// flush moves the branch buffer into the plan.
func (c *construction) flush() {
	if len(c.buffer) == 0 {
		return
	}
	b := Branch{IDs: c.buffer}
	for _, id := range c.buffer {
		if entry, err := c.reg.Lookup(id); err == nil && entry.Branch != stage.BranchNone {
			b.Type = entry.Branch
			break
		}
	}
	c.ids = append(c.ids, c.buffer...)
	c.branches = append(c.branches, b)
	c.buffer = nil
}

type direction string

const (
	prerequisites  direction = "prerequisites"
	postrequisites direction = "postrequisites"
)

func (c *construction) resolveTop(id string, dir direction) ([]string, error) {
	c.depth = 0
	c.path = []string{id}
	return c.resolve(id, dir)
}

// resolve returns the full closure of id's requisites in dir. For every
// requisite r the result holds r's prerequisites, then r, then r's
// postrequisites, without duplicates.
func (c *construction) resolve(id string, dir direction) ([]string, error) {
	c.depth++
	if c.depth > c.in.MaxDepth {
		return nil, fmt.Errorf("%w (%d) while resolving %s of %s", ErrDepthExceeded, c.in.MaxDepth, dir, id)
	}

	s, err := c.reg.Instantiate(id)
	if err != nil {
		return nil, fmt.Errorf("resolving %s of %s: %w", dir, id, err)
	}
	reqs := s.PreRequisites()
	if dir == postrequisites {
		reqs = s.PostRequisites()
	}

	var out []string
	for _, req := range reqs {
		if i := slices.Index(c.path, req); i >= 0 {
			cycle := append(append([]string(nil), c.path[i:]...), req)
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
		}
		c.path = append(c.path, req)

		pre, err := c.resolve(req, prerequisites)
		if err != nil {
			return nil, err
		}
		post, err := c.resolve(req, postrequisites)
		if err != nil {
			return nil, err
		}
		c.path = c.path[:len(c.path)-1]

		out = appendUnique(out, pre...)
		out = appendUnique(out, req)
		out = appendUnique(out, post...)
	}
	return out, nil
}

func appendUnique(list []string, ids ...string) []string {
	for _, id := range ids {
		if !slices.Contains(list, id) {
			list = append(list, id)
		}
	}
	return list
}

// insertReadCounter adds the read-count validator when read counts are
// reported and nothing in the plan produces them already.
func (c *construction) insertReadCounter(ctx context.Context) error {
	f := c.in.Flags
	counter := c.in.Defaults.ReadCounter
	if f.DisableImplicitStages || !f.ReportNumReads || f.PairedReads || len(c.in.InputFiles) == 0 || c.present[counter] {
		return nil
	}
	for _, id := range c.ids {
		entry, err := c.reg.Lookup(id)
		if err != nil {
			return err
		}
		if entry.CountsReads {
			return nil
		}
	}
	if _, err := c.reg.Lookup(counter); err != nil {
		return err
	}

	idx := 1
	if len(c.ids) > 1 && c.ids[1] == c.in.Defaults.Demultiplexer {
		idx = 2
	}
	idx = min(idx, len(c.ids))
	if idx > 0 {
		c.branchInsert(c.ids[idx-1], counter, true)
	}
	c.ids = slices.Insert(c.ids, idx, counter)
	c.present[counter] = true
	ctxlog.FromContext(ctx).Info("Added read-count validator.", "stage", counter, "index", idx)
	return nil
}

// insertGunzipper puts a decompression stage right before the first
// sequence-processing stage when that stage is a classifier that cannot
// read gzipped input.
func (c *construction) insertGunzipper(ctx context.Context) error {
	gunzipper := c.in.Defaults.Gunzipper
	if c.present[gunzipper] || len(c.in.InputFiles) == 0 || !c.in.IsGzipped(c.in.InputFiles[0]) {
		return nil
	}
	for i, id := range c.ids {
		entry, err := c.reg.Lookup(id)
		if err != nil {
			return err
		}
		if !entry.SeqProcessing && entry.Branch != stage.BranchClassifier {
			continue
		}
		if entry.Branch == stage.BranchClassifier && strings.Contains(strings.ToLower(id), GunzipMarker) {
			if _, err := c.reg.Lookup(gunzipper); err != nil {
				return err
			}
			c.branchInsert(id, gunzipper, false)
			c.ids = slices.Insert(c.ids, i, gunzipper)
			c.present[gunzipper] = true
			ctxlog.FromContext(ctx).Info("Input is gzipped, added decompression stage.", "stage", gunzipper, "before", id)
		}
		return nil
	}
	return nil
}

// branchInsert places id into the branch holding anchor, right after or
// before it, so branches keep covering the plan in order.
func (c *construction) branchInsert(anchor, id string, after bool) {
	for i := range c.branches {
		pos := slices.Index(c.branches[i].IDs, anchor)
		if pos < 0 {
			continue
		}
		if after {
			pos++
		}
		c.branches[i].IDs = slices.Insert(c.branches[i].IDs, pos, id)
		return
	}
}

// assign numbers the stages and derives their directories.
func (c *construction) assign() *Plan {
	p := &Plan{Root: c.in.Root, Branches: c.branches}
	total := len(c.ids)
	for ordinal, id := range c.ids {
		p.Stages = append(p.Stages, stage.Descriptor{
			ID:      id,
			Ordinal: ordinal,
			Dir:     filepath.Join(c.in.Root, stage.DirName(ordinal, total, id)),
		})
	}
	return p
}
