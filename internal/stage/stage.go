package stage

import "context"

// Stage is the contract every pipeline step implements.
type Stage interface {
	// PreRequisites lists stage identifiers that must run before this one.
	PreRequisites() []string
	// PostRequisites lists stage identifiers that must run after this one.
	PostRequisites() []string
	// CheckDependencies validates configuration before anything executes.
	CheckDependencies(ctx context.Context, sc *Context) error
	// ExecuteTask does the work, either directly or by writing a MAIN_
	// script (plus workers) into the script directory.
	ExecuteTask(ctx context.Context, sc *Context) error
	// CleanUp runs after the work and its scripts have finished. It also
	// runs for completed stages when a pipeline is restarted.
	CleanUp(ctx context.Context, sc *Context) error
}

// Base provides no-op hooks for stages to embed.
type Base struct{}

func (Base) PreRequisites() []string { return nil }
func (Base) PostRequisites() []string { return nil }
func (Base) CheckDependencies(context.Context, *Context) error { return nil }
func (Base) CleanUp(context.Context, *Context) error { return nil }

// Branch tags a stage with the kind of work it does. Plan construction uses
// it to group stages.
type Branch string

const (
	BranchNone       Branch = ""
	BranchSeq        Branch = "seq"
	BranchClassifier Branch = "classifier"
	BranchOtuCount   Branch = "otu_count"
	BranchTaxaCount  Branch = "taxa_count"
	BranchStats      Branch = "stats"
	BranchR          Branch = "R"
	BranchReport     Branch = "report"
)
