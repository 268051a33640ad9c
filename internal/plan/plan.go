package plan

import (
	"fmt"

	"github.com/specialistvlad/biolockgo/internal/stage"
)

// Branch is a group of stages that were flushed into the plan together.
// Stages inserted after grouping join the branch of their neighbour, so the
// branches of a plan list every stage in plan order.
type Branch struct {
	Type stage.Branch
	IDs  []string
}

// Plan is the ordered list of stages of one pipeline run.
type Plan struct {
	Root     string
	Stages   []stage.Descriptor
	Branches []Branch
}

// Len is the number of stages.
func (p *Plan) Len() int {
	return len(p.Stages)
}

// IDs returns the stage identifiers in plan order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Stages))
	for i, d := range p.Stages {
		ids[i] = d.ID
	}
	return ids
}

// Stage returns the descriptor with the given ordinal.
func (p *Plan) Stage(ordinal int) (stage.Descriptor, error) {
	if ordinal < 0 || ordinal >= len(p.Stages) {
		return stage.Descriptor{}, fmt.Errorf("no stage with ordinal %d in a plan of %d stages", ordinal, len(p.Stages))
	}
	return p.Stages[ordinal], nil
}

// Index returns the position of the first stage with id, or -1.
func (p *Plan) Index(id string) int {
	for i, d := range p.Stages {
		if d.ID == id {
			return i
		}
	}
	return -1
}
