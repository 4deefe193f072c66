package monitoring

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanNode is one stage of an execution plan. Inputs are the stages whose
// output it consumes.
type PlanNode struct {
	Stage       string     `yaml:"stage"`
	Description string     `yaml:"description"`
	Inputs      []PlanNode `yaml:"inputs,omitempty"`
}

// Plan is the tree of stages a pipeline would execute; the root is the
// last stage.
type Plan struct {
	Root PlanNode `yaml:"plan"`
}

// PlanBuilder assembles a plan bottom-up: each Then wraps the current tree
// as the input of a new stage.
type PlanBuilder struct {
	current []PlanNode
}

// NewPlanBuilder creates an empty builder.
func NewPlanBuilder() *PlanBuilder {
	return &PlanBuilder{}
}

// Leaf adds an independent input stage.
func (pb *PlanBuilder) Leaf(stage, description string) *PlanBuilder {
	pb.current = append(pb.current, PlanNode{Stage: stage, Description: description})
	return pb
}

// Then adds a stage consuming everything added so far.
func (pb *PlanBuilder) Then(stage, description string) *PlanBuilder {
	node := PlanNode{Stage: stage, Description: description, Inputs: pb.current}
	pb.current = []PlanNode{node}
	return pb
}

// Build returns the plan. With several unconsumed leaves the root is a
// synthetic "plan" node over them.
func (pb *PlanBuilder) Build() Plan {
	switch len(pb.current) {
	case 0:
		return Plan{}
	case 1:
		return Plan{Root: pb.current[0]}
	default:
		return Plan{Root: PlanNode{Stage: "plan", Inputs: pb.current}}
	}
}

// StageCount returns the number of nodes in the plan.
func (p Plan) StageCount() int {
	if p.Root.Stage == "" {
		return 0
	}
	return countNodes(p.Root)
}

func countNodes(n PlanNode) int {
	count := 1
	for _, in := range n.Inputs {
		count += countNodes(in)
	}
	return count
}

// String renders the plan as an indented tree, last stage first.
func (p Plan) String() string {
	if p.Root.Stage == "" {
		return "(empty plan)\n"
	}
	var sb strings.Builder
	writeNode(&sb, p.Root, 0)
	return sb.String()
}

func writeNode(sb *strings.Builder, n PlanNode, depth int) {
	fmt.Fprintf(sb, "%s%s", strings.Repeat("  ", depth), n.Stage)
	if n.Description != "" {
		fmt.Fprintf(sb, ": %s", n.Description)
	}
	sb.WriteByte('\n')
	for _, in := range n.Inputs {
		writeNode(sb, in, depth+1)
	}
}

// YAML renders the plan for machine consumption.
func (p Plan) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}
