package build

import "fmt"

// Graph is the fixed stage dependency DAG. It is assembled at construction
// time from stage definitions, never from user input; cycles and dangling
// artifact references are construction-time errors.
type Graph struct {
	stages map[string]*Stage
	order  []string // declaration order, for stable iteration
}

// NewGraph validates the stage set and returns the DAG.
func NewGraph(stages []*Stage) (*Graph, error) {
	g := &Graph{stages: make(map[string]*Stage, len(stages))}

	for _, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("graph: stage with empty name")
		}
		if _, dup := g.stages[s.Name]; dup {
			return nil, fmt.Errorf("graph: duplicate stage %q", s.Name)
		}
		g.stages[s.Name] = s
		g.order = append(g.order, s.Name)
	}

	for _, s := range stages {
		for _, need := range s.Needs {
			if need == s.Name {
				return nil, fmt.Errorf("graph: stage %q depends on itself", s.Name)
			}
			if _, ok := g.stages[need]; !ok {
				return nil, fmt.Errorf("graph: stage %q consumes artifact of unknown stage %q", s.Name, need)
			}
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// Stages returns the stage definitions in declaration order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.stages[name])
	}
	return out
}

// Stage returns one stage by name.
func (g *Graph) Stage(name string) (*Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// dependents returns the stages that consume name's artifact.
func (g *Graph) dependents(name string) []*Stage {
	var out []*Stage
	for _, other := range g.order {
		for _, need := range g.stages[other].Needs {
			if need == name {
				out = append(out, g.stages[other])
				break
			}
		}
	}
	return out
}

// detectCycles runs a depth-first search with the classic three-color
// scheme: permanent (fully visited), temporary (in the current recursion
// stack), and unvisited.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool, len(g.stages))
	temporary := make(map[string]bool, len(g.stages))

	var visit func(name string) error
	visit = func(name string) error {
		if permanent[name] {
			return nil
		}
		if temporary[name] {
			return fmt.Errorf("graph: cycle detected involving stage %q", name)
		}
		temporary[name] = true
		for _, need := range g.stages[name].Needs {
			if err := visit(need); err != nil {
				return err
			}
		}
		delete(temporary, name)
		permanent[name] = true
		return nil
	}

	for _, name := range g.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
