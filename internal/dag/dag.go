// Package dag orders relations by their foreign keys so that tables can be
// created, truncated and dropped without violating constraints.
package dag

import (
	"fmt"
	"strings"

	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
)

// CyclicDependencyError lists the relations of a foreign key cycle, with the
// first relation repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic foreign key dependency: " + strings.Join(e.Cycle, " -> ")
}

type node struct {
	rel  *model.Relation
	deps []int
}

// Graph has an edge from every foreign key holder to the relation it
// references.
type Graph struct {
	nodes    []*node
	index    map[respath.Path]int
	external []respath.Path
}

// Build creates the graph of rels. References to relations outside rels are
// recorded as external and do not constrain the order. Self references are
// ignored.
func Build(rels []*model.Relation) *Graph {
	g := &Graph{index: make(map[respath.Path]int, len(rels))}
	for _, r := range rels {
		if _, dup := g.index[r.Path]; dup {
			continue
		}
		g.index[r.Path] = len(g.nodes)
		g.nodes = append(g.nodes, &node{rel: r})
	}
	seenExt := make(map[respath.Path]bool)
	for _, n := range g.nodes {
		for _, fk := range n.rel.ForeignKeys {
			if fk.Referenced == n.rel.Path {
				continue
			}
			dep, ok := g.index[fk.Referenced]
			if !ok {
				if !seenExt[fk.Referenced] {
					seenExt[fk.Referenced] = true
					g.external = append(g.external, fk.Referenced)
				}
				continue
			}
			n.deps = append(n.deps, dep)
		}
	}
	return g
}

// External returns referenced relations that are not part of the graph.
func (g *Graph) External() []respath.Path {
	return append([]respath.Path(nil), g.external...)
}

// CreationOrder returns the relations with every referenced relation before
// its referencers. Unrelated relations keep their input order.
func (g *Graph) CreationOrder() ([]*model.Relation, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(g.nodes))
	order := make([]*model.Relation, 0, len(g.nodes))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return g.cycleError(stack, i)
		}
		state[i] = visiting
		stack = append(stack, i)
		for _, d := range g.nodes[i].deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		order = append(order, g.nodes[i].rel)
		return nil
	}

	for i := range g.nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (g *Graph) cycleError(stack []int, at int) error {
	start := 0
	for i, n := range stack {
		if n == at {
			start = i
			break
		}
	}
	var cycle []string
	for _, n := range stack[start:] {
		cycle = append(cycle, g.nodes[n].rel.Path.String())
	}
	cycle = append(cycle, g.nodes[at].rel.Path.String())
	return &CyclicDependencyError{Cycle: cycle}
}

// DropOrder is the exact reverse of CreationOrder.
func (g *Graph) DropOrder() ([]*model.Relation, error) {
	order, err := g.CreationOrder()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// Dependents returns the relations of universe that reference any of
// targets, directly or through other relations, excluding targets
// themselves. The result follows the order of universe.
func Dependents(targets, universe []*model.Relation) []*model.Relation {
	in := make(map[respath.Path]bool, len(targets))
	for _, t := range targets {
		in[t.Path] = true
	}
	reached := make(map[respath.Path]bool)

	frontier := make([]respath.Path, 0, len(targets))
	for _, t := range targets {
		frontier = append(frontier, t.Path)
	}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, r := range universe {
			if in[r.Path] || reached[r.Path] || r.Path == cur {
				continue
			}
			if r.References(cur) {
				reached[r.Path] = true
				frontier = append(frontier, r.Path)
			}
		}
	}

	var out []*model.Relation
	for _, r := range universe {
		if reached[r.Path] {
			out = append(out, r)
			reached[r.Path] = false
		}
	}
	return out
}

// Describe renders relations as a comma separated list of paths.
func Describe(rels []*model.Relation) string {
	names := make([]string, len(rels))
	for i, r := range rels {
		names[i] = r.Path.String()
	}
	return fmt.Sprintf("[%s]", strings.Join(names, ", "))
}
