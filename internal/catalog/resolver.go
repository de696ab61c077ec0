package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Resolver holds the topological order of a catalog. It is computed once
// when the catalog is built and never changes afterwards.
type Resolver struct {
	order    []string
	position map[string]int
	levels   map[string]int
}

// newResolver runs Kahn's algorithm over the catalog graph. Among sets that
// are ready at the same time the one declared first wins, so the order is
// stable across runs.
func newResolver(c *Catalog) (*Resolver, error) {
	inDegree := make(map[string]int, len(c.sets))
	dependents := make(map[string][]string, len(c.sets))

	for _, set := range c.sets {
		seen := make(map[string]bool, len(set.DependsOn))
		for _, dep := range set.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[set.Name]++
			dependents[dep] = append(dependents[dep], set.Name)
		}
	}

	ready := make([]string, 0, len(c.sets))
	for _, set := range c.sets {
		if inDegree[set.Name] == 0 {
			ready = append(ready, set.Name)
		}
	}

	r := &Resolver{
		order:    make([]string, 0, len(c.sets)),
		position: make(map[string]int, len(c.sets)),
		levels:   make(map[string]int, len(c.sets)),
	}

	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			return c.index[ready[i]] < c.index[ready[j]]
		})
		name := ready[0]
		ready = ready[1:]

		r.position[name] = len(r.order)
		r.order = append(r.order, name)

		for _, child := range dependents[name] {
			if r.levels[name]+1 > r.levels[child] {
				r.levels[child] = r.levels[name] + 1
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(r.order) != len(c.sets) {
		var cyclic []string
		for _, set := range c.sets {
			if inDegree[set.Name] > 0 {
				cyclic = append(cyclic, set.Name)
			}
		}
		return nil, NewCatalogError(
			fmt.Sprintf("dependency cycle detected among entity sets: %s", strings.Join(cyclic, ", ")),
			nil,
		).withSets(cyclic)
	}

	return r, nil
}

// Order returns the creation order: every set comes after the sets it depends on.
func (r *Resolver) Order() []string {
	return append([]string(nil), r.order...)
}

// ReverseOrder returns the exact reverse of Order, used for deletion.
func (r *Resolver) ReverseOrder() []string {
	out := make([]string, len(r.order))
	for i, name := range r.order {
		out[len(r.order)-1-i] = name
	}
	return out
}

// Position returns the index of name in Order, or -1 if it is unknown.
func (r *Resolver) Position(name string) int {
	if pos, ok := r.position[name]; ok {
		return pos
	}
	return -1
}

// Level returns the length of the longest dependency chain leading to name.
// Root sets are level 0.
func (r *Resolver) Level(name string) int {
	return r.levels[name]
}

// Sort returns names arranged in creation order. Unknown names are dropped.
func (r *Resolver) Sort(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.position[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.position[out[i]] < r.position[out[j]]
	})
	return out
}
