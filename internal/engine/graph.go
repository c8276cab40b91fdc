package engine

import (
	"fmt"
	"sort"

	"github.com/groundwork-io/groundwork/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	addr     string
	edges    []string // addresses this node depends on
	revEdges []string // addresses that depend on this node
}

// BuildDAG constructs a dependency graph from declared resources. Edges come
// from explicit dependsOn entries and from every ref:// occurrence in
// attribute values. A reference to an undeclared resource is an error; so is
// any cycle, a self-reference being the one-node case.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode, len(resources)),
	}

	for _, res := range resources {
		addr := res.Addr()
		dag.nodes[addr] = &dagNode{addr: addr}
	}

	for _, res := range resources {
		addr := res.Addr()
		node := dag.nodes[addr]

		for _, dep := range res.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, &UnknownReferenceError{Address: addr, Target: dep}
			}
			node.edges = append(node.edges, dep)
		}

		for _, ref := range extractRefs(res.Attributes) {
			depAddr, _, ok := ir.ParseRef(ref)
			if !ok {
				return nil, fmt.Errorf("%s: malformed reference %q", addr, ref)
			}
			if _, exists := dag.nodes[depAddr]; !exists {
				return nil, &UnknownReferenceError{Address: addr, Target: depAddr}
			}
			node.edges = append(node.edges, depAddr)
		}

		node.edges = dedupe(node.edges)
	}

	return dag.finish()
}

// BuildDAGFromState constructs a dependency graph from state records, using
// the dependencies captured at apply time. Destroy ordering comes from here.
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode, len(resources)),
	}

	for _, res := range resources {
		addr := res.Addr()
		dag.nodes[addr] = &dagNode{addr: addr, edges: dedupe(res.Dependencies)}
	}

	// a record may list dependencies that have since left state
	for _, node := range dag.nodes {
		kept := node.edges[:0]
		for _, dep := range node.edges {
			if _, ok := dag.nodes[dep]; ok {
				kept = append(kept, dep)
			}
		}
		node.edges = kept
	}

	return dag.finish()
}

func (d *DAG) finish() (*DAG, error) {
	for _, addr := range d.sortedAddrs() {
		for _, dep := range d.nodes[addr].edges {
			d.nodes[dep].revEdges = append(d.nodes[dep].revEdges, addr)
		}
	}

	if cycle := d.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Path: cycle}
	}

	d.order = d.topoSort()
	d.revOrder = make([]string, len(d.order))
	for i, addr := range d.order {
		d.revOrder[len(d.order)-1-i] = addr
	}
	return d, nil
}

// CreationOrder returns addresses in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns addresses in reverse dependency order, dependents
// before their dependencies.
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of addr.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every address reachable from addr along dependency
// edges, not including addr itself.
func (d *DAG) TransitiveDeps(addr string) map[string]bool {
	deps := make(map[string]bool)
	node, ok := d.nodes[addr]
	if !ok {
		return deps
	}

	queue := append([]string{}, node.edges...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if deps[next] {
			continue
		}
		deps[next] = true
		queue = append(queue, d.nodes[next].edges...)
	}
	return deps
}

// findCycle returns the first dependency cycle found, first node repeated
// last, or nil when the graph is acyclic.
func (d *DAG) findCycle() []string {
	visited := make(map[string]bool, len(d.nodes))
	onPath := make(map[string]bool, len(d.nodes))

	var walk func(addr string, path []string) []string
	walk = func(addr string, path []string) []string {
		visited[addr] = true
		onPath[addr] = true
		path = append(path, addr)

		for _, dep := range d.nodes[addr].edges {
			if onPath[dep] {
				start := 0
				for i, a := range path {
					if a == dep {
						start = i
						break
					}
				}
				return append(append([]string{}, path[start:]...), dep)
			}
			if !visited[dep] {
				if cycle := walk(dep, path); cycle != nil {
					return cycle
				}
			}
		}

		onPath[addr] = false
		return nil
	}

	for _, addr := range d.sortedAddrs() {
		if !visited[addr] {
			if cycle := walk(addr, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// topoSort performs Kahn's algorithm. Only called on a cycle-free graph.
// Ties break lexicographically so ordering is stable across runs.
func (d *DAG) topoSort() []string {
	inDegree := make(map[string]int, len(d.nodes))
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
	}

	var queue []string
	for _, addr := range d.sortedAddrs() {
		if inDegree[addr] == 0 {
			queue = append(queue, addr)
		}
	}

	sorted := make([]string, 0, len(d.nodes))
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, addr)

		var released []string
		for _, dependent := range d.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sort.Strings(released)
		queue = append(queue, released...)
	}
	return sorted
}

func (d *DAG) sortedAddrs() []string {
	addrs := make([]string, 0, len(d.nodes))
	for addr := range d.nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// extractRefs collects every ref:// occurrence in an attribute value,
// recursing through nested maps and lists.
func extractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if ir.IsRef(val) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, vv := range val {
			refs = append(refs, extractRefs(vv)...)
		}
	case map[any]any:
		for _, vv := range val {
			refs = append(refs, extractRefs(vv)...)
		}
	case []any:
		for _, vv := range val {
			refs = append(refs, extractRefs(vv)...)
		}
	}
	return refs
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
