package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/strataconf/strata/pkg/engine"
)

// GraphNode is one document in the workspace dependency graph.
type GraphNode struct {
	// ID is the document identifier.
	ID string `json:"id"`

	// Type is the document type name. Empty for fragments and other
	// referenced files no type pattern claims.
	Type string `json:"type,omitempty"`

	// Level is the node's validation level. Documents at the same level
	// share no dependency and can be checked in parallel.
	Level int `json:"level"`

	// Missing marks a referenced file that does not exist.
	Missing bool `json:"missing,omitempty"`

	// Dependencies lists the documents this one composes from.
	Dependencies []string `json:"dependencies,omitempty"`

	// Dependents lists the documents composing from this one.
	Dependents []string `json:"dependents,omitempty"`
}

// GraphEdge is one composition reference between two documents.
type GraphEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Directive string `json:"directive"`
}

// Graph is the workspace-wide dependency graph built from $extends and
// $include references.
type Graph struct {
	Nodes map[string]*GraphNode `json:"nodes"`
	Edges []GraphEdge           `json:"edges"`
	Roots []string              `json:"roots"`
	Depth int                   `json:"depth"`

	levels [][]string
}

// Levels returns the validation levels, bases before dependents. The
// identifiers within each level are sorted.
func (g *Graph) Levels() [][]string {
	return g.levels
}

// TransitiveDependents returns every document reachable from the given
// identifiers by following dependent edges, excluding the inputs
// themselves. Changed bases and fragments map to the documents whose
// composition they affect.
func (g *Graph) TransitiveDependents(ids ...string) []string {
	seen := make(map[string]bool, len(ids))
	queue := append([]string(nil), ids...)
	var out []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, ok := g.Nodes[id]
		if !ok {
			continue
		}
		for _, dep := range node.Dependents {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}

	sort.Strings(out)
	return out
}

// ToDOT renders the graph in DOT format for Graphviz tools. Nodes are
// grouped by level, with extends edges solid and include edges dashed.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Workspace {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			node := g.Nodes[id]
			label := id
			if node.Type != "" {
				label = fmt.Sprintf("%s\\n%s", id, node.Type)
			}
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				id, label, nodeColor(node)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, edge := range g.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
			edge.From, edge.To, edgeStyle(edge.Directive)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeColor(node *GraphNode) string {
	switch {
	case node.Missing:
		return "lightcoral"
	case node.Type == "":
		return "lightyellow"
	default:
		return "lightblue"
	}
}

func edgeStyle(directive string) string {
	if directive == engine.DirectiveInclude {
		return "style=dashed, color=blue"
	}
	return "style=solid, color=black"
}

// graphBuilder accumulates nodes and edges while scanning raw documents.
type graphBuilder struct {
	ws *Workspace

	nodes      map[string]*GraphNode
	adjacency  map[string][]string
	reverse    map[string][]string
	inDegree   map[string]int
	directives map[string]string
	levels     [][]string
}

// BuildGraph scans every typed document's raw tree for $extends and
// $include references and builds the workspace dependency graph. Files
// referenced but absent become Missing nodes; a reference cycle is an
// error.
func (w *Workspace) BuildGraph() (*Graph, error) {
	b := &graphBuilder{
		ws:         w,
		nodes:      make(map[string]*GraphNode),
		adjacency:  make(map[string][]string),
		reverse:    make(map[string][]string),
		inDegree:   make(map[string]int),
		directives: make(map[string]string),
	}

	refs, err := w.Documents()
	if err != nil {
		return nil, err
	}

	queue := make([]string, 0, len(refs))
	for _, ref := range refs {
		b.addNode(ref.ID, ref.Type)
		queue = append(queue, ref.ID)
	}

	scanned := make(map[string]bool, len(queue))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if scanned[id] {
			continue
		}
		scanned[id] = true

		targets, err := b.scan(id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, targets...)
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.build(), nil
}

func (b *graphBuilder) addNode(id, docType string) *GraphNode {
	if node, ok := b.nodes[id]; ok {
		return node
	}
	node := &GraphNode{ID: id, Type: docType}
	b.nodes[id] = node
	b.adjacency[id] = nil
	b.reverse[id] = nil
	return node
}

// scan loads one document's raw tree and records its outgoing
// references. It returns the referenced identifiers so they get scanned
// in turn.
func (b *graphBuilder) scan(id string) ([]string, error) {
	node := b.nodes[id]

	_, raw, err := b.ws.loadRaw(id)
	if err != nil {
		var engineErr *engine.EngineError
		if errors.As(err, &engineErr) && errors.Is(engineErr.Err, fs.ErrNotExist) {
			node.Missing = true
			return nil, nil
		}
		return nil, err
	}

	docDir := filepath.Dir(filepath.Join(b.ws.paths.Root(), filepath.FromSlash(id)))

	var targets []string
	addRef := func(ref, directive string) error {
		abs, err := b.ws.paths.Resolve(docDir, ref, directive)
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		targetID := strings.TrimSuffix(filepath.ToSlash(b.ws.paths.Rel(abs)), ".json")
		if _, ok := b.nodes[targetID]; !ok {
			targetType := ""
			if t, err := b.ws.TypeFor(targetID); err == nil {
				targetType = t.Name
			}
			b.addNode(targetID, targetType)
		}
		b.addEdge(targetID, id, directive)
		targets = append(targets, targetID)
		return nil
	}

	if ref, ok := raw[engine.DirectiveExtends].(string); ok && ref != "" {
		if err := addRef(ref, engine.DirectiveExtends); err != nil {
			return nil, err
		}
	}
	for _, ref := range includeRefs(raw) {
		if err := addRef(ref, engine.DirectiveInclude); err != nil {
			return nil, err
		}
	}

	return targets, nil
}

// addEdge records that from must be composed before to.
func (b *graphBuilder) addEdge(from, to, directive string) {
	key := from + " -> " + to
	if _, ok := b.directives[key]; ok {
		return
	}
	b.directives[key] = directive
	b.adjacency[from] = append(b.adjacency[from], to)
	b.reverse[to] = append(b.reverse[to], from)
	b.inDegree[to]++
}

// includeRefs walks a raw tree collecting every $include reference.
func includeRefs(value any) []string {
	var refs []string

	switch v := value.(type) {
	case map[string]any:
		if len(v) == 1 {
			if ref, ok := v[engine.DirectiveInclude].(string); ok {
				return []string{ref}
			}
		}
		for _, child := range v {
			refs = append(refs, includeRefs(child)...)
		}
	case []any:
		for _, elem := range v {
			refs = append(refs, includeRefs(elem)...)
		}
	}

	return refs
}

// detectCycles uses depth-first search to find reference cycles.
func (b *graphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	ids := make([]string, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !visited[id] {
			if cycle := b.findCycle(id, visited, recStack, nil); cycle != nil {
				return b.cycleError(cycle)
			}
		}
	}
	return nil
}

func (b *graphBuilder) findCycle(id string, visited, recStack map[string]bool, path []string) []string {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, next := range b.adjacency[id] {
		if !visited[next] {
			if cycle := b.findCycle(next, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[next] {
			start := 0
			for i, p := range path {
				if p == next {
					start = i
					break
				}
			}
			return append(path[start:], next)
		}
	}

	recStack[id] = false
	return nil
}

// cycleError maps a cycle to the matching engine error: a fragment cycle
// when any edge in it is an include, an inheritance cycle otherwise.
func (b *graphBuilder) cycleError(cycle []string) error {
	directive := engine.DirectiveExtends
	for i := 0; i < len(cycle)-1; i++ {
		if b.directives[cycle[i]+" -> "+cycle[i+1]] == engine.DirectiveInclude {
			directive = engine.DirectiveInclude
			break
		}
	}

	if directive == engine.DirectiveInclude {
		return engine.NewCircularFragmentIncludeError(cycle[0], cycle)
	}
	return engine.NewCircularInheritanceError(cycle[0], cycle)
}

// computeLevels assigns validation levels with Kahn's algorithm. Nodes
// at the same level have no path between them.
func (b *graphBuilder) computeLevels() error {
	inDegree := make(map[string]int, len(b.nodes))
	for id := range b.nodes {
		inDegree[id] = b.inDegree[id]
	}

	var current []string
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}
	if len(current) == 0 && len(b.nodes) > 0 {
		return fmt.Errorf("workspace graph has no roots")
	}

	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		b.levels = append(b.levels, current)
		processed += len(current)

		var next []string
		for _, id := range current {
			for _, dependent := range b.adjacency[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if processed != len(b.nodes) {
		return fmt.Errorf("workspace graph is not acyclic")
	}
	return nil
}

func (b *graphBuilder) build() *Graph {
	graph := &Graph{
		Nodes:  b.nodes,
		Edges:  make([]GraphEdge, 0, len(b.directives)),
		Depth:  len(b.levels),
		levels: b.levels,
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			node := b.nodes[id]
			node.Level = level
			node.Dependencies = sortedCopy(b.reverse[id])
			node.Dependents = sortedCopy(b.adjacency[id])
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}
	sort.Strings(graph.Roots)

	for from, targets := range b.adjacency {
		for _, to := range targets {
			graph.Edges = append(graph.Edges, GraphEdge{
				From:      from,
				To:        to,
				Directive: b.directives[from+" -> "+to],
			})
		}
	}
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].From != graph.Edges[j].From {
			return graph.Edges[i].From < graph.Edges[j].From
		}
		return graph.Edges[i].To < graph.Edges[j].To
	})

	return graph
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
