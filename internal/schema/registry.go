package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"charon/internal/label"
)

// Registry maps resource names to parsed schema trees and caches the derived
// labelled-path lists. It is populated once and read-only afterwards.
type Registry struct {
	resources     map[string]*Node
	labelledPaths map[string][]string
}

// emptyResource is returned for unknown resources: no fields, no labels
// beyond the implicit root.
var emptyResource = &Node{Kind: KindObject, Type: "dict", Fields: map[string]*Node{}}

// NewRegistry builds a registry from already-parsed resource trees. Label
// shapes are validated up front; a malformed _sec shape is a startup error.
func NewRegistry(resources map[string]*Node) (*Registry, error) {
	r := &Registry{
		resources:     make(map[string]*Node, len(resources)),
		labelledPaths: make(map[string][]string, len(resources)),
	}
	for name, node := range resources {
		if err := validateLabelShape(node, ""); err != nil {
			return nil, fmt.Errorf("resource %q: %w", name, err)
		}
		r.resources[name] = node
		r.labelledPaths[name] = walkLabelled(node)
	}
	return r, nil
}

// Load reads a schema file: a JSON object mapping resource names to
// top-level field descriptor maps.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema source: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from raw schema JSON.
func Parse(raw []byte) (*Registry, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse schema source: %w", err)
	}
	resources := make(map[string]*Node, len(m))
	for name, sub := range m {
		node, err := ParseResource(sub)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", name, err)
		}
		resources[name] = node
	}
	return NewRegistry(resources)
}

// Schema returns the schema tree for a resource, or the empty schema when
// the resource is unknown.
func (r *Registry) Schema(resource string) *Node {
	if node, ok := r.resources[resource]; ok {
		return node
	}
	return emptyResource
}

// Resources returns all registered resource names in sorted order.
func (r *Registry) Resources() []string {
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LabelledPaths returns, in pre-order, every path under the resource whose
// schema node carries a label. The list always begins with the empty path:
// the document root is labelled by invariant even when the schema omits an
// explicit root marker. Unknown resources yield the degenerate list [""].
func (r *Registry) LabelledPaths(resource string) []string {
	if paths, ok := r.labelledPaths[resource]; ok {
		return paths
	}
	return []string{""}
}

// walkLabelled computes the labelled-path list for one resource tree.
func walkLabelled(root *Node) []string {
	paths := []string{""}
	var walk func(n *Node, path string)
	walk = func(n *Node, path string) {
		switch n.Kind {
		case KindObject:
			for _, name := range n.fieldNames() {
				if name == label.FieldName {
					continue
				}
				child := n.Fields[name]
				childPath := joinPath(path, name)
				if child.Labelled() {
					paths = append(paths, childPath)
				}
				walk(child, childPath)
			}
		case KindList:
			if n.Elem != nil {
				// Elements share the enclosing path: the aggregation
				// language applies dotted paths across array members.
				if n.Elem.Labelled() {
					paths = append(paths, path)
				}
				walk(n.Elem, path)
			}
		}
	}
	walk(root, "")
	return paths
}
