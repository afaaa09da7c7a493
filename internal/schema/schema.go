// Package schema holds resource schemas and answers which paths under a
// resource carry a security label. Schemas are loaded once at startup and
// immutable afterwards, so the registry is shared freely across requests.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"charon/internal/label"
)

// Kind discriminates the schema node variants.
type Kind int

const (
	// KindLeaf is a scalar field (string, number, boolean, ...).
	KindLeaf Kind = iota
	// KindObject is a mapping of field names to child nodes.
	KindObject
	// KindList is a homogeneous list; Elem describes the element shape.
	KindList
)

// Node is one node of a resource schema tree.
type Node struct {
	Kind   Kind
	Type   string // scalar type name for leaves, "dict"/"list" otherwise
	Fields map[string]*Node
	Elem   *Node
}

// Labelled reports whether documents at this node carry their own security
// label, i.e. the node is an object with a direct _sec child.
func (n *Node) Labelled() bool {
	if n == nil || n.Kind != KindObject {
		return false
	}
	_, ok := n.Fields[label.FieldName]
	return ok
}

// Field returns the named child of an object node, or nil.
func (n *Node) Field(name string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	return n.Fields[name]
}

// fieldNames returns the object's field names in sorted order so that every
// traversal of the same schema yields the same path list.
func (n *Node) fieldNames() []string {
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// descriptor is the wire form of a schema node: {"type": "...", "schema": ...}.
// For "dict" the schema value is a map of field descriptors; for "list" it is
// a single descriptor for the element and may be omitted.
type descriptor struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// parseNode converts one wire descriptor into a Node.
func parseNode(raw json.RawMessage) (*Node, error) {
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("invalid schema node: %w", err)
	}
	switch d.Type {
	case "dict":
		fields, err := parseFields(d.Schema)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindObject, Type: d.Type, Fields: fields}, nil
	case "list":
		node := &Node{Kind: KindList, Type: d.Type}
		if len(d.Schema) > 0 {
			elem, err := parseNode(d.Schema)
			if err != nil {
				return nil, err
			}
			node.Elem = elem
		}
		return node, nil
	default:
		return &Node{Kind: KindLeaf, Type: d.Type}, nil
	}
}

// parseFields converts a map of wire descriptors into object fields.
func parseFields(raw json.RawMessage) (map[string]*Node, error) {
	if len(raw) == 0 {
		return map[string]*Node{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("invalid schema object: %w", err)
	}
	fields := make(map[string]*Node, len(m))
	for name, sub := range m {
		node, err := parseNode(sub)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = node
	}
	return fields, nil
}

// ParseResource parses the top-level schema of one resource: a JSON object
// mapping field names to descriptors.
func ParseResource(raw json.RawMessage) (*Node, error) {
	fields, err := parseFields(raw)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindObject, Type: "dict", Fields: fields}, nil
}

// validateLabelShape checks that every _sec node in the tree declares a
// scalar cat and a list diss. The rewriter's dominance test relies on cat
// being a scalar; enforcing it here keeps the pipelines honest.
func validateLabelShape(n *Node, path string) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		if sec := n.Fields[label.FieldName]; sec != nil {
			cat := sec.Field("cat")
			if cat == nil || cat.Kind != KindLeaf || cat.Type != "string" {
				return fmt.Errorf("label at %q: cat must be a string scalar", displayPath(path))
			}
			if diss := sec.Field("diss"); diss != nil && diss.Kind != KindList {
				return fmt.Errorf("label at %q: diss must be a list", displayPath(path))
			}
		}
		for _, name := range n.fieldNames() {
			if err := validateLabelShape(n.Fields[name], joinPath(path, name)); err != nil {
				return err
			}
		}
	case KindList:
		if err := validateLabelShape(n.Elem, path); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
