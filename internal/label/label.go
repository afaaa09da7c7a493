// Package label implements the security-label algebra: the {cat, diss}
// label attached to documents and sub-objects, the per-request principal
// context, and the dominance relation between the two. Everything in this
// package is pure; the pipeline package reuses these sets when it builds
// database-side predicates.
package label

import (
	"sort"
	"strings"
)

// FieldName is the sibling key under which a labelled node stores its label.
const FieldName = "_sec"

// Label is the security marking of a single node: one classification
// category plus a set of dissemination control tokens.
type Label struct {
	Cat  string   `json:"cat" bson:"cat"`
	Diss []string `json:"diss" bson:"diss"`
}

// Set is an unordered collection of permission tokens.
type Set map[string]struct{}

// NewSet builds a Set from the given tokens. Empty tokens are dropped.
func NewSet(tokens ...string) Set {
	s := make(Set, len(tokens))
	for _, t := range tokens {
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

// Contains reports whether token is a member of the set.
func (s Set) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

// ContainsAll reports whether every member of other is a member of s.
// The empty set is trivially contained.
func (s Set) ContainsAll(other Set) bool {
	for t := range other {
		if !s.Contains(t) {
			return false
		}
	}
	return true
}

// Union returns a new set holding the members of both operands.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Add inserts the given tokens into the set.
func (s Set) Add(tokens ...string) {
	for _, t := range tokens {
		if t != "" {
			s[t] = struct{}{}
		}
	}
}

// Values returns the members in sorted order. Sorting keeps the rewritten
// pipelines deterministic for a given principal.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// String renders the set as a sorted, comma-joined list for logging.
func (s Set) String() string {
	return strings.Join(s.Values(), ",")
}

// Principal is the per-request security context of the authenticated
// subject: the categories it may read and the dissemination controls it is
// cleared for. A subject holding {unclassified, secret} reads both levels;
// categories do not imply one another.
type Principal struct {
	Name string
	Cats Set
	Diss Set
}

// Dominates reports whether l is dominated by the principal: the label's
// category must be one of the principal's categories AND every dissemination
// token on the label must be held by the principal. An empty diss list is
// trivially dominated; an empty category is not a member of any set.
func (p Principal) Dominates(l Label) bool {
	if !p.Cats.Contains(l.Cat) {
		return false
	}
	for _, d := range l.Diss {
		if !p.Diss.Contains(d) {
			return false
		}
	}
	return true
}

// CanWrite reports whether the principal holds every token in required,
// drawing from the union of its categories and dissemination rights. A
// writer must be cleared both to carry the classification and to carry
// every distribution marker it stamps.
func (p Principal) CanWrite(required Set) bool {
	return p.Cats.Union(p.Diss).ContainsAll(required)
}

// CollectRequired walks a write-request body and returns the union of every
// category and dissemination token referenced by a _sec object at one of the
// resource's labelled paths. The root label plus each labelled sub-object
// actually present contribute; absent labels contribute nothing.
func CollectRequired(body map[string]any, labelledPaths []string) Set {
	required := NewSet()
	for _, path := range labelledPaths {
		node := descend(body, path)
		if node == nil {
			continue
		}
		sec, ok := node[FieldName].(map[string]any)
		if !ok {
			continue
		}
		if cat, ok := sec["cat"].(string); ok {
			required.Add(cat)
		}
		if diss, ok := sec["diss"].([]any); ok {
			for _, d := range diss {
				if tok, ok := d.(string); ok {
					required.Add(tok)
				}
			}
		}
	}
	return required
}

// descend resolves a dotted path inside a decoded JSON body. The empty path
// is the body itself; a missing or non-object step resolves to nil.
func descend(body map[string]any, path string) map[string]any {
	if path == "" {
		return body
	}
	cur := body
	for _, step := range strings.Split(path, ".") {
		next, ok := cur[step].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
