// Package pipeline rewrites aggregation plans so that the database itself
// enforces label-based redaction. For every labelled path of a resource the
// rewriter appends match-evaluation stages, then pruning stages, then a
// projection that strips the evaluation metadata. The rewriter is a pure
// function of (labelled paths, principal, base plan); it never touches the
// store and never fails on well-typed input.
//
// Match outcomes are carried through the database as the string literals
// "true" and "false" inside one-element arrays. That encoding is an artifact
// of the aggregation language ($setIsSubset is the only practical subset
// test, and it wants arrays on both sides) and stays confined to this
// package; nothing outside ever sees the strings.
package pipeline

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"charon/internal/label"
)

// Reserved annotation field names. They never appear in stored documents and
// are projected away before a response is returned.
const (
	CatMatches  = "cat_matches"
	DissMatches = "diss_matches"
)

// Rewrite produces the full read-path plan: identifier wildcarding, one
// annotation pair per labelled path, category and dissemination pruning, and
// the metadata projection. Callers must not re-apply it to its own output.
func Rewrite(labelledPaths []string, p label.Principal, plan mongo.Pipeline) mongo.Pipeline {
	plan = WildcardID(plan)
	plan = Annotate(labelledPaths, p, plan)
	plan = append(plan, redactStage("$"+CatMatches))
	plan = append(plan, redactStage("$"+DissMatches))
	plan = append(plan, projectStage(labelledPaths))
	return plan
}

// Annotate appends the match-evaluation stages for every labelled path. The
// write path uses this alone to build its stored-data probe: the probe wants
// the raw match booleans, not a pruned document.
func Annotate(labelledPaths []string, p label.Principal, plan mongo.Pipeline) mongo.Pipeline {
	for _, path := range labelledPaths {
		plan = append(plan, annotationStages(path, p)...)
	}
	return plan
}

// WildcardID rewrites any $match stage whose _id constraint is the literal
// "*" or the unresolved binder placeholder "$id" into an existence
// predicate, so every document qualifies. This compensates for the upstream
// query binder leaving empty aggregation variables unbound.
func WildcardID(plan mongo.Pipeline) mongo.Pipeline {
	for _, stage := range plan {
		for _, elem := range stage {
			if elem.Key != "$match" {
				continue
			}
			switch match := elem.Value.(type) {
			case bson.D:
				for mi, cond := range match {
					if cond.Key == "_id" && isUnboundID(cond.Value) {
						match[mi].Value = bson.D{{Key: "$exists", Value: "true"}}
					}
				}
			case bson.M:
				if v, ok := match["_id"]; ok && isUnboundID(v) {
					match["_id"] = bson.D{{Key: "$exists", Value: "true"}}
				}
			}
		}
	}
	return plan
}

func isUnboundID(v any) bool {
	s, ok := v.(string)
	return ok && (s == "*" || s == "$id")
}

// annotationStages returns the two $addFields stages for one labelled path.
// The category comparand is a stored scalar, so it is wrapped twice: the
// outer array is what $map iterates and the inner array is what reaches the
// subset test. The dissemination list is already an array and is wrapped
// once. Either way the subset test receives a one-element array of arrays,
// and a missing label falls through $ifNull to the empty set, which is a
// subset of anything.
func annotationStages(path string, p label.Principal) []bson.D {
	prefix := ""
	if path != "" {
		prefix = path + "."
	}
	cat := bson.D{{Key: "$addFields", Value: bson.D{{
		Key:   prefix + CatMatches,
		Value: matchExpr(bson.A{bson.A{"$" + prefix + label.FieldName + ".cat"}}, p.Cats),
	}}}}
	diss := bson.D{{Key: "$addFields", Value: bson.D{{
		Key:   prefix + DissMatches,
		Value: matchExpr(bson.A{"$" + prefix + label.FieldName + ".diss"}, p.Diss),
	}}}}
	return []bson.D{cat, diss}
}

// matchExpr maps the wrapped comparand through a subset test against the
// principal's tokens, yielding ["true"] or ["false"].
func matchExpr(input bson.A, held label.Set) bson.D {
	granted := bson.A{}
	for _, t := range held.Values() {
		granted = append(granted, t)
	}
	return bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "as", Value: "rule"},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.D{
			{Key: "if", Value: bson.D{{Key: "$setIsSubset", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$$rule", bson.A{}}}},
				granted,
			}}}},
			{Key: "then", Value: "true"},
			{Key: "else", Value: "false"},
		}}}},
	}}}
}

// redactStage prunes, at every level of descent, any sub-document whose
// matches field contains "false". A level without the field yields no
// decision and descent continues, so an absent label never redacts and an
// already-pruned parent never exposes its children.
func redactStage(field string) bson.D {
	return bson.D{{Key: "$redact", Value: bson.D{{Key: "$cond", Value: bson.D{
		{Key: "if", Value: bson.D{{Key: "$setIsSubset", Value: bson.A{
			bson.A{"false"},
			bson.D{{Key: "$ifNull", Value: bson.A{field, bson.A{"true"}}}},
		}}}},
		{Key: "then", Value: "$$PRUNE"},
		{Key: "else", Value: "$$DESCEND"},
	}}}}}
}

// projectStage excludes the annotation fields at every labelled path. The
// root path elides to the bare field names; nested paths carry their dotted
// prefix.
func projectStage(labelledPaths []string) bson.D {
	exclude := bson.D{}
	for _, path := range labelledPaths {
		prefix := ""
		if path != "" {
			prefix = path + "."
		}
		exclude = append(exclude,
			bson.E{Key: prefix + CatMatches, Value: 0},
			bson.E{Key: prefix + DissMatches, Value: 0},
		)
	}
	return bson.D{{Key: "$project", Value: exclude}}
}

// Denied inspects a probe result produced by Annotate and reports whether
// any annotation at any of the inspected paths came back "false". Used by
// the write path's stored-data admission gate.
func Denied(doc bson.M, inspectedPaths []string) bool {
	for _, path := range inspectedPaths {
		node := descendDoc(doc, path)
		if node == nil {
			continue
		}
		if containsFalse(node[CatMatches]) || containsFalse(node[DissMatches]) {
			return true
		}
	}
	return false
}

// descendDoc resolves a dotted path inside an aggregation result.
func descendDoc(doc bson.M, path string) bson.M {
	if path == "" {
		return doc
	}
	cur := doc
	for _, step := range strings.Split(path, ".") {
		next, ok := asDoc(cur[step])
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func asDoc(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// containsFalse reports whether an annotation value (a one-element string
// array in any of the decodings the driver may hand back) contains "false".
func containsFalse(v any) bool {
	switch arr := v.(type) {
	case bson.A:
		for _, e := range arr {
			if e == "false" {
				return true
			}
		}
	case []any:
		for _, e := range arr {
			if e == "false" {
				return true
			}
		}
	case []string:
		for _, e := range arr {
			if e == "false" {
				return true
			}
		}
	}
	return false
}
