package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"charon/internal/label"
)

func testPrincipal() label.Principal {
	return label.Principal{
		Name: "us_unclassified_only",
		Cats: label.NewSet("usg_unclassified"),
		Diss: label.NewSet("usg_noforn", "usg_relfvey"),
	}
}

func basePlan(id any) mongo.Pipeline {
	return mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: id}}}}}
}

func TestWildcardID(t *testing.T) {
	for _, sentinel := range []string{"*", "$id"} {
		plan := WildcardID(basePlan(sentinel))
		match := plan[0][0].Value.(bson.D)
		assert.Equal(t, bson.D{{Key: "$exists", Value: "true"}}, match[0].Value, "sentinel %q", sentinel)
	}
}

func TestWildcardID_LeavesBoundIDAlone(t *testing.T) {
	oid := bson.NewObjectID()
	plan := WildcardID(basePlan(oid))
	match := plan[0][0].Value.(bson.D)
	assert.Equal(t, oid, match[0].Value)
}

func TestWildcardID_HandlesMapMatch(t *testing.T) {
	plan := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{"_id": "*"}}}}
	plan = WildcardID(plan)
	match := plan[0][0].Value.(bson.M)
	assert.Equal(t, bson.D{{Key: "$exists", Value: "true"}}, match["_id"])
}

func TestRewrite_RootOnlyStageLayout(t *testing.T) {
	plan := Rewrite([]string{""}, testPrincipal(), basePlan("*"))

	// match + one annotation pair + two redacts + one projection
	require.Len(t, plan, 6)
	assert.Equal(t, "$match", plan[0][0].Key)
	assert.Equal(t, "$addFields", plan[1][0].Key)
	assert.Equal(t, "$addFields", plan[2][0].Key)
	assert.Equal(t, "$redact", plan[3][0].Key)
	assert.Equal(t, "$redact", plan[4][0].Key)
	assert.Equal(t, "$project", plan[5][0].Key)

	addCat := plan[1][0].Value.(bson.D)
	assert.Equal(t, CatMatches, addCat[0].Key)
	addDiss := plan[2][0].Value.(bson.D)
	assert.Equal(t, DissMatches, addDiss[0].Key)

	project := plan[5][0].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: CatMatches, Value: 0},
		{Key: DissMatches, Value: 0},
	}, project)
}

func TestRewrite_NestedPathsPrefixed(t *testing.T) {
	plan := Rewrite([]string{"", "FeeID"}, testPrincipal(), basePlan("*"))

	// match + two annotation pairs + two redacts + projection
	require.Len(t, plan, 8)
	addCat := plan[3][0].Value.(bson.D)
	assert.Equal(t, "FeeID.cat_matches", addCat[0].Key)
	addDiss := plan[4][0].Value.(bson.D)
	assert.Equal(t, "FeeID.diss_matches", addDiss[0].Key)

	project := plan[7][0].Value.(bson.D)
	assert.Equal(t, bson.D{
		{Key: "cat_matches", Value: 0},
		{Key: "diss_matches", Value: 0},
		{Key: "FeeID.cat_matches", Value: 0},
		{Key: "FeeID.diss_matches", Value: 0},
	}, project)
}

func TestAnnotationStages_WrapShapes(t *testing.T) {
	stages := annotationStages("FeeID", testPrincipal())
	require.Len(t, stages, 2)

	catMap := stages[0][0].Value.(bson.D)[0].Value.(bson.D)[0].Value.(bson.D)
	// category is a stored scalar: double wrap so the subset test sees a
	// one-element array of arrays
	assert.Equal(t, bson.A{bson.A{"$FeeID._sec.cat"}}, catMap[0].Value)

	dissMap := stages[1][0].Value.(bson.D)[0].Value.(bson.D)[0].Value.(bson.D)
	// dissemination is already an array: single wrap
	assert.Equal(t, bson.A{"$FeeID._sec.diss"}, dissMap[0].Value)
}

func TestAnnotationStages_GrantedTokensSorted(t *testing.T) {
	p := label.Principal{Cats: label.NewSet("b", "a", "c"), Diss: label.NewSet()}
	first := annotationStages("", p)
	second := annotationStages("", p)
	assert.Equal(t, first, second, "rewriting must be deterministic")

	catMap := first[0][0].Value.(bson.D)[0].Value.(bson.D)[0].Value.(bson.D)
	cond := catMap[2].Value.(bson.D)[0].Value.(bson.D)
	subset := cond[0].Value.(bson.D)[0].Value.(bson.A)
	assert.Equal(t, bson.A{"a", "b", "c"}, subset[1])
}

func TestRedactStage_Shape(t *testing.T) {
	stage := redactStage("$cat_matches")
	cond := stage[0].Value.(bson.D)[0].Value.(bson.D)
	subset := cond[0].Value.(bson.D)[0].Value.(bson.A)
	assert.Equal(t, bson.A{"false"}, subset[0])
	assert.Equal(t,
		bson.D{{Key: "$ifNull", Value: bson.A{"$cat_matches", bson.A{"true"}}}},
		subset[1])
	assert.Equal(t, "$$PRUNE", cond[1].Value)
	assert.Equal(t, "$$DESCEND", cond[2].Value)
}

func TestAnnotate_EmptyPrincipal(t *testing.T) {
	p := label.Principal{Cats: label.NewSet(), Diss: label.NewSet()}
	plan := Annotate([]string{""}, p, basePlan("*"))
	require.Len(t, plan, 3)

	catMap := plan[1][0].Value.(bson.D)[0].Value.(bson.D)[0].Value.(bson.D)
	cond := catMap[2].Value.(bson.D)[0].Value.(bson.D)
	subset := cond[0].Value.(bson.D)[0].Value.(bson.A)
	assert.Equal(t, bson.A{}, subset[1], "empty principal compares against the empty set")
}

func TestDenied(t *testing.T) {
	tests := []struct {
		name  string
		doc   bson.M
		paths []string
		want  bool
	}{
		{
			"all true",
			bson.M{CatMatches: bson.A{"true"}, DissMatches: bson.A{"true"}},
			[]string{""},
			false,
		},
		{
			"root cat false",
			bson.M{CatMatches: bson.A{"false"}, DissMatches: bson.A{"true"}},
			[]string{""},
			true,
		},
		{
			"nested diss false",
			bson.M{
				CatMatches:  bson.A{"true"},
				DissMatches: bson.A{"true"},
				"signature": bson.M{
					CatMatches:  bson.A{"true"},
					DissMatches: bson.A{"false"},
				},
			},
			[]string{"", "signature"},
			true,
		},
		{
			"inspected path absent from document",
			bson.M{CatMatches: bson.A{"true"}, DissMatches: bson.A{"true"}},
			[]string{"", "signature"},
			false,
		},
		{
			"plain map decoding",
			bson.M{"signature": map[string]any{CatMatches: []any{"false"}}},
			[]string{"", "signature"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Denied(tt.doc, tt.paths))
		})
	}
}
