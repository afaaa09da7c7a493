package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feesSchema = `{
	"fees": {
		"FeeID": {"type": "string"},
		"FeeAmount": {"type": "string"},
		"attachments": {
			"type": "dict",
			"schema": {
				"_sec": {
					"type": "dict",
					"schema": {
						"cat": {"type": "string"},
						"diss": {"type": "list", "schema": {"type": "string"}}
					}
				},
				"documents": {"type": "list"}
			}
		},
		"_sec": {
			"type": "dict",
			"schema": {
				"cat": {"type": "string"},
				"diss": {"type": "list", "schema": {"type": "string"}}
			}
		}
	},
	"fees_nested": {
		"FeeID": {
			"type": "dict",
			"schema": {
				"value": {"type": "string"},
				"_sec": {
					"type": "dict",
					"schema": {
						"cat": {"type": "string"},
						"diss": {"type": "list", "schema": {"type": "string"}}
					}
				}
			}
		},
		"BuildingID": {"type": "string"},
		"_sec": {
			"type": "dict",
			"schema": {
				"cat": {"type": "string"},
				"diss": {"type": "list", "schema": {"type": "string"}}
			}
		}
	}
}`

func TestParse_LabelledPaths(t *testing.T) {
	reg, err := Parse([]byte(feesSchema))
	require.NoError(t, err)

	// Root first, nested labelled paths in pre-order.
	assert.Equal(t, []string{"", "attachments"}, reg.LabelledPaths("fees"))
	assert.Equal(t, []string{"", "FeeID"}, reg.LabelledPaths("fees_nested"))
}

func TestLabelledPaths_UnknownResource(t *testing.T) {
	reg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, []string{""}, reg.LabelledPaths("nope"))
	node := reg.Schema("nope")
	require.NotNil(t, node)
	assert.Empty(t, node.Fields)
}

func TestResources_Sorted(t *testing.T) {
	reg, err := Parse([]byte(feesSchema))
	require.NoError(t, err)
	assert.Equal(t, []string{"fees", "fees_nested"}, reg.Resources())
}

func TestNode_Labelled(t *testing.T) {
	reg, err := Parse([]byte(feesSchema))
	require.NoError(t, err)

	fees := reg.Schema("fees")
	assert.True(t, fees.Labelled())
	assert.True(t, fees.Field("attachments").Labelled())
	assert.False(t, fees.Field("FeeID").Labelled())
	assert.False(t, fees.Field("missing").Labelled())
}

func TestValidate_CatMustBeScalar(t *testing.T) {
	bad := `{
		"fees": {
			"_sec": {
				"type": "dict",
				"schema": {
					"cat": {"type": "list", "schema": {"type": "string"}},
					"diss": {"type": "list", "schema": {"type": "string"}}
				}
			}
		}
	}`
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cat must be a string scalar")
}

func TestParse_ListOfLabelledObjects(t *testing.T) {
	raw := `{
		"ledger": {
			"entries": {
				"type": "list",
				"schema": {
					"type": "dict",
					"schema": {
						"value": {"type": "string"},
						"_sec": {
							"type": "dict",
							"schema": {
								"cat": {"type": "string"},
								"diss": {"type": "list", "schema": {"type": "string"}}
							}
						}
					}
				}
			}
		}
	}`
	reg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "entries"}, reg.LabelledPaths("ledger"))
}
