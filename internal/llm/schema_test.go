package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaOfInlinesStructProperties(t *testing.T) {
	type line struct {
		Description string `json:"description"`
		Quantity    string `json:"quantity"`
	}
	type doc struct {
		VendorName string `json:"vendorName"`
		LineItems  []line `json:"lineItems"`
		GrandTotal string `json:"grandTotal"`
	}

	s, err := SchemaOf(doc{})
	require.NoError(t, err)

	assert.Contains(t, s, `"vendorName"`)
	assert.Contains(t, s, `"lineItems"`)
	assert.Contains(t, s, `"grandTotal"`)
	assert.Contains(t, s, `"quantity"`)
	assert.NotContains(t, s, "$ref")
	assert.NotContains(t, s, "$schema")
}

func TestSchemaOfStable(t *testing.T) {
	type demo struct {
		Name string `json:"name"`
	}
	first := MustSchemaOf(demo{})
	second := MustSchemaOf(demo{})
	assert.Equal(t, first, second)
}

func TestSchemaOfNil(t *testing.T) {
	_, err := SchemaOf(nil)
	assert.Error(t, err)
}
