package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTaskID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate task id %s", id)
		seen[id] = true
	}
}

func TestPointIDForDeterministic(t *testing.T) {
	a := PointIDFor("task-1", "product", "Hydraulic Press")
	b := PointIDFor("task-1", "product", "Hydraulic Press")
	assert.Equal(t, a, b)

	// Name matching is case-insensitive.
	c := PointIDFor("task-1", "product", "hydraulic press")
	assert.Equal(t, a, c)

	// Any other tuple component changes the id.
	assert.NotEqual(t, a, PointIDFor("task-2", "product", "Hydraulic Press"))
	assert.NotEqual(t, a, PointIDFor("task-1", "service", "Hydraulic Press"))
	assert.NotEqual(t, a, PointIDFor("task-1", "product", "Hydraulic Pump"))
}

func TestPointIDForFieldsDoNotCollide(t *testing.T) {
	// The separator keeps (ab, c) and (a, bc) apart.
	assert.NotEqual(t,
		PointIDFor("t", "ab", "c"),
		PointIDFor("t", "a", "bc"))
}

func TestEmbeddingText(t *testing.T) {
	t.Run("prefers dedicated content", func(t *testing.T) {
		item := &CatalogItem{Name: "lathe", Description: "desc", Content: "full content"}
		assert.Equal(t, "full content", item.EmbeddingText())
	})

	t.Run("falls back to name and description", func(t *testing.T) {
		item := &CatalogItem{Name: "lathe", Description: "precision lathe"}
		assert.Equal(t, "lathe. precision lathe", item.EmbeddingText())
	})

	t.Run("name only", func(t *testing.T) {
		item := &CatalogItem{Name: "lathe"}
		assert.Equal(t, "lathe", item.EmbeddingText())
	})
}

func TestStructuredDataItemsAreMutable(t *testing.T) {
	data := StructuredData{
		Products: []CatalogItem{{Name: "a"}, {Name: "b"}},
		Services: []CatalogItem{{Name: "c"}},
	}

	items := data.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "c", items[2].Name)

	// Mutations through the pointers reach the underlying slices.
	items[0].Stored = true
	items[2].PointID = "p"
	assert.True(t, data.Products[0].Stored)
	assert.Equal(t, "p", data.Services[0].PointID)
}

func TestJobStateTerminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobProcessing.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
}
