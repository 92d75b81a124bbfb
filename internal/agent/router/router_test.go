package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiagent-chat/server/internal/agent/registry"
)

func allLoaded(string) bool { return true }

func loadedSet(ids ...string) func(string) bool {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return New(reg)
}

func TestRouteKeywords(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		question string
		want     string
		rule     string
	}{
		{"Tell me about the Amazon JUNGLE", "ForestAnalyzer", "jungle"},
		{"Which lake is the deepest?", "WaterBodyAnalyzer", "lake"},
		{"What did I ask before?", "SearchAgent", "before"},
		{"Best viewpoints in Norway", "ScenicLocationFinder", DefaultRule},
		// water has the highest priority
		{"trees along the river", "WaterBodyAnalyzer", "river"},
		{"", "ScenicLocationFinder", DefaultRule},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			d := r.Route(tt.question, allLoaded)
			assert.Equal(t, tt.want, d.Selected)
			assert.Equal(t, tt.rule, d.Rule)
			assert.True(t, d.Available)
		})
	}
}

func TestRouteMatchedAgentNotLoadedFallsBackToEntryPoint(t *testing.T) {
	r := newRouter(t)

	// "river" matches water first; forest is never consulted.
	d := r.Route("forest by the river", loadedSet("ScenicLocationFinder", "ForestAnalyzer"))
	assert.Equal(t, "ScenicLocationFinder", d.Selected)
	assert.Equal(t, "river", d.Rule)
	assert.True(t, d.Available)
}

func TestRouteEntryPointNotLoaded(t *testing.T) {
	r := newRouter(t)

	d := r.Route("hello", loadedSet("ForestAnalyzer"))
	assert.Equal(t, "ScenicLocationFinder", d.Selected)
	assert.False(t, d.Available)
}
