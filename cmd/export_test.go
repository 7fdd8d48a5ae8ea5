package cmd

import (
	"testing"

	"github.com/emicklei/dot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancyGraph(t *testing.T) {
	j, g, err := occupancyGraph()
	require.NoError(t, err)

	assert.Contains(t, string(j), "reserve")

	graph := g.String()
	for _, state := range []string{"free", "reserved", "installed"} {
		assert.Contains(t, graph, state)
	}

	assert.NotEmpty(t, dot.MermaidGraph(g, dot.MermaidTopDown))
}

func TestSplitIDs(t *testing.T) {
	testCases := []struct {
		name     string
		values   []string
		expected []string
	}{
		{"args", []string{"u1", "u2"}, []string{"u1", "u2"}},
		{"comma separated", []string{"u1,u2", " u3 "}, []string{"u1", "u2", "u3"}},
		{"empty values", []string{"", ",", "u1,"}, []string{"u1"}},
		{"none", nil, []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, splitIDs(tc.values))
		})
	}
}
