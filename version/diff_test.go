package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/version"
)

type nested struct {
	Name   string         `json:"name"`
	Count  int            `json:"count"`
	Date   string         `json:"date"`
	Rates  []string       `json:"rates"`
	Detail map[string]any `json:"detail,omitempty"`
}

func TestDiff_ReportsLeafChangesWithPaths(t *testing.T) {
	before := nested{Name: "loan-a", Count: 12, Date: "2024-01-01", Rates: []string{"0.05"}}
	after := nested{Name: "loan-a", Count: 14, Date: "2024-01-01", Rates: []string{"0.05", "0.07"}}

	changes, err := version.Diff(version.DiffConfig{}, before, after)
	require.NoError(t, err)
	require.Len(t, changes.Input, 2)
	assert.Empty(t, changes.Output)

	assert.Equal(t, "count", changes.Input[0].Path)
	assert.Equal(t, float64(12), changes.Input[0].Old)
	assert.Equal(t, float64(14), changes.Input[0].New)

	assert.Equal(t, "rates.1", changes.Input[1].Path)
	assert.Nil(t, changes.Input[1].Old)
	assert.Equal(t, "0.07", changes.Input[1].New)
}

func TestDiff_DatesCompareByValue(t *testing.T) {
	// Two separately built snapshots with the same ISO date are unchanged.
	before := nested{Date: "2024-03-01"}
	after := nested{Date: "2024-03-01"}

	changes, err := version.Diff(version.DiffConfig{}, before, after)
	require.NoError(t, err)
	assert.Empty(t, changes.Input)
}

func TestDiff_NilBeforeIsEmptyBaseline(t *testing.T) {
	after := nested{Name: "loan-a", Count: 12}

	changes, err := version.Diff(version.DiffConfig{}, nil, after)
	require.NoError(t, err)

	byPath := map[string]version.Change{}
	for _, c := range changes.Input {
		byPath[c.Path] = c
	}
	require.Contains(t, byPath, "name")
	assert.Nil(t, byPath["name"].Old)
	assert.Equal(t, "loan-a", byPath["name"].New)
}

func TestDiff_RoutingTables(t *testing.T) {
	cfg := version.DiffConfig{
		ExcludedPaths:  []string{"detail.internal"},
		OutputPaths:    []string{"rates"},
		GeneratedPaths: []string{"count"},
	}
	before := nested{Count: 1, Rates: []string{"0.05"}, Detail: map[string]any{"internal": "x", "visible": "a"}}
	after := nested{Count: 2, Rates: []string{"0.06"}, Detail: map[string]any{"internal": "y", "visible": "b"}}

	changes, err := version.Diff(cfg, before, after)
	require.NoError(t, err)

	// count is generated: suppressed from input. detail.internal: excluded
	// everywhere. rates: routed to output.
	require.Len(t, changes.Input, 1)
	assert.Equal(t, "detail.visible", changes.Input[0].Path)

	require.Len(t, changes.Output, 1)
	assert.Equal(t, "rates.0", changes.Output[0].Path)
}

func TestDiff_GeneratedPathStillReachesOutput(t *testing.T) {
	// A path that is both generated and output-routed must not be dropped.
	cfg := version.DiffConfig{
		OutputPaths:    []string{"count"},
		GeneratedPaths: []string{"count"},
	}
	changes, err := version.Diff(cfg, nested{Count: 1}, nested{Count: 2})
	require.NoError(t, err)

	assert.Empty(t, changes.Input)
	require.Len(t, changes.Output, 1)
	assert.Equal(t, "count", changes.Output[0].Path)
}

func TestDiff_PrefixMatchDoesNotCatchSiblings(t *testing.T) {
	// "rates" must not match a sibling field that merely shares the prefix.
	cfg := version.DiffConfig{ExcludedPaths: []string{"rate"}}
	changes, err := version.Diff(cfg, nested{Rates: []string{"0.05"}}, nested{Rates: []string{"0.06"}})
	require.NoError(t, err)

	require.Len(t, changes.Input, 1)
	assert.Equal(t, "rates.0", changes.Input[0].Path)
}
