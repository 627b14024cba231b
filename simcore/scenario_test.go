package simcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareResultsShrinkingHeroImageImprovesLCP(t *testing.T) {
	ctx := context.Background()
	g, err := BuildGraph(ctx, samplePage(), nil, "https://a.com/")
	require.NoError(t, err)

	baselineResult, err := Simulate(ctx, g, DefaultSettings(), NodeID(2))
	require.NoError(t, err)
	baseline := ToScenarioResult("baseline", baselineResult)

	g.Node(NodeID(2)).Record.TransferSize = 50000
	modifiedResult, err := Simulate(ctx, g, DefaultSettings(), NodeID(2))
	require.NoError(t, err)
	modified := ToScenarioResult("hero-image-compressed", modifiedResult)

	cmp := CompareResults(baseline, modified)
	assert.Equal(t, "baseline", cmp.Baseline)
	assert.Equal(t, "hero-image-compressed", cmp.Modified)
	assert.LessOrEqual(t, cmp.LCPChangeMs, 0.0)
	assert.NotEmpty(t, cmp.Summary)
}

func TestCompareResultsNilScenarioIsReportedNotPaniced(t *testing.T) {
	cmp := CompareResults(ScenarioResult{Name: "baseline"}, ScenarioResult{Name: "modified"})
	assert.Equal(t, "baseline", cmp.Baseline)
	assert.Equal(t, "modified", cmp.Modified)
	assert.Equal(t, ImpactLevel(0), cmp.Impact)
}

func TestDetermineImpactLevelBuckets(t *testing.T) {
	cases := []struct {
		percent float64
		want    ImpactLevel
	}{
		{0.5, ImpactNone},
		{3, ImpactLow},
		{10, ImpactMedium},
		{20, ImpactHigh},
		{50, ImpactCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, determineImpactLevel(tc.percent), "percent=%v", tc.percent)
	}
}
