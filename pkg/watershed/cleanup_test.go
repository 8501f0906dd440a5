package watershed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watershed3d/pkg/grid"
)

var (
	b1 = grid.Basin(1)
	b2 = grid.Basin(2)
	ws = grid.Watershed
)

func labeled(t *testing.T, dims grid.Dims, labels ...grid.Label) *grid.Grid {
	t.Helper()
	require.Equal(t, dims.Len(), len(labels))
	g, err := grid.FromHeights(dims, make([]float64, dims.Len()))
	require.NoError(t, err)
	copy(g.Labels, labels)
	return g
}

func row(t *testing.T, labels ...grid.Label) *grid.Grid {
	return labeled(t, grid.Dims{X: len(labels), Y: 1, Z: 1}, labels...)
}

func TestRemoveWatershed_TieGoesToFirstNeighbor(t *testing.T) {
	g := row(t, b2, ws, b1)
	report := RemoveWatershed(g, grid.Face6, 0)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, b2, g.Labels[1])
}

func TestRemoveWatershed_Majority(t *testing.T) {
	// center of a 3x3 slab, neighbors in order -x, +x, -y, +y
	dims := grid.Dims{X: 3, Y: 3, Z: 1}
	g := labeled(t, dims,
		ws, b1, ws,
		b2, ws, b1,
		ws, b1, ws,
	)
	RemoveWatershed(g, grid.Face6, 1)
	assert.Equal(t, b1, g.Labels[dims.Index(1, 1, 0)])
}

func TestRemoveWatershed_PassCap(t *testing.T) {
	tests := []struct {
		name      string
		maxPasses int
		passes    int
		resolved  int
		residual  int
	}{
		{name: "one pass", maxPasses: 1, passes: 1, resolved: 1, residual: 3},
		{name: "two passes", maxPasses: 2, passes: 2, resolved: 2, residual: 2},
		{name: "default cap", maxPasses: 0, passes: 4, resolved: 4, residual: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the only basin is at the end, so each pass reaches one voxel further back
			g := row(t, ws, ws, ws, ws, b1)
			report := RemoveWatershed(g, grid.Face6, tt.maxPasses)
			assert.Equal(t, CleanupReport{
				Mode:     CleanupRemove,
				Passes:   tt.passes,
				Resolved: tt.resolved,
				Residual: tt.residual,
			}, report)
			assert.Equal(t, tt.residual, g.Count(ws))
		})
	}
}

func TestRemoveWatershed_NoBasinNeighbors(t *testing.T) {
	g := row(t, ws, ws)
	report := RemoveWatershed(g, grid.Face6, 0)
	assert.Equal(t, 1, report.Passes)
	assert.Equal(t, 0, report.Resolved)
	assert.Equal(t, 2, report.Residual)
}

func TestRemoveWatershed_InPlaceSweep(t *testing.T) {
	// forward sweep: each resolved voxel votes for the next one
	g := row(t, b1, ws, ws, ws)
	report := RemoveWatershed(g, grid.Face6, 0)
	assert.Equal(t, 1, report.Passes)
	assert.Equal(t, []grid.Label{b1, b1, b1, b1}, g.Labels)
}

func TestFillWatershed(t *testing.T) {
	g := row(t, b1, ws, b1, ws, b2)
	report := FillWatershed(g, grid.Face6)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Residual)
	assert.Equal(t, []grid.Label{b1, b1, b1, ws, b2}, g.Labels)
}

func TestFillWatershed_DecidesAgainstSnapshot(t *testing.T) {
	g := row(t, b1, ws, ws)
	report := FillWatershed(g, grid.Face6)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Residual)
	assert.Equal(t, []grid.Label{b1, b1, ws}, g.Labels)
}

func TestCleanup_Modes(t *testing.T) {
	g := row(t, b1, ws, b2)
	report := Cleanup(g, grid.Face6, CleanupNone, 0)
	assert.Equal(t, CleanupReport{Mode: CleanupNone, Residual: 1}, report)
	assert.Equal(t, ws, g.Labels[1])

	report = Cleanup(g, grid.Face6, CleanupFill, 0)
	assert.Equal(t, CleanupFill, report.Mode)
	assert.Equal(t, ws, g.Labels[1])

	report = Cleanup(g, grid.Face6, CleanupRemove, 0)
	assert.Equal(t, CleanupRemove, report.Mode)
	assert.Equal(t, b1, g.Labels[1])
}

func TestParseCleanupMode(t *testing.T) {
	for in, want := range map[string]CleanupMode{
		"":       CleanupRemove,
		"remove": CleanupRemove,
		" Fill ": CleanupFill,
		"NONE":   CleanupNone,
	} {
		got, err := ParseCleanupMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCleanupMode("erode")
	assert.ErrorContains(t, err, "erode")
}

func TestBoundaryMask(t *testing.T) {
	g := row(t, b1, b1, b1, ws, b2, b2, b2)
	assert.Equal(t, []uint8{0, 0, 0, 1, 0, 0, 0}, BoundaryMask(g, grid.Face6))

	RemoveWatershed(g, grid.Face6, 0)
	assert.Equal(t, []uint8{0, 0, 0, 1, 1, 0, 0}, BoundaryMask(g, grid.Face6))
}
