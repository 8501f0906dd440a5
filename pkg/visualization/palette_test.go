package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPalette(t *testing.T) {
	p := Palette(50)
	require.Len(t, p, 51)
	assert.Equal(t, color.RGBA{A: 0xff}, p[0])

	seen := map[color.RGBA]bool{}
	for i, c := range p[1:] {
		assert.Equal(t, uint8(0xff), c.A)
		assert.False(t, seen[c], "color %d repeats", i+1)
		seen[c] = true
	}
	assert.Equal(t, p, Palette(50), "palette must be deterministic")
	assert.Len(t, Palette(-3), 1)
}

func TestLabelColors(t *testing.T) {
	assert.Equal(t, []int32{0, 1, 2, 3}, LabelColors(3, 0))

	table := LabelColors(20, 99)
	require.Len(t, table, 21)
	assert.Equal(t, int32(0), table[0], "boundary code must stay 0")
	assert.ElementsMatch(t, LabelColors(20, 0), table)
	assert.Equal(t, table, LabelColors(20, 99), "same seed, same table")
	assert.NotEqual(t, LabelColors(20, 0), table)
}

func TestRemap(t *testing.T) {
	labels := []int32{0, 1, 2, 3, 9}
	Remap(labels, []int32{0, 3, 1, 2})
	assert.Equal(t, []int32{0, 3, 1, 2, 9}, labels)
}

func TestPlotBasinSizes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	path := filepath.Join(t.TempDir(), "sizes.png")
	require.NoError(t, PlotBasinSizes([]int{12, 40, 3}, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, PlotBasinSizes(nil, path))
}
