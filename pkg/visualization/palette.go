package visualization

import (
	"image/color"
	"math"
	"math/rand"

	"github.com/lucasb-eyer/go-colorful"
)

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.50776405003785

// Palette returns n+1 colors indexed by region code. Code 0 (boundary) is
// black and every basin gets its own hue; consecutive codes never share a
// similar color.
func Palette(n int) []color.RGBA {
	if n < 0 {
		n = 0
	}
	p := make([]color.RGBA, n+1)
	p[0] = color.RGBA{A: 0xff}
	for i := 1; i <= n; i++ {
		h := math.Mod(float64(i-1)*goldenAngle, 360)
		// alternate value bands so hues that wrap close together still differ
		v := 0.95 - 0.25*float64((i-1)%3)/2
		r, g, b := colorful.Hsv(h, 0.7, v).Clamped().RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return p
}

// LabelColors returns a table mapping basin id to exported region code for
// basins 1..n. Entry 0 stays 0 so the boundary keeps its code. A seed of 0
// gives the identity; any other seed shuffles basin codes, which makes
// neighboring basins easier to tell apart in a viewer.
func LabelColors(n int, seed int64) []int32 {
	if n < 0 {
		n = 0
	}
	table := make([]int32, n+1)
	for i := range table {
		table[i] = int32(i)
	}
	if seed == 0 || n < 2 {
		return table
	}
	rng := rand.New(rand.NewSource(seed))
	basins := table[1:]
	rng.Shuffle(len(basins), func(i, j int) {
		basins[i], basins[j] = basins[j], basins[i]
	})
	return table
}

// Remap replaces every region code in labels with table[code], in place.
// Codes outside the table are left alone.
func Remap(labels []int32, table []int32) {
	for i, l := range labels {
		if l >= 0 && int(l) < len(table) {
			labels[i] = table[l]
		}
	}
}
