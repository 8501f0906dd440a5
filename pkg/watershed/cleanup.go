package watershed

import (
	"slices"
	"strings"

	"github.com/pkg/errors"

	"watershed3d/pkg/grid"
)

// DefaultMaxCleanupPasses bounds RemoveWatershed when no cap is given.
const DefaultMaxCleanupPasses = 64

// CleanupMode selects what happens to watershed voxels after flooding.
type CleanupMode string

const (
	// CleanupRemove reassigns watershed voxels to their majority neighbor basin.
	CleanupRemove CleanupMode = "remove"
	// CleanupFill merges watershed voxels only where neighbors are unanimous.
	CleanupFill CleanupMode = "fill"
	// CleanupNone keeps the raw watershed lines.
	CleanupNone CleanupMode = "none"
)

// ParseCleanupMode parses remove, fill or none. Empty means remove.
func ParseCleanupMode(s string) (CleanupMode, error) {
	switch m := CleanupMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return CleanupRemove, nil
	case CleanupRemove, CleanupFill, CleanupNone:
		return m, nil
	}
	return "", errors.Errorf("unknown cleanup mode %q (want remove, fill or none)", s)
}

// CleanupReport describes what a cleanup did.
type CleanupReport struct {
	Mode CleanupMode

	// Passes is the number of full-grid sweeps made
	Passes int

	// Resolved is the number of watershed voxels given a basin
	Resolved int

	// Residual is the number of watershed voxels left; they remain boundary
	Residual int
}

// Cleanup runs the cleanup selected by mode.
func Cleanup(g *grid.Grid, conn grid.Connectivity, mode CleanupMode, maxPasses int) CleanupReport {
	switch mode {
	case CleanupFill:
		return FillWatershed(g, conn)
	case CleanupNone:
		return CleanupReport{Mode: CleanupNone, Residual: g.Count(grid.Watershed)}
	default:
		return RemoveWatershed(g, conn, maxPasses)
	}
}

type vote struct {
	label grid.Label
	count int
}

// majority returns the most frequent basin label among the neighbors of i.
// Ties go to the label seen first in offset order.
func majority(g *grid.Grid, i int, conn grid.Connectivity, nbuf []int, votes []vote) (grid.Label, []int, []vote) {
	nbuf = g.Neighbors(i, conn, nbuf[:0])
	votes = votes[:0]
	for _, q := range nbuf {
		l := g.Labels[q]
		if !l.IsBasin() {
			continue
		}
		found := false
		for k := range votes {
			if votes[k].label == l {
				votes[k].count++
				found = true
				break
			}
		}
		if !found {
			votes = append(votes, vote{label: l, count: 1})
		}
	}

	best, bestCount := grid.Watershed, 0
	for _, v := range votes {
		if v.count > bestCount {
			best, bestCount = v.label, v.count
		}
	}
	return best, nbuf, votes
}

// RemoveWatershed relabels every watershed voxel with the most common basin
// among its neighbors. Voxels are updated in place in index order, so a voxel
// resolved early in a pass can vote for later ones. Passes repeat until one
// resolves nothing or maxPasses is reached; maxPasses <= 0 means
// DefaultMaxCleanupPasses.
func RemoveWatershed(g *grid.Grid, conn grid.Connectivity, maxPasses int) CleanupReport {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxCleanupPasses
	}
	report := CleanupReport{Mode: CleanupRemove}
	nbuf := make([]int, 0, len(conn.Offsets()))
	votes := make([]vote, 0, len(conn.Offsets()))

	remaining := g.Count(grid.Watershed)
	for remaining > 0 && report.Passes < maxPasses {
		report.Passes++
		resolved := 0
		for i, l := range g.Labels {
			if l != grid.Watershed {
				continue
			}
			var best grid.Label
			best, nbuf, votes = majority(g, i, conn, nbuf, votes)
			if best.IsBasin() {
				g.Labels[i] = best
				resolved++
			}
		}
		report.Resolved += resolved
		remaining -= resolved
		if resolved == 0 {
			break
		}
	}
	report.Residual = remaining
	return report
}

// FillWatershed merges a watershed voxel into a basin only when every basin
// neighbor carries that same label. Decisions are made against the labels as
// they were before the pass; everything else stays watershed and acts as a
// background class.
func FillWatershed(g *grid.Grid, conn grid.Connectivity) CleanupReport {
	report := CleanupReport{Mode: CleanupFill, Passes: 1}
	before := slices.Clone(g.Labels)
	nbuf := make([]int, 0, len(conn.Offsets()))

	for i, l := range before {
		if l != grid.Watershed {
			continue
		}
		nbuf = g.Neighbors(i, conn, nbuf[:0])
		agreed := grid.Watershed
		unanimous := true
		for _, q := range nbuf {
			ql := before[q]
			if !ql.IsBasin() {
				continue
			}
			if agreed == grid.Watershed {
				agreed = ql
			} else if ql != agreed {
				unanimous = false
				break
			}
		}
		if unanimous && agreed.IsBasin() {
			g.Labels[i] = agreed
			report.Resolved++
		} else {
			report.Residual++
		}
	}
	return report
}

// BoundaryMask marks with 1 every watershed voxel and every basin voxel that
// touches a different basin. All other voxels are 0.
func BoundaryMask(g *grid.Grid, conn grid.Connectivity) []uint8 {
	mask := make([]uint8, g.Len())
	nbuf := make([]int, 0, len(conn.Offsets()))
	for i, l := range g.Labels {
		if !l.IsSettled() {
			continue
		}
		if l == grid.Watershed {
			mask[i] = 1
			continue
		}
		nbuf = g.Neighbors(i, conn, nbuf[:0])
		for _, q := range nbuf {
			if ql := g.Labels[q]; ql.IsBasin() && ql != l {
				mask[i] = 1
				break
			}
		}
	}
	return mask
}
