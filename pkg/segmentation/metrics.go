package segmentation

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"watershed3d/pkg/grid"
)

// SegmentationMetrics summarises a segmentation.
type SegmentationMetrics struct {
	// Basins is the number of basins found by flooding
	Basins int

	// WatershedVoxels is the number of boundary voxels left by flooding,
	// before cleanup
	WatershedVoxels int

	// ResidualBoundary is the number of boundary voxels left after cleanup
	ResidualBoundary int

	// CleanupPasses is the number of cleanup sweeps made
	CleanupPasses int

	// MeanBasinSize and StdDevBasinSize describe basin sizes in voxels
	MeanBasinSize   float64
	StdDevBasinSize float64

	// LargestBasin is the size of the largest basin in voxels
	LargestBasin int

	// SizeEntropy is the Shannon entropy (nats) of the basin size
	// distribution. It is 0 for a single basin and ln(Basins) when all
	// basins are the same size.
	SizeEntropy float64

	// HeightMin and HeightMax bound the scalar field that was flooded
	HeightMin float64
	HeightMax float64

	// PerBasin holds one entry per basin, ordered by basin id
	PerBasin []BasinStats
}

// BasinStats describes one basin.
type BasinStats struct {
	// Label is the basin id assigned by flooding
	Label int

	// Code is the region code the basin is exported with
	Code int32

	// Voxels is the number of voxels in the basin
	Voxels int

	MinHeight    float64
	MeanHeight   float64
	MaxHeight    float64
	HeightStdDev float64

	// Centroid is the mean physical position of the basin's voxels
	Centroid r3.Vec
}

// calculateMetrics computes the metrics of the current grid.
func (s *Segmenter) calculateMetrics() SegmentationMetrics {
	g := s.grid
	m := SegmentationMetrics{
		Basins:           s.flood.Basins,
		WatershedVoxels:  s.flood.WatershedVoxels,
		ResidualBoundary: g.Count(grid.Watershed),
		CleanupPasses:    s.cleanup.Passes,
	}
	if g.Len() > 0 {
		m.HeightMin, m.HeightMax = floats.Min(g.Heights), floats.Max(g.Heights)
	}
	if m.Basins == 0 {
		return m
	}

	// group voxel heights and positions by basin
	heights := make([][]float64, m.Basins)
	centroids := make([]r3.Vec, m.Basins)
	for i, l := range g.Labels {
		id, ok := l.BasinID()
		if !ok {
			continue
		}
		heights[id-1] = append(heights[id-1], g.Heights[i])
		centroids[id-1] = r3.Add(centroids[id-1], g.Position(i))
	}

	codes := s.Labels()
	codeOf := make([]int32, m.Basins)
	for i, l := range g.Labels {
		if id, ok := l.BasinID(); ok {
			codeOf[id-1] = codes[i]
		}
	}

	sizes := make([]float64, m.Basins)
	m.PerBasin = make([]BasinStats, m.Basins)
	for b, h := range heights {
		stats := BasinStats{Label: b + 1, Code: codeOf[b], Voxels: len(h)}
		sizes[b] = float64(len(h))
		if len(h) > 0 {
			stats.MinHeight = floats.Min(h)
			stats.MaxHeight = floats.Max(h)
			stats.MeanHeight, stats.HeightStdDev = meanStdDev(h)
			stats.Centroid = r3.Scale(1/float64(len(h)), centroids[b])
		}
		m.PerBasin[b] = stats
		if len(h) > m.LargestBasin {
			m.LargestBasin = len(h)
		}
	}

	m.MeanBasinSize, m.StdDevBasinSize = meanStdDev(sizes)
	m.SizeEntropy = sizeEntropy(sizes)
	return m
}

// meanStdDev returns the mean and sample standard deviation of values. The
// deviation of fewer than two values is 0.
func meanStdDev(values []float64) (mean, std float64) {
	if len(values) < 2 {
		return stat.Mean(values, nil), 0
	}
	return stat.MeanStdDev(values, nil)
}

// sizeEntropy returns the entropy of the distribution of voxels over basins.
func sizeEntropy(sizes []float64) float64 {
	total := floats.Sum(sizes)
	if total == 0 {
		return 0
	}
	p := make([]float64, len(sizes))
	floats.ScaleTo(p, 1/total, sizes)
	return stat.Entropy(p)
}
