// Package segmentation runs the complete watershed pipeline on a scalar
// volume: load, pre-filter, flood, cleanup, metrics and export.
package segmentation

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"watershed3d/internal/models"
	"watershed3d/pkg/filter"
	"watershed3d/pkg/grid"
	"watershed3d/pkg/logging"
	"watershed3d/pkg/visualization"
	"watershed3d/pkg/vtk"
	"watershed3d/pkg/watershed"
)

// Params holds the segmentation parameters.
// These parameters control the input/output and processing configuration.
type Params struct {
	// InputFile is the legacy VTK STRUCTURED_POINTS file holding the scalar field.
	InputFile string

	// OutputFile is where the segmented VTK file is written.
	OutputFile string

	// ScalarName selects the input array to segment. Empty means the first
	// array in the file. The output repeats the array under the same name.
	ScalarName string

	// FilterSteps smooth the scalar field before flooding, in order.
	FilterSteps []filter.Step

	// Connectivity is the neighbor topology used by flooding and cleanup.
	Connectivity grid.Connectivity

	// CleanupMode decides what happens to watershed voxels after flooding.
	CleanupMode watershed.CleanupMode

	// MaxCleanupPasses bounds remove-mode cleanup. 0 means the default cap.
	MaxCleanupPasses int

	// NumWorkers specifies how many goroutines the parallel passes may use.
	NumWorkers int

	// BinaryOutput writes VTK data in binary instead of ASCII.
	BinaryOutput bool

	// BoundaryArray adds an unsigned_char "boundary" mask to the output.
	BoundaryArray bool

	// ShuffleSeed permutes exported region codes; 0 keeps basin ids.
	ShuffleSeed int64

	// SaveIntermediaryResults determines whether to save intermediary processing results.
	// When enabled, each stage's volume is dumped along with a mid-depth slice image.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved.
	// Only used when SaveIntermediaryResults is true.
	IntermediaryDir string

	// SlicesDir receives x, y and z slice images of the result. Empty disables them.
	SlicesDir string

	// PlotPath receives a chart of basin sizes. Empty disables it.
	PlotPath string
}

// Segmenter handles the segmentation of one volume.
//
// The process consists of several steps:
// 1. Loading the scalar grid from VTK
// 2. Smoothing it with the configured filters
// 3. Flooding it level by level into basins and watershed voxels
// 4. Cleaning up the watershed voxels
// 5. Calculating basin metrics
// 6. Exporting the labeled grid and optional visualizations
type Segmenter struct {
	// params stores the segmentation configuration
	params *Params

	logger *zap.SugaredLogger

	// volume is the input as loaded, before filtering
	volume *models.Volume

	// grid holds the filtered heights and the labels once flooded
	grid *grid.Grid

	// flood summarises step 3
	flood *watershed.Result

	// cleanup summarises step 4
	cleanup watershed.CleanupReport

	// metrics stores the basin metrics after segmentation
	metrics SegmentationMetrics
}

// NewSegmenter creates a new segmenter with the provided parameters. A nil
// logger discards all output.
func NewSegmenter(params *Params, logger *zap.SugaredLogger) *Segmenter {
	return &Segmenter{
		params: params,
		logger: logging.OrNop(logger),
	}
}

// Process runs the complete pipeline from InputFile to OutputFile.
func (s *Segmenter) Process(ctx context.Context) error {
	if s.params.InputFile == "" {
		return errors.New("no input file given")
	}

	// Step 1: Load the scalar grid
	s.logger.Info("Step 1: Loading grid...")
	ds, err := vtk.ReadFile(s.params.InputFile)
	if err != nil {
		return errors.Wrap(err, "failed to load grid")
	}
	vol, err := ds.Volume(s.params.ScalarName)
	if err != nil {
		return errors.Wrap(err, "failed to load grid")
	}
	s.logger.Infow("Loaded grid",
		"dimensions", vol.Dimensions,
		"origin", vol.Origin,
		"spacing", vol.Spacing,
		"array", vol.ScalarName,
	)

	if err := s.Segment(ctx, vol); err != nil {
		return err
	}

	// Step 6: Export
	s.logger.Info("Step 6: Exporting results...")
	return s.export()
}

// Segment runs steps 2 to 5 on an in-memory volume. The volume is not
// modified.
func (s *Segmenter) Segment(ctx context.Context, vol *models.Volume) error {
	start := time.Now()
	s.flood = nil
	g, err := grid.New(vol)
	if err != nil {
		return errors.Wrap(err, "invalid grid")
	}
	s.volume = vol
	s.grid = g
	s.saveStage("01_input", g.Heights)

	// Step 2: Pre-filter
	s.logger.Infow("Step 2: Applying pre-filters...", "steps", len(s.params.FilterSteps))
	if len(s.params.FilterSteps) > 0 {
		filtered, err := filter.Apply(g.Heights, g.Dims, s.params.FilterSteps, s.workers())
		if err != nil {
			return errors.Wrap(err, "failed to filter grid")
		}
		g.Heights = filtered
		s.saveStage("02_filtered", g.Heights)
	}

	// Step 3: Flood
	s.logger.Infow("Step 3: Flooding...", "connectivity", s.connectivity().String())
	engine := watershed.NewEngine(g,
		watershed.WithConnectivity(s.connectivity()),
		watershed.WithWorkers(s.workers()),
		watershed.WithLogger(s.logger),
		watershed.WithLevelHook(s.progressHook(g.Len())),
	)
	s.flood, err = engine.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "flood failed")
	}
	s.logger.Infow("Flood complete", "basins", s.flood.Basins, "watershedVoxels", s.flood.WatershedVoxels, "levels", s.flood.Levels)
	s.saveStage("03_flooded", g.ExportLabels())

	// Step 4: Cleanup
	mode := s.params.CleanupMode
	if mode == "" {
		mode = watershed.CleanupRemove
	}
	s.logger.Infow("Step 4: Cleaning up watershed voxels...", "mode", mode)
	s.cleanup = watershed.Cleanup(g, s.connectivity(), mode, s.params.MaxCleanupPasses)
	if s.cleanup.Residual > 0 && mode == watershed.CleanupRemove {
		s.logger.Warnw("Watershed voxels left after cleanup", "residual", s.cleanup.Residual, "passes", s.cleanup.Passes)
	}
	s.saveStage("04_cleaned", g.ExportLabels())

	// Step 5: Metrics
	s.logger.Info("Step 5: Calculating basin metrics...")
	s.metrics = s.calculateMetrics()
	s.logger.Infow("Segmentation finished", "basins", s.metrics.Basins, "elapsed", time.Since(start))
	return nil
}

// progressHook logs flooding progress at debug level, once per tenth of the
// voxels settled.
func (s *Segmenter) progressHook(total int) func(watershed.Level) {
	next := 1
	return func(l watershed.Level) {
		for next <= 10 && l.End*10 >= next*total {
			s.logger.Debugw("flood progress", "percent", next*10, "height", l.Height)
			next++
		}
	}
}

func (s *Segmenter) connectivity() grid.Connectivity {
	if !s.params.Connectivity.Valid() {
		return grid.Face6
	}
	return s.params.Connectivity
}

func (s *Segmenter) workers() int {
	return max(s.params.NumWorkers, 1)
}

// Metrics returns the metrics of the last segmentation.
func (s *Segmenter) Metrics() SegmentationMetrics {
	return s.metrics
}

// Grid returns the segmented grid, or nil before Segment has run.
func (s *Segmenter) Grid() *grid.Grid {
	return s.grid
}

// Labels returns one exported region code per voxel: 0 for boundary voxels,
// otherwise the basin's code after the optional shuffle.
func (s *Segmenter) Labels() []int32 {
	if s.flood == nil {
		return nil
	}
	labels := s.grid.ExportLabels()
	visualization.Remap(labels, visualization.LabelColors(s.flood.Basins, s.params.ShuffleSeed))
	return labels
}

// Heights returns the scalar field the segmentation ran on, after filtering.
func (s *Segmenter) Heights() []float64 {
	if s.grid == nil {
		return nil
	}
	return append([]float64(nil), s.grid.Heights...)
}

// Export builds the output dataset: the region codes, the scalar field and,
// if enabled, the boundary mask.
func (s *Segmenter) Export() (*vtk.Dataset, error) {
	if s.flood == nil {
		return nil, errors.New("nothing segmented yet")
	}
	ds := vtk.FromVolume(s.volume)
	ds.Title = "watershed segmentation"

	name := s.volume.ScalarName
	if name == "" || name == regionArray {
		name = "scalars"
	}
	ds.Arrays = append(ds.Arrays,
		vtk.IntArray(regionArray, s.Labels()),
		vtk.DoubleArray(name, s.grid.Heights),
	)
	if s.params.BoundaryArray {
		ds.Arrays = append(ds.Arrays, vtk.UnsignedCharArray(boundaryArray, watershed.BoundaryMask(s.grid, s.connectivity())))
	}
	return ds, nil
}

const (
	regionArray   = "region"
	boundaryArray = "boundary"
)

func (s *Segmenter) export() error {
	ds, err := s.Export()
	if err != nil {
		return err
	}
	if s.params.OutputFile != "" {
		if err := (vtk.Writer{Binary: s.params.BinaryOutput}).WriteFile(s.params.OutputFile, ds); err != nil {
			return errors.Wrap(err, "failed to write output")
		}
		s.logger.Infow("Wrote segmentation", "path", s.params.OutputFile, "binary", s.params.BinaryOutput)
	}

	if s.params.SlicesDir != "" {
		viewer, err := visualization.NewViewer(s.grid.Dims, s.grid.Heights, s.Labels())
		if err != nil {
			return errors.Wrap(err, "failed to create viewer")
		}
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(s.params.SlicesDir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				s.logger.Warnw("Failed to save slices", "axis", axis, "error", err)
			}
		}
		s.logger.Infow("Saved slices", "dir", s.params.SlicesDir)
	}

	if s.params.PlotPath != "" {
		sizes := make([]int, len(s.metrics.PerBasin))
		for i, b := range s.metrics.PerBasin {
			sizes[i] = b.Voxels
		}
		if err := visualization.PlotBasinSizes(sizes, s.params.PlotPath); err != nil {
			s.logger.Warnw("Failed to plot basin sizes", "error", err)
		} else {
			s.logger.Infow("Saved basin size plot", "path", s.params.PlotPath)
		}
	}
	return nil
}
