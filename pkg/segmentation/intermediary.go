package segmentation

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"watershed3d/pkg/visualization"
)

// saveStage dumps a stage of the pipeline when intermediary saving is on.
// Failures are logged and do not stop the pipeline.
func (s *Segmenter) saveStage(stage string, data interface{}) {
	if !s.params.SaveIntermediaryResults {
		return
	}
	if err := s.saveIntermediaryResult(stage, data); err != nil {
		s.logger.Warnw("Failed to save intermediary result", "stage", stage, "error", err)
	}
}

// saveIntermediaryResult saves an intermediary result during the segmentation process.
// This helps visualize the steps of the algorithm and debug the segmentation.
//
// Volumes are written as raw little-endian files (float64 heights as
// volume.bin, int32 labels as labels.bin) next to an image of the middle z
// slice.
func (s *Segmenter) saveIntermediaryResult(stage string, data interface{}) error {
	stageDir := filepath.Join(s.params.IntermediaryDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create intermediary directory")
	}

	dims := s.grid.Dims
	midZ := dims.Z / 2

	switch v := data.(type) {
	case []float64:
		if err := writeRaw(filepath.Join(stageDir, "volume.bin"), v); err != nil {
			return err
		}
		viewer, err := visualization.NewViewer(dims, v, nil)
		if err != nil {
			return err
		}
		img, err := viewer.ExtractSlice("z", midZ)
		if err != nil {
			return err
		}
		return saveImage(filepath.Join(stageDir, fmt.Sprintf("slice_z_%03d.jpg", midZ)), img)

	case []int32:
		if err := writeRaw(filepath.Join(stageDir, "labels.bin"), v); err != nil {
			return err
		}
		viewer, err := visualization.NewViewer(dims, s.grid.Heights, v)
		if err != nil {
			return err
		}
		img, err := viewer.ExtractLabelSlice("z", midZ)
		if err != nil {
			return err
		}
		return saveImage(filepath.Join(stageDir, fmt.Sprintf("labels_z_%03d.png", midZ)), img)

	case image.Image:
		return saveImage(filepath.Join(stageDir, "000.jpg"), v)

	default:
		// For other types, save as text representation
		filename := filepath.Join(stageDir, "000.txt")
		return errors.Wrap(os.WriteFile(filename, []byte(fmt.Sprintf("%v", v)), 0644), "failed to write text file")
	}
}

func writeRaw(filename string, data interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create binary file")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		return errors.Wrap(err, "failed to write binary data")
	}
	return errors.Wrap(w.Flush(), "failed to write binary data")
}

func saveImage(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create image file")
	}
	defer file.Close()

	if filepath.Ext(filename) == ".png" {
		err = png.Encode(file, img)
	} else {
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	return errors.Wrap(err, "failed to encode image")
}
