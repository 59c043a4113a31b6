// Package visualization exports volume cross-sections as grayscale images
// for visual inspection of reconstruction results.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"volrecon/internal/models"
)

// Viewer renders cross-sections of a reconstructed volume. Intensities are
// normalized over the full volume range once, so slices from one viewer are
// directly comparable.
type Viewer struct {
	volume *models.Volume

	lo, scale float64
}

// NewViewer creates a viewer over the volume.
func NewViewer(v *models.Volume) *Viewer {
	lo, hi := 0.0, 0.0
	for i, val := range v.Intensity().Data {
		if i == 0 || val < lo {
			lo = val
		}
		if i == 0 || val > hi {
			hi = val
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	return &Viewer{volume: v, lo: lo, scale: scale}
}

func (v *Viewer) gray(val float64) color.Gray16 {
	g := (val - v.lo) * v.scale
	if g < 0 {
		g = 0
	} else if g > 65535 {
		g = 65535
	}
	return color.Gray16{Y: uint16(g)}
}

// ExtractSlice renders the cross-section at the given voxel position along
// the axis ("x", "y" or "z").
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	size := v.volume.Grid().Size
	in := v.volume.Intensity()

	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative, got %d", position)
	}

	switch axis {
	case "x", "X":
		if position >= size[0] {
			return nil, fmt.Errorf("position %d exceeds size %d along x", position, size[0])
		}
		img := image.NewGray16(image.Rect(0, 0, size[2], size[1]))
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				img.SetGray16(z, y, v.gray(in.At(position, y, z)))
			}
		}
		return img, nil

	case "y", "Y":
		if position >= size[1] {
			return nil, fmt.Errorf("position %d exceeds size %d along y", position, size[1])
		}
		img := image.NewGray16(image.Rect(0, 0, size[0], size[2]))
		for z := 0; z < size[2]; z++ {
			for x := 0; x < size[0]; x++ {
				img.SetGray16(x, z, v.gray(in.At(x, position, z)))
			}
		}
		return img, nil

	case "z", "Z":
		if position >= size[2] {
			return nil, fmt.Errorf("position %d exceeds size %d along z", position, size[2])
		}
		img := image.NewGray16(image.Rect(0, 0, size[0], size[1]))
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				img.SetGray16(x, y, v.gray(in.At(x, y, position)))
			}
		}
		return img, nil
	}

	return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// SaveSlice writes one rendered slice as a JPEG file.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence renders and saves every cross-section along the axis
// into outputDir, one JPEG per position.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	size := v.volume.Grid().Size
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = size[0]
	case "y", "Y":
		maxPos = size[1]
	case "z", "Z":
		maxPos = size[2]
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
