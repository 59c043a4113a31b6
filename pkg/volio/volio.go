// Package volio loads and saves stacks and volumes. A dataset is a YAML
// sidecar describing the grid geometry next to raw little-endian float64
// voxel files for intensity and, optionally, a mask.
package volio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"volrecon/internal/models"
)

// sidecarSuffix marks the YAML headers volio scans for in a dataset
// directory.
const sidecarSuffix = ".vol.yaml"

type header struct {
	Size      [3]int     `yaml:"size"`
	Spacing   [3]float64 `yaml:"spacing"`
	Origin    [3]float64 `yaml:"origin"`
	Direction []float64  `yaml:"direction,omitempty"`
	Data      string     `yaml:"data"`
	Mask      string     `yaml:"mask,omitempty"`
}

func (h header) grid() (models.Grid, error) {
	g := models.Grid{
		Size:      h.Size,
		Spacing:   h.Spacing,
		Origin:    h.Origin,
		Direction: models.IdentityDirection,
	}
	if len(h.Direction) > 0 {
		if len(h.Direction) != 9 {
			return g, fmt.Errorf("direction has %d entries, want 9", len(h.Direction))
		}
		copy(g.Direction[:], h.Direction)
	}
	return g, g.Validate()
}

// LoadStack reads one stack from its YAML sidecar path. Voxel file paths in
// the header are resolved relative to the sidecar.
func LoadStack(path string) (*models.Stack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading header %s: %w", path, err)
	}
	var h header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("parsing header %s: %w", path, err)
	}
	g, err := h.grid()
	if err != nil {
		return nil, fmt.Errorf("header %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	img := &models.Image{Grid: g}
	if img.Data, err = readVoxels(filepath.Join(dir, h.Data), g.NumVoxels()); err != nil {
		return nil, err
	}

	var mask *models.Image
	if h.Mask != "" {
		mask = &models.Image{Grid: g}
		if mask.Data, err = readVoxels(filepath.Join(dir, h.Mask), g.NumVoxels()); err != nil {
			return nil, err
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), sidecarSuffix)
	return models.NewStack(name, img, mask)
}

// LoadStacks reads every stack in a dataset directory, sorted by sidecar
// name so stack indices are stable across runs.
func LoadStacks(dir string) ([]*models.Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset directory: %w", err)
	}

	var headers []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), sidecarSuffix) {
			headers = append(headers, e.Name())
		}
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("no %s headers found in %s", sidecarSuffix, dir)
	}
	sort.Strings(headers)

	stacks := make([]*models.Stack, 0, len(headers))
	for _, name := range headers {
		st, err := LoadStack(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, st)
	}
	return stacks, nil
}

// SaveVolume writes the volume's intensity and mask plus a sidecar header
// into dir, named after the volume.
func SaveVolume(v *models.Volume, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	g := v.Grid()
	h := header{
		Size:      g.Size,
		Spacing:   g.Spacing,
		Origin:    g.Origin,
		Direction: g.Direction[:],
		Data:      v.Name + ".bin",
		Mask:      v.Name + ".mask.bin",
	}

	if err := writeVoxels(filepath.Join(dir, h.Data), v.Intensity().Data); err != nil {
		return err
	}
	if err := writeVoxels(filepath.Join(dir, h.Mask), v.Mask().Data); err != nil {
		return err
	}

	raw, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, v.Name+sidecarSuffix), raw, 0644)
}

func readVoxels(path string, n int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening voxel file: %w", err)
	}
	defer f.Close()

	data := make([]float64, n)
	if err := binary.Read(f, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("reading %d voxels from %s: %w", n, path, err)
	}
	return data, nil
}

func writeVoxels(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating voxel file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("writing voxels to %s: %w", path, err)
	}
	return nil
}
