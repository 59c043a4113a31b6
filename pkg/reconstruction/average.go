package reconstruction

import (
	"fmt"

	"volrecon/internal/models"
	"volrecon/pkg/resample"
)

// runAveraging aggregates all stacks into the volume with the counted
// average rule: every stack is warped onto the volume grid through its
// rigid transform (linear for intensity, nearest-neighbor for the mask),
// intensities are divided by the number of nonzero contributions per voxel,
// and the output mask is the union of the warped masks. Voxels outside the
// union mask end at intensity zero.
//
// The new buffers are built off to the side and committed with one SetData
// call, so a resampling failure leaves the volume unchanged.
func runAveraging(stacks []*models.Stack, transforms []models.RigidTransform, volume *models.Volume) error {
	grid := volume.Grid()
	n := grid.NumVoxels()

	sum := make([]float64, n)
	maskSum := make([]float64, n)
	contributions := make([]int, n)

	for i, stack := range stacks {
		t := transforms[i].ToAffine()

		warped, err := resample.Resample(stack.Image, grid, t, resample.Linear, 0)
		if err != nil {
			return fmt.Errorf("resampling stack %q: %w", stack.Name, err)
		}
		warpedMask, err := resample.Resample(stack.Mask, grid, t, resample.Nearest, 0)
		if err != nil {
			return fmt.Errorf("resampling mask of stack %q: %w", stack.Name, err)
		}

		for j := 0; j < n; j++ {
			sum[j] += warped.Data[j]
			maskSum[j] += warpedMask.Data[j]
			if warped.Data[j] != 0 {
				contributions[j]++
			}
		}
	}

	intensity := make([]float64, n)
	mask := make([]float64, n)
	for j := 0; j < n; j++ {
		c := contributions[j]
		if c == 0 {
			c = 1
		}
		intensity[j] = sum[j] / float64(c)

		if maskSum[j] > 0 {
			mask[j] = 1
		} else {
			intensity[j] = 0
		}
	}

	return volume.SetData(intensity, mask)
}
