package reconstruction

import (
	"fmt"

	"volrecon/internal/models"
)

// propagateSliceTransforms composes each stack's rigid alignment onto every
// slice the stack owns, keeping per-slice geometry synchronized with the
// stack-level alignment: new = T_i ∘ old. The transform's meaning as
// "slice-local frame -> physical frame" is preserved.
//
// Repeated application with a non-identity transform compounds, so callers
// invoke this exactly once per alignment round.
func propagateSliceTransforms(stacks []*models.Stack, transforms []models.RigidTransform) error {
	for i, stack := range stacks {
		t := transforms[i].ToAffine()
		for _, sl := range stack.Slices() {
			if err := sl.SetTransform(t.Compose(sl.Transform())); err != nil {
				return fmt.Errorf("updating slice %d of stack %q: %w", sl.Index, stack.Name, err)
			}
		}
	}
	return nil
}
