package models

import "fmt"

// GeometryError reports a malformed affine transform, such as one with
// non-finite entries or a singular linear part. It is fatal: the current
// pipeline run must be aborted.
type GeometryError struct {
	// Op is the operation that rejected the transform (e.g. "SetTransform")
	Op string

	// Reason describes what is wrong with the transform
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error in %s: %s", e.Op, e.Reason)
}

// InvalidGeometryError reports a degenerate grid: non-positive spacing or a
// zero size along any axis. Like GeometryError it aborts the pipeline run.
type InvalidGeometryError struct {
	// Field names the offending grid attribute ("spacing", "size", ...)
	Field string

	// Reason describes the violation
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry (%s): %s", e.Field, e.Reason)
}
