package image

import "github.com/samber/lo"

const (
	DimensionStep = 64

	MinSteps = 1
	MaxSteps = 100

	MinCFGScale = 1.0
	MaxCFGScale = 30.0
)

// SnapDimension rounds v down to a multiple of DimensionStep, never below
// DimensionStep.
func SnapDimension(v int) int {
	v = v / DimensionStep * DimensionStep
	return lo.Ternary(v < DimensionStep, DimensionStep, v)
}

func ClampSteps(v int) int {
	return lo.Clamp(v, MinSteps, MaxSteps)
}

func ClampCFGScale(v float64) float64 {
	return lo.Clamp(v, MinCFGScale, MaxCFGScale)
}
