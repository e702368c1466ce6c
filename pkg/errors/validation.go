package errors

import "math"

// ValidateResolution checks a grid side length.
// Resolutions must be positive; the upper bound guards against grids whose
// cell count would overflow the solver and renderer buffers.
func ValidateResolution(r int) error {
	if r <= 0 {
		return New(ErrCodeInvalidConfig, "resolution must be positive, got %d", r)
	}
	if r > MaxResolution {
		return New(ErrCodeInvalidConfig, "resolution %d exceeds maximum of %d", r, MaxResolution)
	}
	return nil
}

// MaxResolution is the largest accepted grid side length.
const MaxResolution = 1024

// ValidateUnitInterval checks that v lies in [0, 1].
// NaN is rejected.
func ValidateUnitInterval(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return New(ErrCodeInvalidConfig, "%s must be in [0, 1], got %v", name, v)
	}
	return nil
}

// ValidatePositive checks that an integer parameter is strictly positive.
func ValidatePositive(name string, v int) error {
	if v <= 0 {
		return New(ErrCodeInvalidConfig, "%s must be positive, got %d", name, v)
	}
	return nil
}

// ValidatePositiveFloat checks that a float parameter is finite and strictly positive.
func ValidatePositiveFloat(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return New(ErrCodeInvalidConfig, "%s must be positive, got %v", name, v)
	}
	return nil
}

// ValidateNonNegative checks that a float parameter is finite and not negative.
func ValidateNonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return New(ErrCodeInvalidConfig, "%s must not be negative, got %v", name, v)
	}
	return nil
}
