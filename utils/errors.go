package utils

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidParameter is wrapped by every configuration range error. Operations
	// return it before touching the point cloud.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrMissingNormals is returned by passes that read normals when the cloud
	// has none.
	ErrMissingNormals = errors.New("point cloud has no normals")
)

// NewInvalidParameterError is used when a configuration value is out of its allowed range.
func NewInvalidParameterError(name string, value interface{}, want string) error {
	return errors.Wrapf(ErrInvalidParameter, "%s=%v, expected %s", name, value, want)
}

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected, actual interface{}) error {
	return errors.Errorf("expected %T but got %T", expected, actual)
}

// CheckPositiveInt returns an invalid parameter error unless v >= 1.
func CheckPositiveInt(name string, v int) error {
	if v < 1 {
		return NewInvalidParameterError(name, v, ">= 1")
	}
	return nil
}

// CheckRange returns an invalid parameter error unless lo <= v <= hi.
func CheckRange(name string, v, lo, hi float64) error {
	if v != v || v < lo || v > hi {
		return NewInvalidParameterError(name, v, "a value in ["+formatFloat(lo)+", "+formatFloat(hi)+"]")
	}
	return nil
}

// CheckPercentage is CheckRange over [0, 100].
func CheckPercentage(name string, v float64) error {
	return CheckRange(name, v, 0, 100)
}
