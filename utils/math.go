package utils

import (
	"math"
	"strconv"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Square returns the square of a float64.
func Square(n float64) float64 {
	return n * n
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
