// Package ellipse fits rotated ellipses to pixel contours.
//
// The primary method is a constrained Direct Least-Squares conic fit solved in
// a normalized coordinate frame. A Strategy pairs it with the OpenCV fitter as
// an explicit fallback for contours the primary method cannot handle.
package ellipse

import (
	"errors"
	"fmt"
	"math"

	"pupil-biou/pkg/geometry"
)

// MinPoints is the fewest contour points that determine a conic.
const MinPoints = 5

var (
	// ErrTooFewPoints is returned for contours shorter than MinPoints.
	ErrTooFewPoints = errors.New("ellipse: at least 5 points are required")
	// ErrDegenerate is returned when the points do not determine an ellipse.
	ErrDegenerate = errors.New("ellipse: degenerate fit")
)

// Ellipse is a rotated ellipse in image pixel coordinates. Axis values are
// full lengths (diameters). AngleDegrees is the direction of the major axis,
// measured from +x towards +y, in [0,180).
type Ellipse struct {
	Center       geometry.Point2D `json:"center"`
	AxisMajor    float64          `json:"axis_major"`
	AxisMinor    float64          `json:"axis_minor"`
	AngleDegrees float64          `json:"angle"`
}

func (e Ellipse) String() string {
	return fmt.Sprintf("ellipse(c=(%.2f,%.2f) axes=%.2fx%.2f angle=%.1f)",
		e.Center.X, e.Center.Y, e.AxisMajor, e.AxisMinor, e.AngleDegrees)
}

// Valid reports whether both axes are finite and positive.
func (e Ellipse) Valid() bool {
	return finite(e.AxisMajor) && finite(e.AxisMinor) &&
		e.AxisMajor > 0 && e.AxisMinor > 0 &&
		finite(e.Center.X) && finite(e.Center.Y)
}

// HasNaN reports whether any axis is NaN.
func (e Ellipse) HasNaN() bool {
	return math.IsNaN(e.AxisMajor) || math.IsNaN(e.AxisMinor)
}

// Canonicalize builds an Ellipse from an axis measured along angleDeg and the
// perpendicular axis. The longer axis becomes the major axis (rotating the
// angle by 90° when they are swapped) and the angle is wrapped into [0,180).
func Canonicalize(center geometry.Point2D, along, across, angleDeg float64) Ellipse {
	if along < across {
		along, across = across, along
		angleDeg += 90
	}
	return Ellipse{
		Center:       center,
		AxisMajor:    along,
		AxisMinor:    across,
		AngleDegrees: wrapAngle(angleDeg),
	}
}

// AngleDifference returns the smallest difference between two axis directions,
// treating angles that differ by 180° as equal. The result is in [0,90].
func AngleDifference(a, b float64) float64 {
	d := math.Abs(wrapAngle(a) - wrapAngle(b))
	if d > 90 {
		d = 180 - d
	}
	return d
}

func wrapAngle(deg float64) float64 {
	if !finite(deg) {
		return 0
	}
	a := math.Mod(deg, 180)
	if a < 0 {
		a += 180
	}
	if a >= 180 {
		a = 0
	}
	return a
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
