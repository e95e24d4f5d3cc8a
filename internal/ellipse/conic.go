package ellipse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"pupil-biou/internal/linalg"
	"pupil-biou/pkg/geometry"
)

const curvatureTolerance = 1e-18

// Ellipse converts the conic to geometric form and maps it from frame back to
// image coordinates.
func (c Conic) Ellipse(frame Frame) (Ellipse, error) {
	if frame.Scale <= 0 || math.IsNaN(frame.Scale) {
		return Ellipse{}, fmt.Errorf("%w: invalid frame scale %v", ErrDegenerate, frame.Scale)
	}

	// Center: gradient of the conic vanishes.
	// [2A B ][x]   [-D]
	// [B  2C][y] = [-E]
	grad := mat.NewDense(2, 2, []float64{2 * c.A, c.B, c.B, 2 * c.C})
	inv, err := linalg.Inverse(grad)
	if err != nil {
		return Ellipse{}, fmt.Errorf("%w: center system: %v", ErrDegenerate, err)
	}
	var center mat.VecDense
	center.MulVec(inv, mat.NewVecDense(2, []float64{-c.D, -c.E}))
	x0, y0 := center.AtVec(0), center.AtVec(1)

	fShifted := c.A*x0*x0 + c.B*x0*y0 + c.C*y0*y0 + c.D*x0 + c.E*y0 + c.F
	if !(-fShifted > 0) {
		return Ellipse{}, fmt.Errorf("%w: shifted constant %g is not negative", ErrDegenerate, fShifted)
	}

	quad := mat.NewSymDense(2, []float64{c.A, c.B / 2, c.B / 2, c.C})
	eig, err := linalg.EigenSymmetric(quad)
	if err != nil {
		return Ellipse{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	l0, l1 := eig.Values[0], eig.Values[1]
	if math.Abs(l0) < curvatureTolerance || math.Abs(l1) < curvatureTolerance {
		return Ellipse{}, fmt.Errorf("%w: zero curvature", ErrDegenerate)
	}

	// Smaller curvature runs along the major axis.
	major, minor := 0, 1
	if math.Abs(l1) < math.Abs(l0) {
		major, minor = 1, 0
	}
	aSq := -fShifted / eig.Values[major]
	bSq := -fShifted / eig.Values[minor]
	if !(aSq > 0) || !(bSq > 0) {
		return Ellipse{}, fmt.Errorf("%w: conic is not an ellipse", ErrDegenerate)
	}
	dir := eig.Vectors[major]
	angle := math.Atan2(dir[1], dir[0]) * 180 / math.Pi

	e := Canonicalize(
		frame.ToImage(geometry.Point2D{X: x0, Y: y0}),
		2*math.Sqrt(aSq)/frame.Scale,
		2*math.Sqrt(bSq)/frame.Scale,
		angle,
	)
	if !e.Valid() {
		return Ellipse{}, fmt.Errorf("%w: %s", ErrDegenerate, e)
	}
	return e, nil
}
