package ellipse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"pupil-biou/internal/linalg"
	"pupil-biou/pkg/geometry"
)

// normalizedSpread is the mean absolute deviation of the points after
// normalization.
const normalizedSpread = 100.0

const minDeviation = 1e-8

// Frame is the normalized coordinate frame a Conic was solved in:
// p' = (p - Centroid) * Scale.
type Frame struct {
	Centroid geometry.Point2D
	Scale    float64
}

// ToImage maps a normalized point back to image coordinates.
func (f Frame) ToImage(p geometry.Point2D) geometry.Point2D {
	return p.Scale(1 / f.Scale).Add(f.Centroid)
}

// Conic holds A·x² + B·xy + C·y² + D·x + E·y + F = 0 in a normalized Frame.
type Conic struct {
	A, B, C, D, E, F float64
}

// Discriminant returns 4AC - B², positive for ellipses.
func (c Conic) Discriminant() float64 {
	return 4*c.A*c.C - c.B*c.B
}

// Fit fits an ellipse to a pixel contour with the Direct Least-Squares method.
func Fit(contour geometry.Contour) (Ellipse, error) {
	if len(contour) < MinPoints {
		return Ellipse{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(contour))
	}
	return FitPoints(contour.Floats())
}

// FitPoints is Fit for sub-pixel points.
func FitPoints(points []geometry.Point2D) (Ellipse, error) {
	if len(points) < MinPoints {
		return Ellipse{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	conic, frame, err := SolveConic(points)
	if err != nil {
		return Ellipse{}, err
	}
	return conic.Ellipse(frame)
}

// normalize translates the points to their centroid and scales them so their
// mean absolute deviation is normalizedSpread.
func normalize(points []geometry.Point2D) (Frame, []geometry.Point2D) {
	centroid := geometry.Centroid(points)
	var dev float64
	for _, p := range points {
		dev += math.Abs(p.X-centroid.X) + math.Abs(p.Y-centroid.Y)
	}
	dev /= float64(len(points))
	if dev < minDeviation {
		dev = minDeviation
	}
	frame := Frame{Centroid: centroid, Scale: normalizedSpread / dev}

	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = p.Sub(centroid).Scale(frame.Scale)
	}
	return frame, out
}

// scatter accumulates S = DᵀD for the design rows [x², xy, y², x, y, 1]
// without materializing D.
func scatter(points []geometry.Point2D) *mat.Dense {
	var s [6][6]float64
	var row [6]float64
	for _, p := range points {
		row = [6]float64{p.X * p.X, p.X * p.Y, p.Y * p.Y, p.X, p.Y, 1}
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				s[i][j] += row[i] * row[j]
			}
		}
	}
	out := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			out.Set(i, j, s[i][j])
			out.Set(j, i, s[i][j])
		}
	}
	return out
}

// constraint3 is the upper-left block of the ellipse constraint 4AC - B² = 1.
func constraint3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, 0, 2,
		0, -1, 0,
		2, 0, 0,
	})
}

// partition splits the 6×6 scatter matrix into its quadratic and linear
// 3×3 blocks.
func partition(s *mat.Dense) (s11, s12, s21, s22 *mat.Dense, err error) {
	spans := [4][4]int{{0, 3, 0, 3}, {0, 3, 3, 6}, {3, 6, 0, 3}, {3, 6, 3, 6}}
	var blocks [4]*mat.Dense
	for i, sp := range spans {
		blocks[i], err = linalg.Block(s, sp[0], sp[1], sp[2], sp[3])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%w: scatter block: %w", ErrDegenerate, err)
		}
	}
	return blocks[0], blocks[1], blocks[2], blocks[3], nil
}

// SolveConic solves the constrained least-squares conic for points and returns
// it together with the frame it is expressed in.
func SolveConic(points []geometry.Point2D) (Conic, Frame, error) {
	if len(points) < MinPoints {
		return Conic{}, Frame{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	frame, norm := normalize(points)
	s := scatter(norm)

	s11, s12, s21, s22, err := partition(s)
	if err != nil {
		return Conic{}, frame, err
	}

	s22inv, err := linalg.Inverse(s22)
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: linear block: %v", ErrDegenerate, err)
	}
	// reduced = S22⁻¹·S21 maps quadratic coefficients to linear ones.
	reduced, err := linalg.Mul(s22inv, s21)
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	coupling, err := linalg.Mul(s12, reduced)
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	t, err := linalg.Sub(s11, coupling)
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	c3inv, err := linalg.Inverse(constraint3())
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: constraint: %v", ErrDegenerate, err)
	}
	m, err := linalg.Mul(c3inv, t)
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	eig, err := linalg.EigenGeneral(m)
	if err != nil {
		return Conic{}, frame, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	q, ok := selectEllipseVector(eig)
	if !ok {
		return Conic{}, frame, fmt.Errorf("%w: no eigenvector satisfies 4AC-B²>0", ErrDegenerate)
	}
	// Eigenvectors are only defined up to sign; keep A+C positive so the
	// shifted constant term has a fixed sign.
	if q[0]+q[2] < 0 {
		q[0], q[1], q[2] = -q[0], -q[1], -q[2]
	}

	var r mat.VecDense
	r.MulVec(reduced, mat.NewVecDense(3, q[:]))
	return Conic{
		A: q[0], B: q[1], C: q[2],
		D: -r.AtVec(0), E: -r.AtVec(1), F: -r.AtVec(2),
	}, frame, nil
}

// selectEllipseVector picks the eigenvector with 4·q0·q2 − q1² > 0 and the
// smallest positive eigenvalue. Without one, the first vector meeting only the
// discriminant condition is used.
func selectEllipseVector(eig linalg.Eigen) ([3]float64, bool) {
	best, fallback := -1, -1
	for i := 0; i < eig.Len(); i++ {
		v := eig.Vectors[i]
		if len(v) != 3 || 4*v[0]*v[2]-v[1]*v[1] <= 0 {
			continue
		}
		if fallback < 0 {
			fallback = i
		}
		if eig.Values[i] > 0 && (best < 0 || eig.Values[i] < eig.Values[best]) {
			best = i
		}
	}
	if best < 0 {
		best = fallback
	}
	if best < 0 {
		return [3]float64{}, false
	}
	v := eig.Vectors[best]
	return [3]float64{v[0], v[1], v[2]}, true
}
