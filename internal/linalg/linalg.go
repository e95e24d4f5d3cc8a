// Package linalg provides the small dense-matrix kernel used by the ellipse
// fitter: inversion with explicit singularity detection, eigendecomposition and
// basic arithmetic for matrices up to 6×6.
//
// Every function is pure. Failures are reported as errors and never
// approximated; callers decide whether a failure is fatal.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SingularTolerance is the determinant magnitude below which a matrix is
// treated as singular.
const SingularTolerance = 1e-12

// MaxDim is the largest row or column count the kernel accepts.
const MaxDim = 6

var (
	// ErrEmpty is returned for nil or zero-sized matrices.
	ErrEmpty = errors.New("linalg: empty matrix")
	// ErrSingular is returned when a matrix cannot be inverted.
	ErrSingular = errors.New("linalg: singular matrix")
	// ErrShape is returned for dimension mismatches and oversized inputs.
	ErrShape = errors.New("linalg: bad shape")
	// ErrNoEigen is returned when an eigendecomposition does not converge.
	ErrNoEigen = errors.New("linalg: eigendecomposition failed")
)

// check validates that m is non-empty and within MaxDim.
func check(m mat.Matrix) (r, c int, err error) {
	if m == nil {
		return 0, 0, ErrEmpty
	}
	if d, ok := m.(*mat.Dense); ok && d.IsEmpty() {
		return 0, 0, ErrEmpty
	}
	r, c = m.Dims()
	if r == 0 || c == 0 {
		return 0, 0, ErrEmpty
	}
	if r > MaxDim || c > MaxDim {
		return 0, 0, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrShape, r, c, MaxDim, MaxDim)
	}
	return r, c, nil
}

// Det returns the determinant of a square matrix.
func Det(a mat.Matrix) (float64, error) {
	r, c, err := check(a)
	if err != nil {
		return 0, err
	}
	if r != c {
		return 0, fmt.Errorf("%w: determinant of %dx%d", ErrShape, r, c)
	}
	return mat.Det(a), nil
}

// Inverse returns a⁻¹, or ErrSingular when |det(a)| < SingularTolerance.
func Inverse(a mat.Matrix) (*mat.Dense, error) {
	det, err := Det(a)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(det) || math.Abs(det) < SingularTolerance {
		return nil, fmt.Errorf("%w: |det| = %.3g", ErrSingular, math.Abs(det))
	}

	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: %v", ErrSingular, err)
		}
		// Ill-conditioned but invertible: the determinant test is the contract.
	}
	return &inv, nil
}

// Mul returns a·b.
func Mul(a, b mat.Matrix) (*mat.Dense, error) {
	_, ac, err := check(a)
	if err != nil {
		return nil, err
	}
	br, _, err := check(b)
	if err != nil {
		return nil, err
	}
	if ac != br {
		return nil, fmt.Errorf("%w: cannot multiply (·x%d) by (%dx·)", ErrShape, ac, br)
	}
	var out mat.Dense
	out.Mul(a, b)
	return &out, nil
}

// Sub returns a−b.
func Sub(a, b mat.Matrix) (*mat.Dense, error) {
	ar, ac, err := check(a)
	if err != nil {
		return nil, err
	}
	br, bc, err := check(b)
	if err != nil {
		return nil, err
	}
	if ar != br || ac != bc {
		return nil, fmt.Errorf("%w: cannot subtract %dx%d from %dx%d", ErrShape, br, bc, ar, ac)
	}
	var out mat.Dense
	out.Sub(a, b)
	return &out, nil
}

// Transpose returns aᵀ as a new dense matrix.
func Transpose(a mat.Matrix) (*mat.Dense, error) {
	if _, _, err := check(a); err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(a.T()), nil
}

// Block copies rows [r0,r1) and columns [c0,c1) of a.
func Block(a *mat.Dense, r0, r1, c0, c1 int) (*mat.Dense, error) {
	r, c, err := check(a)
	if err != nil {
		return nil, err
	}
	if r0 < 0 || c0 < 0 || r1 > r || c1 > c || r0 >= r1 || c0 >= c1 {
		return nil, fmt.Errorf("%w: block [%d:%d,%d:%d] of %dx%d", ErrShape, r0, r1, c0, c1, r, c)
	}
	return mat.DenseCopyOf(a.Slice(r0, r1, c0, c1)), nil
}
