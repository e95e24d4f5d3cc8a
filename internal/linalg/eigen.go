package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// imagTolerance is the relative imaginary magnitude below which a computed
// eigenvalue is accepted as real.
const imagTolerance = 1e-9

// Eigen holds eigenvalues and their eigenvectors as parallel slices:
// Vectors[i] belongs to Values[i].
type Eigen struct {
	Values  []float64
	Vectors [][]float64
}

// Len returns the number of eigenpairs.
func (e Eigen) Len() int {
	return len(e.Values)
}

// EigenGeneral decomposes a general square matrix and returns its real
// eigenpairs in solver order. Complex-conjugate pairs are dropped; an empty
// result is not an error.
func EigenGeneral(a mat.Matrix) (Eigen, error) {
	r, c, err := check(a)
	if err != nil {
		return Eigen{}, err
	}
	if r != c {
		return Eigen{}, fmt.Errorf("%w: eigen of %dx%d", ErrShape, r, c)
	}
	if hasNonFinite(a) {
		return Eigen{}, fmt.Errorf("%w: non-finite entries", ErrNoEigen)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(a, mat.EigenRight); !ok {
		return Eigen{}, ErrNoEigen
	}
	values := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	var out Eigen
	for j, v := range values {
		if math.Abs(imag(v)) > imagTolerance*math.Max(1, math.Abs(real(v))) {
			continue
		}
		vec := make([]float64, r)
		for i := 0; i < r; i++ {
			vec[i] = real(vecs.At(i, j))
		}
		out.Values = append(out.Values, real(v))
		out.Vectors = append(out.Vectors, vec)
	}
	return out, nil
}

// EigenSymmetric decomposes a symmetric matrix. Eigenvalues are returned in
// ascending order with orthonormal eigenvectors.
func EigenSymmetric(a mat.Symmetric) (Eigen, error) {
	n, _, err := check(a)
	if err != nil {
		return Eigen{}, err
	}
	if hasNonFinite(a) {
		return Eigen{}, fmt.Errorf("%w: non-finite entries", ErrNoEigen)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return Eigen{}, ErrNoEigen
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	out := Eigen{Values: eig.Values(nil), Vectors: make([][]float64, n)}
	for j := 0; j < n; j++ {
		out.Vectors[j] = mat.Col(nil, j, &vecs)
	}
	return out, nil
}

func hasNonFinite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
