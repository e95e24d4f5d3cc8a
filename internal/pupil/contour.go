package pupil

import (
	"fmt"

	"gocv.io/x/gocv"

	"pupil-biou/pkg/geometry"
)

// LargestContour returns the external contour of the largest region in mask.
func LargestContour(mask gocv.Mat) (geometry.Contour, error) {
	if mask.Empty() {
		return nil, fmt.Errorf("%w: empty mask", ErrInvalidInput)
	}
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best geometry.Contour
	bestArea := -1.0
	for i := 0; i < contours.Size(); i++ {
		c := geometry.Contour(contours.At(i).ToPoints())
		if area := c.Area(); area > bestArea {
			best, bestArea = c, area
		}
	}
	if len(best) == 0 {
		return nil, fmt.Errorf("%w: mask has no contour", ErrNotFound)
	}
	return best, nil
}
