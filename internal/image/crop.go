package image

import (
	"gocv.io/x/gocv"

	"pupil-biou/pkg/colorutil"
)

// SquareEyeCrop pads an eye crop with black into a centered square of side
// max(width, height). The result is a new Mat owned by the caller.
func SquareEyeCrop(eye gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if eye.Empty() {
		return out
	}
	h, w := eye.Rows(), eye.Cols()
	side := max(w, h)
	top := (side - h) / 2
	bottom := side - h - top
	left := (side - w) / 2
	right := side - w - left
	gocv.CopyMakeBorder(eye, &out, top, bottom, left, right, gocv.BorderConstant, colorutil.Black)
	return out
}
