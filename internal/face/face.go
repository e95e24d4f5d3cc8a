// Package face finds eye regions and eye landmarks in face images.
package face

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrNoFace marks inputs where no face or eye was found. Detect itself
// reports that case as (Eyes{}, false, nil); callers wrap this error when
// they need an error value.
var ErrNoFace = errors.New("face: no face detected")

// DefaultMargin is the padding added around the eye landmarks before cropping.
const DefaultMargin = 30

// Eye is one cropped eye region.
type Eye struct {
	Crop      gocv.Mat        // BGR crop owned by the Eye
	Box       image.Rectangle // crop bounds in the source image
	Landmarks []image.Point   // eye contour points in crop coordinates
}

// Close releases the crop.
func (e *Eye) Close() error {
	if e == nil {
		return nil
	}
	return e.Crop.Close()
}

// Eyes holds the eyes found in one image. Left is the eye with the smaller
// image x coordinate. Either may be nil.
type Eyes struct {
	Left  *Eye
	Right *Eye
}

// Close releases both crops.
func (e Eyes) Close() {
	e.Left.Close()
	e.Right.Close()
}

// Landmarker detects eyes in a BGR image. A missing face is reported as
// found=false with a nil error.
type Landmarker interface {
	Detect(img gocv.Mat) (eyes Eyes, found bool, err error)
}

// ExpandEyeBox returns the square crop around landmarks: their bounding box
// grown by margin, squared on its larger side about its center and clipped
// to a w×h image.
func ExpandEyeBox(landmarks []image.Point, margin, w, h int) image.Rectangle {
	if len(landmarks) == 0 {
		return image.Rectangle{}
	}
	minX, minY := landmarks[0].X, landmarks[0].Y
	maxX, maxY := minX, minY
	for _, p := range landmarks[1:] {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	minX, minY = minX-margin, minY-margin
	maxX, maxY = maxX+margin, maxY+margin

	half := max(maxX-minX, maxY-minY) / 2
	cx, cy := (minX+maxX)/2, (minY+maxY)/2

	// Bounds are inclusive until the final conversion.
	x1, y1 := max(0, cx-half), max(0, cy-half)
	x2, y2 := min(w-1, cx+half), min(h-1, cy+half)
	if x2 < x1 || y2 < y1 {
		return image.Rectangle{}
	}
	return image.Rect(x1, y1, x2+1, y2+1)
}

// CropEye cuts the expanded eye box out of img and moves the landmarks into
// crop coordinates, dropping any that fall outside.
func CropEye(img gocv.Mat, landmarks []image.Point, margin int) (*Eye, bool) {
	box := ExpandEyeBox(landmarks, margin, img.Cols(), img.Rows())
	if box.Empty() {
		return nil, false
	}
	region := img.Region(box)
	defer region.Close()

	eye := &Eye{Crop: region.Clone(), Box: box}
	for _, p := range landmarks {
		q := p.Sub(box.Min)
		if q.X >= 0 && q.Y >= 0 && q.X < box.Dx() && q.Y < box.Dy() {
			eye.Landmarks = append(eye.Landmarks, q)
		}
	}
	return eye, true
}
