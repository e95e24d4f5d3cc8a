package image

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"pupil-biou/pkg/colorutil"
)

// LabelOrigin is where the score label is drawn on exported results.
var LabelOrigin = image.Point{X: 10, Y: 25}

// ScoreLabel formats a score the way exported images show it.
func ScoreLabel(score float64) string {
	return fmt.Sprintf("BIoU = %.4f", score)
}

// SideBySide renders the eye crop next to its mask. Landmark dots and the
// score label are drawn on the eye when landmarks is non-nil, otherwise the
// label goes on the mask half. The mask is resized to the eye with
// nearest-neighbor sampling when sizes differ.
func SideBySide(eye, mask gocv.Mat, score float64, landmarks []image.Point) gocv.Mat {
	left := toBGR(eye)
	defer left.Close()

	m := gocv.NewMat()
	defer m.Close()
	if mask.Rows() != eye.Rows() || mask.Cols() != eye.Cols() {
		gocv.Resize(mask, &m, image.Point{X: eye.Cols(), Y: eye.Rows()}, 0, 0, gocv.InterpolationNearestNeighbor)
	} else {
		mask.CopyTo(&m)
	}
	right := toBGR(m)
	defer right.Close()

	label := ScoreLabel(score)
	if landmarks != nil {
		for _, p := range landmarks {
			gocv.Circle(&left, p, 2, colorutil.Green, -1)
		}
		gocv.PutText(&left, label, LabelOrigin, gocv.FontHersheySimplex, 0.7, colorutil.Green, 2)
	} else {
		gocv.PutText(&right, label, LabelOrigin, gocv.FontHersheySimplex, 0.7, colorutil.Green, 2)
	}

	out := gocv.NewMat()
	gocv.Hconcat(left, right, &out)
	return out
}

// SaveResult writes the side-by-side rendering to path.
func SaveResult(path string, eye, mask gocv.Mat, score float64, landmarks []image.Point) error {
	combined := SideBySide(eye, mask, score, landmarks)
	defer combined.Close()
	return Save(path, combined)
}

// SaveEyeAndMask writes <dir>/<stem>_eye.jpg and <dir>/<stem>_mask.jpg.
func SaveEyeAndMask(dir, stem string, eye, mask gocv.Mat) error {
	if err := Save(filepath.Join(dir, stem+"_eye.jpg"), eye); err != nil {
		return err
	}
	return Save(filepath.Join(dir, stem+"_mask.jpg"), mask)
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func toBGR(m gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch m.Channels() {
	case 1:
		gocv.CvtColor(m, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(m, &out, gocv.ColorBGRAToBGR)
	default:
		m.CopyTo(&out)
	}
	return out
}
