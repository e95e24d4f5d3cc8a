// Package biou scores agreement between a pupil mask and the ellipse fitted
// to its boundary.
package biou

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"pupil-biou/internal/ellipse"
	"pupil-biou/internal/logging"
	"pupil-biou/pkg/colorutil"
	"pupil-biou/pkg/geometry"
)

var logger = logging.New("BIoU")

// subpixelShift is the number of fractional bits used when drawing ellipses.
const subpixelShift = 4

// Report is the full outcome of one score computation.
type Report struct {
	Score        float64
	Ellipse      ellipse.Ellipse
	Method       ellipse.Method
	Intersection int
	Union        int
	Err          error // set when no ellipse could be fitted
}

// Scorer computes BIoU with a configurable fitting strategy.
type Scorer struct {
	Fitter ellipse.Strategy
}

// NewScorer returns a Scorer using the default two-step ellipse fit.
func NewScorer() Scorer {
	return Scorer{Fitter: ellipse.DefaultStrategy()}
}

// Compute returns |mask ∩ ellipse| / |mask ∪ ellipse| for the ellipse fitted
// to contour. Contours with fewer than five points score 0.
func Compute(mask gocv.Mat, contour geometry.Contour) float64 {
	return NewScorer().Evaluate(mask, contour).Score
}

// Evaluate is Compute with the intermediate geometry and pixel counts.
func (s Scorer) Evaluate(mask gocv.Mat, contour geometry.Contour) Report {
	if len(contour) < ellipse.MinPoints {
		return Report{Err: fmt.Errorf("%w: got %d", ellipse.ErrTooFewPoints, len(contour))}
	}
	if mask.Empty() {
		return Report{Err: fmt.Errorf("empty mask")}
	}

	var rep Report
	fit, err := s.Fitter.Fit(contour)
	if err != nil {
		logger.Printf("Warning: no ellipse could be fitted to %d points: %v", len(contour), err)
		rep.Err = err
	} else {
		rep.Ellipse, rep.Method = fit.Ellipse, fit.Method
	}
	if err == nil && !(rep.Ellipse.AxisMajor > 0 && rep.Ellipse.AxisMinor > 0) {
		logger.Printf("Warning: ellipse fit produced invalid geometry (non-positive axes): %s", rep.Ellipse)
		if rep.Ellipse.HasNaN() {
			logger.Printf("Severe Warning: ellipse axes are NaN (numerical error)")
		}
	}

	region := Rasterize(rep.Ellipse, mask.Rows(), mask.Cols())
	defer region.Close()

	inter := gocv.NewMat()
	defer inter.Close()
	union := gocv.NewMat()
	defer union.Close()
	gocv.BitwiseAnd(mask, region, &inter)
	gocv.BitwiseOr(mask, region, &union)

	rep.Intersection = gocv.CountNonZero(inter)
	rep.Union = gocv.CountNonZero(union)
	rep.Score = Ratio(rep.Intersection, rep.Union)
	return rep
}

// Ratio returns i/u, or 0 when u is 0.
func Ratio(i, u int) float64 {
	if u <= 0 {
		return 0
	}
	return float64(i) / float64(u)
}

// Rasterize draws e as a filled region on a rows×cols CV_8UC1 raster. The
// ellipse is drawn anti-aliased with sub-pixel precision and pixels at least
// half covered are kept. Ellipses without finite positive axes produce an
// empty raster.
func Rasterize(e ellipse.Ellipse, rows, cols int) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	if !e.Valid() {
		return m
	}

	limit := float64(2 * (rows + cols))
	const one = 1 << subpixelShift
	center := image.Point{
		X: fixed(clamp(e.Center.X, -limit, limit), one),
		Y: fixed(clamp(e.Center.Y, -limit, limit), one),
	}
	axes := image.Point{
		X: fixed(math.Min(e.AxisMajor/2, limit), one),
		Y: fixed(math.Min(e.AxisMinor/2, limit), one),
	}
	gocv.EllipseWithParams(&m, center, axes, e.AngleDegrees, 0, 360, colorutil.White, -1, gocv.LineAA, subpixelShift)
	gocv.Threshold(m, &m, 127, 255, gocv.ThresholdBinary)
	return m
}

func fixed(v float64, one int) int {
	return int(math.Round(v * float64(one)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
