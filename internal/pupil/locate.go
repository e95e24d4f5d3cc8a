package pupil

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"pupil-biou/internal/logging"
	"pupil-biou/pkg/colorutil"
	"pupil-biou/pkg/geometry"
)

var logger = logging.New("Pupil")

// minCircumferenceSamples is the fewest points used to measure edge coverage.
const minCircumferenceSamples = 20

// Locate finds the pupil in a single-channel eye image.
//
// The pipeline equalizes and denoises the image, proposes circles with the
// Hough gradient method (retrying once with Params.Relaxed), keeps the best
// scoring proposal and rasterizes it. Specular highlights inside the circle
// are then reconciled and the mask is smoothed.
func Locate(gray gocv.Mat, params Params) (*Result, error) {
	if gray.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	if gray.Channels() != 1 {
		return nil, fmt.Errorf("%w: expected 1 channel, got %d", ErrInvalidInput, gray.Channels())
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	base, enhanced := preprocess(gray)
	defer base.Close()
	defer enhanced.Close()

	edges := edgeMap(enhanced, params)
	defer edges.Close()

	result := &Result{}
	circles := houghCircles(enhanced, params)
	if len(circles) == 0 {
		circles = houghCircles(enhanced, params.Relaxed())
		result.Relaxed = true
	}
	if len(circles) == 0 {
		return nil, fmt.Errorf("%w: no circle candidates", ErrNotFound)
	}

	result.Candidates = scoreCandidates(circles, enhanced, edges)
	best, ok := bestCandidate(result.Candidates)
	if !ok {
		return nil, fmt.Errorf("%w: no scoreable candidate among %d", ErrNotFound, len(circles))
	}
	result.Winner = best
	result.Center = best.Center.Round()
	result.Radius = int(math.Round(best.Radius))

	mask := gocv.NewMatWithSize(gray.Rows(), gray.Cols(), gocv.MatTypeCV8U)
	mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Circle(&mask, result.Center, result.Radius, colorutil.White, -1)

	restored := restoreHighlights(base, &mask, result.Center, result.Radius, params)
	erased := eraseHighlights(base, &mask, result.Center, result.Radius, params)
	if restored > 0 || erased > 0 {
		logger.Printf("specular: restored %d px, erased %d spots", restored, erased)
	}

	openKernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{3, 3})
	defer openKernel.Close()
	closeKernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{5, 5})
	defer closeKernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, openKernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, closeKernel)

	result.Area = gocv.CountNonZero(mask)
	if result.Area < params.MinMaskArea {
		mask.Close()
		return nil, fmt.Errorf("%w: mask area %d below minimum %d", ErrNotFound, result.Area, params.MinMaskArea)
	}
	result.Mask = mask
	return result, nil
}

// preprocess returns the 8-bit median-filtered image used for brightness
// tests and its contrast-equalized counterpart used for detection.
func preprocess(gray gocv.Mat) (base, enhanced gocv.Mat) {
	eight := gocv.NewMat()
	defer eight.Close()
	if gray.Type() == gocv.MatTypeCV8U {
		gray.CopyTo(&eight)
	} else {
		gocv.Normalize(gray, &eight, 0, 255, gocv.NormMinMax)
		eight.ConvertTo(&eight, gocv.MatTypeCV8U)
	}

	base = gocv.NewMat()
	gocv.MedianBlur(eight, &base, 5)

	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe := gocv.NewCLAHEWithParams(3.0, image.Point{8, 8})
	defer clahe.Close()
	clahe.Apply(eight, &equalized)

	enhanced = gocv.NewMat()
	gocv.MedianBlur(equalized, &enhanced, 5)
	return base, enhanced
}

// edgeMap runs Canny and a close-then-open pass to drop thin streaks.
func edgeMap(img gocv.Mat, params Params) gocv.Mat {
	edges := gocv.NewMat()
	gocv.Canny(img, &edges, float32(params.CannyLow), float32(params.CannyHigh))

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{3, 3})
	defer kernel.Close()
	gocv.MorphologyEx(edges, &edges, gocv.MorphClose, kernel)
	gocv.MorphologyEx(edges, &edges, gocv.MorphOpen, kernel)
	return edges
}

type circle struct {
	center geometry.Point2D
	radius float64
}

func houghCircles(img gocv.Mat, params Params) []circle {
	circles := gocv.NewMat()
	defer circles.Close()

	gocv.HoughCirclesWithParams(img, &circles, gocv.HoughGradient,
		params.DP, float64(params.MinDist),
		params.Param1, params.Param2,
		params.MinRadius, params.MaxRadius)

	if circles.Empty() || circles.Cols() == 0 {
		return nil
	}
	out := make([]circle, circles.Cols())
	for i := range out {
		out[i] = circle{
			center: geometry.Point2D{
				X: float64(circles.GetFloatAt(0, i*3)),
				Y: float64(circles.GetFloatAt(0, i*3+1)),
			},
			radius: float64(circles.GetFloatAt(0, i*3+2)),
		}
	}
	return out
}

// scoreCandidates rates each circle by interior darkness, edge coverage along
// its circumference and distance from the image center.
func scoreCandidates(circles []circle, img, edges gocv.Mat) []Candidate {
	rows, cols := img.Rows(), img.Cols()
	imgCenter := geometry.Point2D{X: float64(cols) / 2, Y: float64(rows) / 2}
	quarter := float64(min(cols, rows)) / 4

	out := make([]Candidate, len(circles))
	for i, c := range circles {
		cand := Candidate{Center: c.center, Radius: c.radius}
		center := c.center.Round()
		r := int(math.Round(c.radius))
		if r <= 2 {
			cand.Skipped = true
			out[i] = cand
			continue
		}
		mean, ok := meanInsideCircle(img, center, r)
		if !ok {
			cand.Skipped = true
			out[i] = cand
			continue
		}
		cand.MeanIntensity = mean
		cand.EdgeCoverage = edgeCoverage(edges, center, r)
		cand.DistPenalty = math.Max(0, geometry.FromImagePoint(center).Distance(imgCenter)-quarter)
		cand.Score = 0.6*(255-cand.MeanIntensity) + 0.4*255*cand.EdgeCoverage - 0.05*cand.DistPenalty
		out[i] = cand
	}
	return out
}

// bestCandidate returns the highest scoring candidate; it fails when none has
// a non-negative score.
func bestCandidate(cands []Candidate) (Candidate, bool) {
	best := -1
	for i, c := range cands {
		if c.Skipped {
			continue
		}
		if best < 0 || c.Score > cands[best].Score {
			best = i
		}
	}
	if best < 0 || cands[best].Score < 0 {
		return Candidate{}, false
	}
	return cands[best], true
}

func meanInsideCircle(img gocv.Mat, center image.Point, r int) (float64, bool) {
	rows, cols := img.Rows(), img.Cols()
	var sum float64
	var count int
	for dy := -r; dy <= r; dy++ {
		py := center.Y + dy
		if py < 0 || py >= rows {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			px := center.X + dx
			if px < 0 || px >= cols || dx*dx+dy*dy > r*r {
				continue
			}
			sum += float64(img.GetUCharAt(py, px))
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func edgeCoverage(edges gocv.Mat, center image.Point, r int) float64 {
	n := max(minCircumferenceSamples, r)
	rows, cols := edges.Rows(), edges.Cols()
	hits := 0
	for k := 0; k < n; k++ {
		a := 2 * math.Pi * float64(k) / float64(n)
		sx := int(math.Round(float64(center.X) + float64(r)*math.Cos(a)))
		sy := int(math.Round(float64(center.Y) + float64(r)*math.Sin(a)))
		if sx >= 0 && sx < cols && sy >= 0 && sy < rows && edges.GetUCharAt(sy, sx) > 0 {
			hits++
		}
	}
	return float64(hits) / float64(n)
}
