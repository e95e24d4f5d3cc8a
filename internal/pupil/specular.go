package pupil

import (
	"image"

	"gocv.io/x/gocv"

	"pupil-biou/pkg/colorutil"
	"pupil-biou/pkg/geometry"
)

// otsuSplit holds an Otsu threshold and the mean of each class.
type otsuSplit struct {
	threshold int
	darkMean  float64
	lightMean float64
}

// otsu maximizes between-class variance over a 256-bin histogram. It fails
// when fewer than two intensity levels are present.
func otsu(hist *[256]int) (otsuSplit, bool) {
	total, levels := 0, 0
	var sum float64
	for i, n := range hist {
		if n > 0 {
			levels++
		}
		total += n
		sum += float64(i * n)
	}
	if total == 0 || levels < 2 {
		return otsuSplit{}, false
	}

	var (
		sumB, best float64
		wB         int
		split      otsuSplit
	)
	for t := 0; t < 255; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			split = otsuSplit{threshold: t, darkMean: mB, lightMean: mF}
		}
	}
	return split, best > 0
}

// circleWindow is the clipped square around a circle and the circle's center
// in window coordinates.
type circleWindow struct {
	rect   image.Rectangle
	center image.Point
	radius int
}

func windowFor(img gocv.Mat, center image.Point, radius int) (circleWindow, bool) {
	r := geometry.RectInt{
		X: center.X - radius, Y: center.Y - radius,
		Width: 2*radius + 1, Height: 2*radius + 1,
	}.Clip(img.Cols(), img.Rows())
	if r.Empty() {
		return circleWindow{}, false
	}
	return circleWindow{
		rect:   r.Image(),
		center: image.Point{X: center.X - r.X, Y: center.Y - r.Y},
		radius: radius,
	}, true
}

func (w circleWindow) inside(x, y, shrink int) bool {
	dx, dy := x-w.center.X, y-w.center.Y
	rr := w.radius - shrink
	return rr > 0 && dx*dx+dy*dy <= rr*rr
}

// interiorSplit computes an Otsu split over the window pixels inside the
// circle shrunk by margin. Pixels outside the circle do not enter the
// histogram.
func interiorSplit(local gocv.Mat, w circleWindow, margin int) (otsuSplit, bool) {
	var hist [256]int
	for y := 0; y < local.Rows(); y++ {
		for x := 0; x < local.Cols(); x++ {
			if w.inside(x, y, margin) {
				hist[local.GetUCharAt(y, x)]++
			}
		}
	}
	return otsu(&hist)
}

// restoreHighlights finds small bright components inside the circle and marks
// them as pupil. Small reflections interrupt the dark pupil; they do not
// remove it. Returns the number of restored pixels.
func restoreHighlights(base gocv.Mat, mask *gocv.Mat, center image.Point, radius int, params Params) int {
	w, ok := windowFor(base, center, radius)
	if !ok {
		return 0
	}
	local := base.Region(w.rect)
	defer local.Close()

	split, ok := interiorSplit(local, w, 0)
	if !ok || split.lightMean-split.darkMean < params.SpecularMinContrast {
		return 0
	}
	limit := float64(split.threshold) + params.SpecularOffset

	highlights := gocv.NewMatWithSize(local.Rows(), local.Cols(), gocv.MatTypeCV8U)
	defer highlights.Close()
	highlights.SetTo(gocv.NewScalar(0, 0, 0, 0))
	for y := 0; y < local.Rows(); y++ {
		for x := 0; x < local.Cols(); x++ {
			if w.inside(x, y, 0) && float64(local.GetUCharAt(y, x)) > limit {
				highlights.SetUCharAt(y, x, 255)
			}
		}
	}
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{3, 3})
	defer kernel.Close()
	gocv.MorphologyEx(highlights, &highlights, gocv.MorphOpen, kernel)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStats(highlights, &labels, &stats, &centroids)

	restored := 0
	for i := 1; i < n; i++ {
		if int(stats.GetIntAt(i, int(gocv.CC_STAT_AREA))) >= params.SpecularMaxArea {
			continue
		}
		left := int(stats.GetIntAt(i, int(gocv.CC_STAT_LEFT)))
		top := int(stats.GetIntAt(i, int(gocv.CC_STAT_TOP)))
		width := int(stats.GetIntAt(i, int(gocv.CC_STAT_WIDTH)))
		height := int(stats.GetIntAt(i, int(gocv.CC_STAT_HEIGHT)))
		for yy := top; yy < top+height; yy++ {
			for xx := left; xx < left+width; xx++ {
				if int(labels.GetIntAt(yy, xx)) != i {
					continue
				}
				my, mx := w.rect.Min.Y+yy, w.rect.Min.X+xx
				if mask.GetUCharAt(my, mx) == 0 {
					restored++
				}
				mask.SetUCharAt(my, mx, 255)
			}
		}
	}
	return restored
}

// eraseHighlights clears a 2 px disk around each remaining bright pixel in the
// circle interior. Pixels within SpecularRimMargin of the circle edge belong
// to the boundary transition and are ignored. Windows of 10 px or less are
// skipped. Returns the number of erased spots.
func eraseHighlights(base gocv.Mat, mask *gocv.Mat, center image.Point, radius int, params Params) int {
	w, ok := windowFor(base, center, radius)
	if !ok || w.rect.Dx() <= 10 || w.rect.Dy() <= 10 {
		return 0
	}
	local := base.Region(w.rect)
	defer local.Close()

	split, ok := interiorSplit(local, w, params.SpecularRimMargin)
	if !ok || split.lightMean-split.darkMean < params.SpecularMinContrast {
		return 0
	}
	limit := float64(split.threshold) + params.SpecularOffset

	erased := 0
	for y := 0; y < local.Rows(); y++ {
		for x := 0; x < local.Cols(); x++ {
			if !w.inside(x, y, params.SpecularRimMargin) || float64(local.GetUCharAt(y, x)) <= limit {
				continue
			}
			p := image.Point{X: w.rect.Min.X + x, Y: w.rect.Min.Y + y}
			gocv.Circle(mask, p, 2, colorutil.Black, -1)
			erased++
		}
	}
	return erased
}
