package pupil

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"pupil-biou/pkg/colorutil"
	"pupil-biou/pkg/geometry"
)

func uniformMat(rows, cols int, v uint8) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	m.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
	return m
}

func pointF(x, y float64) geometry.Point2D {
	return geometry.Point2D{X: x, Y: y}
}

func syntheticEye(size int, center image.Point, radius int) gocv.Mat {
	m := uniformMat(size, size, 200)
	gocv.Circle(&m, center, radius, colorutil.Gray(40), -1)
	return m
}

func TestLocateSyntheticDisk(t *testing.T) {
	center := image.Point{X: 100, Y: 100}
	const radius = 40
	img := syntheticEye(200, center, radius)
	defer img.Close()

	res, err := Locate(img, DefaultParams())
	require.NoError(t, err)
	defer res.Close()

	assert.InDelta(t, center.X, res.Center.X, 2)
	assert.InDelta(t, center.Y, res.Center.Y, 2)
	assert.InDelta(t, radius, res.Radius, 3)

	assert.Equal(t, img.Rows(), res.Mask.Rows())
	assert.Equal(t, img.Cols(), res.Mask.Cols())
	trueArea := math.Pi * radius * radius
	assert.InEpsilon(t, trueArea, float64(gocv.CountNonZero(res.Mask)), 0.10)
	assert.Equal(t, gocv.CountNonZero(res.Mask), res.Area)
	assert.NotEmpty(t, res.Candidates)
	assert.False(t, res.Relaxed)
}

func TestLocateOffCenterDisk(t *testing.T) {
	center := image.Point{X: 90, Y: 110}
	img := syntheticEye(220, center, 35)
	defer img.Close()

	res, err := Locate(img, DefaultParams())
	require.NoError(t, err)
	defer res.Close()
	assert.InDelta(t, center.X, res.Center.X, 2)
	assert.InDelta(t, center.Y, res.Center.Y, 2)
	assert.InDelta(t, 35, res.Radius, 3)
}

func TestLocateWithHighlight(t *testing.T) {
	center := image.Point{X: 100, Y: 100}
	img := syntheticEye(200, center, 40)
	defer img.Close()
	gocv.Rectangle(&img, image.Rect(108, 88, 114, 94), colorutil.Gray(255), -1)

	res, err := Locate(img, DefaultParams())
	require.NoError(t, err)
	defer res.Close()
	assert.InDelta(t, center.X, res.Center.X, 3)
	assert.InDelta(t, center.Y, res.Center.Y, 3)
}

func TestLocateRetriesRelaxed(t *testing.T) {
	center := image.Point{X: 100, Y: 100}
	img := syntheticEye(200, center, 40)
	defer img.Close()

	// The first pass cannot reach radius 40; the relaxed range (5..50) can.
	res, err := Locate(img, DefaultParams().WithRadiusRange(10, 25))
	require.NoError(t, err)
	defer res.Close()
	assert.True(t, res.Relaxed)
	assert.InDelta(t, center.X, res.Center.X, 3)
	assert.InDelta(t, center.Y, res.Center.Y, 3)
	assert.InDelta(t, 40, res.Radius, 4)
}

func TestLocateMaskBelowMinimumArea(t *testing.T) {
	img := syntheticEye(200, image.Point{X: 100, Y: 100}, 40)
	defer img.Close()

	params := DefaultParams()
	params.MinMaskArea = 200*200 + 1
	res, err := Locate(img, params)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "mask area")
	assert.Nil(t, res)
}

// specularFixture is a dark disk of radius 30 centered in a 100×100 image and
// the full-circle mask drawn for it.
func specularFixture() (base, mask gocv.Mat, center image.Point) {
	center = image.Point{X: 50, Y: 50}
	base = uniformMat(100, 100, 30)
	mask = uniformMat(100, 100, 0)
	gocv.Circle(&mask, center, 30, colorutil.White, -1)
	return base, mask, center
}

func TestRestoreHighlights(t *testing.T) {
	base, mask, center := specularFixture()
	defer base.Close()
	defer mask.Close()

	small := image.Rect(35, 50, 40, 55) // 25 px
	large := image.Rect(50, 35, 70, 55) // 400 px
	for _, r := range []image.Rectangle{small, large} {
		gocv.Rectangle(&base, r, colorutil.Gray(230), -1)
		gocv.Rectangle(&mask, r, colorutil.Black, -1)
	}

	restored := restoreHighlights(base, &mask, center, 30, DefaultParams())
	assert.Positive(t, restored)
	assert.LessOrEqual(t, restored, small.Dx()*small.Dy())
	assert.Equal(t, uint8(255), mask.GetUCharAt(52, 37), "small highlight restored")
	assert.Equal(t, uint8(0), mask.GetUCharAt(45, 60), "large bright region left out")
}

func TestEraseHighlights(t *testing.T) {
	base, mask, center := specularFixture()
	defer base.Close()
	defer mask.Close()

	base.SetUCharAt(50, 50, 230) // interior
	base.SetUCharAt(50, 79, 230) // within the rim margin

	erased := eraseHighlights(base, &mask, center, 30, DefaultParams())
	assert.Equal(t, 1, erased)
	assert.Equal(t, uint8(0), mask.GetUCharAt(50, 50))
	assert.Equal(t, uint8(0), mask.GetUCharAt(50, 51))
	assert.Equal(t, uint8(0), mask.GetUCharAt(49, 50))
	assert.Equal(t, uint8(255), mask.GetUCharAt(50, 55))
	assert.Equal(t, uint8(255), mask.GetUCharAt(50, 79), "rim pixel ignored")

	params := DefaultParams()
	params.SpecularRimMargin = 0
	assert.Equal(t, 2, eraseHighlights(base, &mask, center, 30, params))
	assert.Equal(t, uint8(0), mask.GetUCharAt(50, 79))
}

func TestEraseHighlightsSmallWindow(t *testing.T) {
	base, mask, center := specularFixture()
	defer base.Close()
	defer mask.Close()
	base.SetUCharAt(50, 50, 230)

	assert.Zero(t, eraseHighlights(base, &mask, center, 4, DefaultParams()))
	assert.Equal(t, uint8(255), mask.GetUCharAt(50, 50))
}

func TestSpecularLowContrastIsNoop(t *testing.T) {
	base, mask, center := specularFixture()
	defer base.Close()
	defer mask.Close()

	spot := image.Rect(45, 45, 50, 50)
	gocv.Rectangle(&base, spot, colorutil.Gray(55), -1)
	gocv.Rectangle(&mask, spot, colorutil.Black, -1)
	before := gocv.CountNonZero(mask)

	params := DefaultParams()
	require.Less(t, 55.0-30.0, params.SpecularMinContrast)
	assert.Zero(t, restoreHighlights(base, &mask, center, 30, params))
	assert.Zero(t, eraseHighlights(base, &mask, center, 30, params))
	assert.Equal(t, before, gocv.CountNonZero(mask))

	params.SpecularMinContrast = 20
	assert.Equal(t, spot.Dx()*spot.Dy(), eraseHighlights(base, &mask, center, 30, params))
}

func TestLocateBlankImage(t *testing.T) {
	img := uniformMat(160, 160, 128)
	defer img.Close()

	res, err := Locate(img, DefaultParams())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, res)
}

func TestLocateInvalidInput(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := Locate(empty, DefaultParams())
	assert.ErrorIs(t, err, ErrInvalidInput)

	color3 := gocv.NewMatWithSize(50, 50, gocv.MatTypeCV8UC3)
	defer color3.Close()
	_, err = Locate(color3, DefaultParams())
	assert.ErrorIs(t, err, ErrInvalidInput)

	img := uniformMat(50, 50, 100)
	defer img.Close()
	_, err = Locate(img, DefaultParams().WithRadiusRange(50, 10))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLargestContour(t *testing.T) {
	mask := uniformMat(120, 120, 0)
	defer mask.Close()
	gocv.Circle(&mask, image.Point{X: 30, Y: 30}, 8, colorutil.Gray(255), -1)
	gocv.Circle(&mask, image.Point{X: 80, Y: 80}, 20, colorutil.Gray(255), -1)

	c, err := LargestContour(mask)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(c), 5)
	assert.True(t, c.Within(120, 120))
	for _, p := range c {
		assert.InDelta(t, 20, math.Hypot(float64(p.X-80), float64(p.Y-80)), 1.5)
	}

	blank := uniformMat(20, 20, 0)
	defer blank.Close()
	_, err = LargestContour(blank)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOtsu(t *testing.T) {
	var hist [256]int
	hist[20] = 100
	hist[220] = 10
	split, ok := otsu(&hist)
	require.True(t, ok)
	assert.GreaterOrEqual(t, split.threshold, 20)
	assert.Less(t, split.threshold, 220)
	assert.InDelta(t, 20, split.darkMean, 1e-9)
	assert.InDelta(t, 220, split.lightMean, 1e-9)

	var flat [256]int
	flat[90] = 500
	_, ok = otsu(&flat)
	assert.False(t, ok)

	var empty [256]int
	_, ok = otsu(&empty)
	assert.False(t, ok)
}

func TestBestCandidate(t *testing.T) {
	cands := []Candidate{
		{Score: 10},
		{Score: 90, Skipped: true},
		{Score: 40},
	}
	best, ok := bestCandidate(cands)
	require.True(t, ok)
	assert.Equal(t, 40.0, best.Score)

	_, ok = bestCandidate([]Candidate{{Score: -0.5}, {Score: -3}})
	assert.False(t, ok)

	_, ok = bestCandidate(nil)
	assert.False(t, ok)
}

func TestScoreCandidatesPrefersDarkCentral(t *testing.T) {
	img := syntheticEye(200, image.Point{X: 100, Y: 100}, 30)
	defer img.Close()
	edges := uniformMat(200, 200, 0)
	defer edges.Close()

	cands := scoreCandidates([]circle{
		{center: pointF(100, 100), radius: 30},
		{center: pointF(170, 170), radius: 20},
		{center: pointF(100, 100), radius: 2},
	}, img, edges)

	require.Len(t, cands, 3)
	assert.InDelta(t, 40, cands[0].MeanIntensity, 8)
	assert.Zero(t, cands[0].DistPenalty)
	assert.Greater(t, cands[1].DistPenalty, 0.0)
	assert.Greater(t, cands[0].Score, cands[1].Score)
	assert.True(t, cands[2].Skipped)
}

func TestParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	r := p.Relaxed()
	assert.Equal(t, 1.0, r.DP)
	assert.Equal(t, 15, r.MinDist)
	assert.Equal(t, 40.0, r.Param1)
	assert.Equal(t, 15.0, r.Param2)
	assert.Equal(t, 5, r.MinRadius)
	assert.Equal(t, 240, r.MaxRadius)
	assert.Equal(t, 30, p.MinDist, "Relaxed must not modify the receiver")

	assert.Error(t, p.WithCanny(90, 30).Validate())
	assert.Error(t, p.WithHough(0, 30, 80, 30).Validate())
	assert.Error(t, p.WithHough(1.2, 0, 80, 30).Validate())
}
