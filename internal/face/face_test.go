package face

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestExpandEyeBox(t *testing.T) {
	lm := []image.Point{{X: 100, Y: 100}, {X: 140, Y: 95}, {X: 120, Y: 110}}
	box := ExpandEyeBox(lm, 30, 640, 480)
	// bbox 100..140 x 95..110, grown to 70..170 x 65..140, side 100 around (120,102)
	assert.Equal(t, image.Rect(70, 52, 171, 153), box)
	assert.Equal(t, box.Dx(), box.Dy())
}

func TestExpandEyeBoxClips(t *testing.T) {
	lm := []image.Point{{X: 5, Y: 5}, {X: 20, Y: 12}}
	box := ExpandEyeBox(lm, 30, 60, 40)
	assert.Equal(t, 0, box.Min.X)
	assert.Equal(t, 0, box.Min.Y)
	assert.LessOrEqual(t, box.Max.X, 60)
	assert.LessOrEqual(t, box.Max.Y, 40)

	assert.True(t, ExpandEyeBox(nil, 30, 60, 40).Empty())
	assert.True(t, ExpandEyeBox([]image.Point{{X: 500, Y: 500}}, 2, 60, 40).Empty())
}

func TestCropEye(t *testing.T) {
	img := gocv.NewMatWithSize(200, 300, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(10, 20, 30, 0))

	lm := []image.Point{{X: 100, Y: 100}, {X: 130, Y: 100}, {X: 115, Y: 92}, {X: 115, Y: 108}}
	eye, ok := CropEye(img, lm, 10)
	require.True(t, ok)
	defer eye.Close()

	assert.Equal(t, eye.Box.Dx(), eye.Crop.Cols())
	assert.Equal(t, eye.Box.Dy(), eye.Crop.Rows())
	require.Len(t, eye.Landmarks, 4)
	for i, p := range eye.Landmarks {
		assert.Equal(t, lm[i].Sub(eye.Box.Min), p)
	}
	assert.Equal(t, []uint8{10, 20, 30}, eye.Crop.GetVecbAt(0, 0))
}

func TestCropEyeDropsOutsideLandmarks(t *testing.T) {
	img := gocv.NewMatWithSize(50, 50, gocv.MatTypeCV8UC3)
	defer img.Close()

	// Squaring around the center keeps a point far on the long axis outside
	// the clipped image only if it is out of bounds.
	lm := []image.Point{{X: 10, Y: 10}, {X: 20, Y: 12}, {X: 70, Y: 12}}
	eye, ok := CropEye(img, lm, 0)
	require.True(t, ok)
	defer eye.Close()
	for _, p := range eye.Landmarks {
		assert.True(t, p.In(image.Rect(0, 0, eye.Box.Dx(), eye.Box.Dy())))
	}
	assert.Len(t, eye.Landmarks, 2)
}

func TestEllipseLandmarks(t *testing.T) {
	box := image.Rect(100, 50, 160, 90)
	pts := EllipseLandmarks(box)
	require.Len(t, pts, 6)
	assert.Equal(t, image.Point{X: 100, Y: 70}, pts[0])
	assert.Equal(t, image.Point{X: 159, Y: 70}, pts[3])
	assert.Less(t, pts[1].Y, 70)
	assert.Less(t, pts[2].Y, 70)
	assert.Greater(t, pts[4].Y, 70)
	assert.Greater(t, pts[5].Y, 70)
	for _, p := range pts {
		assert.True(t, p.In(box.Inset(-1)))
	}
}

func TestLoadCascadeMissing(t *testing.T) {
	_, err := loadCascade([]string{"/nonexistent/a.xml", "/nonexistent/b.xml"})
	assert.Error(t, err)
}

func TestHaarDetectBlankImage(t *testing.T) {
	lm, err := NewHaarLandmarker(HaarConfig{})
	if err != nil {
		t.Skipf("no Haar cascades installed: %v", err)
	}
	defer lm.Close()

	img := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(128, 128, 128, 0))

	eyes, found, err := lm.Detect(img)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, eyes.Left)
	assert.Nil(t, eyes.Right)
}

func TestEyesCloseNil(t *testing.T) {
	Eyes{}.Close()
}
