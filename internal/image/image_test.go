package image

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"pupil-biou/pkg/colorutil"
)

func bgr(rows, cols int, c color.RGBA) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0))
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := bgr(20, 30, colorutil.Red)
	defer src.Close()

	data, err := Encode(".png", src)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, 20, out.Rows())
	assert.Equal(t, 30, out.Cols())
	assert.Equal(t, 3, out.Channels())
	// BGR: red lives in the last channel.
	assert.Equal(t, uint8(255), out.GetVecbAt(5, 5)[2])

	gray, err := DecodeGray(data)
	require.NoError(t, err)
	defer gray.Close()
	assert.Equal(t, 1, gray.Channels())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	m, err := Decode([]byte("not an image"))
	defer m.Close()
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestFromGo(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 3))
	g.SetGray(2, 1, color.Gray{Y: 77})
	m, err := FromGo(g)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 1, m.Channels())
	assert.Equal(t, uint8(77), m.GetUCharAt(1, 2))

	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.Set(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	c, err := FromGo(rgba)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, []uint8{30, 20, 10}, c.GetVecbAt(0, 1))
}

func TestDecodeGoFallback(t *testing.T) {
	// A PNG produced by the Go encoder decodes through either path.
	g := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, g))
	m, err := Decode(buf.Bytes())
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 8, m.Rows())
}

func TestSquareEyeCrop(t *testing.T) {
	eye := bgr(10, 30, colorutil.White)
	defer eye.Close()

	sq := SquareEyeCrop(eye)
	defer sq.Close()
	require.Equal(t, 30, sq.Rows())
	require.Equal(t, 30, sq.Cols())
	// top padding = 10 rows of black, then the crop
	assert.Equal(t, []uint8{0, 0, 0}, sq.GetVecbAt(0, 15))
	assert.Equal(t, []uint8{255, 255, 255}, sq.GetVecbAt(10, 15))
	assert.Equal(t, []uint8{255, 255, 255}, sq.GetVecbAt(19, 15))
	assert.Equal(t, []uint8{0, 0, 0}, sq.GetVecbAt(20, 15))
}

func TestSideBySideAndSave(t *testing.T) {
	eye := bgr(40, 40, colorutil.Black)
	defer eye.Close()
	mask := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8U)
	defer mask.Close()
	mask.SetTo(gocv.NewScalar(255, 0, 0, 0))

	out := SideBySide(eye, mask, 0.75, []image.Point{{X: 5, Y: 5}})
	defer out.Close()
	assert.Equal(t, 40, out.Rows())
	assert.Equal(t, 80, out.Cols())
	assert.Equal(t, []uint8{255, 255, 255}, out.GetVecbAt(39, 79))

	dir := t.TempDir()
	require.NoError(t, SaveResult(filepath.Join(dir, "a", "res.png"), eye, mask, 0.75, nil))
	require.NoError(t, SaveEyeAndMask(dir, "sample", eye, mask))
	for _, name := range []string{"a/res.png", "sample_eye.jpg", "sample_mask.jpg"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestFormats(t *testing.T) {
	assert.True(t, IsSupportedFormat("/x/eye.JPG"))
	assert.True(t, IsSupportedFormat("a.tiff"))
	assert.False(t, IsSupportedFormat("a.mp4"))
	assert.True(t, IsVideo("clip.MOV"))
	assert.False(t, IsVideo("clip.gif"))
	assert.Equal(t, "eye_01", Stem("/data/real/eye/eye_01.png"))
	assert.Equal(t, "BIoU = 0.9876", ScoreLabel(0.98761))
}
