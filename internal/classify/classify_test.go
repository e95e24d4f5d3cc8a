package classify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"pupil-biou/internal/ellipse"
	"pupil-biou/internal/face"
	eyeimage "pupil-biou/internal/image"
	"pupil-biou/internal/pupil"
	"pupil-biou/internal/video"
	"pupil-biou/pkg/colorutil"
)

type landmarkerFunc func(img gocv.Mat) (face.Eyes, bool, error)

func (f landmarkerFunc) Detect(img gocv.Mat) (face.Eyes, bool, error) { return f(img) }

// eyeCrop returns a BGR eye crop with a dark disk of radius 40 in the middle.
func eyeCrop() gocv.Mat {
	gray := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8U)
	defer gray.Close()
	gray.SetTo(gocv.NewScalar(200, 0, 0, 0))
	gocv.Circle(&gray, image.Point{X: 100, Y: 100}, 40, colorutil.Gray(40), -1)
	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr
}

func blankCrop() gocv.Mat {
	m := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(180, 180, 180, 0))
	return m
}

func eyeFrom(m gocv.Mat) *face.Eye {
	return &face.Eye{Crop: m, Box: image.Rect(0, 0, m.Cols(), m.Rows()), Landmarks: []image.Point{{X: 60, Y: 100}, {X: 140, Y: 100}}}
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, Real, Verdict(0.51, DefaultThreshold))
	assert.Equal(t, Synthetic, Verdict(0.5, DefaultThreshold))
	assert.Equal(t, Synthetic, Verdict(0.1, DefaultThreshold))
}

func TestCorrect(t *testing.T) {
	tests := []struct {
		label Label
		score float64
		want  bool
	}{
		{Real, 0.9, true},
		{Real, 0.5, false},
		{Real, 0.2, false},
		{Synthetic, 0.2, true},
		{Synthetic, 0.5, false},
		{Synthetic, 0.8, false},
		{Label("other"), 0.8, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%.1f", tt.label, tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, Correct(tt.label, tt.score, DefaultThreshold))
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Face")
	require.NoError(t, err)
	assert.Equal(t, ModeFace, m)

	_, err = ParseMode("iris")
	assert.Error(t, err)

	assert.True(t, ModeEye.Accepts("a/b.JPG"))
	assert.False(t, ModeEye.Accepts("a/b.mp4"))
	assert.True(t, ModeVideo.Accepts("clip.MOV"))
	assert.False(t, ModeVideo.Accepts("clip.png"))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "pupil not found", Reason(skip(fmt.Errorf("%w: x", pupil.ErrNotFound))))
	assert.Equal(t, "invalid input", Reason(skip(ellipse.ErrTooFewPoints)))
	assert.Equal(t, "degenerate fit", Reason(skip(ellipse.ErrDegenerate)))
	assert.Equal(t, "no face", Reason(skip(face.ErrNoFace)))
	assert.Equal(t, "no frames", Reason(skip(video.ErrNoFrames)))
	assert.Equal(t, "unreadable", Reason(skip(eyeimage.ErrDecode)))
	assert.Equal(t, "error", Reason(errors.New("boom")))
}

func TestSkipIsIdempotent(t *testing.T) {
	err := skip(skip(pupil.ErrNotFound))
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, "skipped: "+pupil.ErrNotFound.Error(), err.Error())
}

func TestScoreEye(t *testing.T) {
	p := New(pupil.DefaultParams(), nil)
	crop := eyeCrop()
	defer crop.Close()

	s, err := p.ScoreEye(crop)
	require.NoError(t, err)
	defer s.Close()
	assert.Greater(t, s.Score, 0.9)
	assert.LessOrEqual(t, s.Score, 1.0)
	assert.GreaterOrEqual(t, len(s.Contour), ellipse.MinPoints)
	assert.InDelta(t, 100, s.Report.Ellipse.Center.X, 3)
}

func TestScoreEyeBlank(t *testing.T) {
	p := New(pupil.DefaultParams(), nil)
	crop := blankCrop()
	defer crop.Close()

	_, err := p.ScoreEye(crop)
	require.ErrorIs(t, err, ErrSkipped)
	assert.ErrorIs(t, err, pupil.ErrNotFound)
	assert.Equal(t, "pupil not found", Reason(err))
}

func TestEyeFileExports(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sample.png")
	crop := eyeCrop()
	require.NoError(t, eyeimage.Save(in, crop))
	crop.Close()

	p := New(pupil.DefaultParams(), nil)
	p.OutDir = filepath.Join(dir, "out")
	out, err := p.Run(context.Background(), ModeEye, in)
	require.NoError(t, err)
	assert.Greater(t, out.Score, 0.9)
	assert.Equal(t, ModeEye, out.Mode)

	assert.FileExists(t, filepath.Join(p.OutDir, "sample_eye.jpg"))
	assert.FileExists(t, filepath.Join(p.OutDir, "sample_mask.jpg"))
}

func TestEyeFileUnreadable(t *testing.T) {
	in := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(in, []byte("not an image"), 0o644))

	_, err := New(pupil.DefaultParams(), nil).EyeFile(in)
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestFaceChoosesBetterEye(t *testing.T) {
	lm := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) {
		return face.Eyes{Left: eyeFrom(blankCrop()), Right: eyeFrom(eyeCrop())}, true, nil
	})
	p := New(pupil.DefaultParams(), lm)
	img := blankCrop()
	defer img.Close()

	resultPath := filepath.Join(t.TempDir(), "face_result.jpg")
	out, err := p.Face(img, resultPath)
	require.NoError(t, err)
	assert.Equal(t, Missing, out.Left)
	assert.Greater(t, out.Right, 0.9)
	assert.Equal(t, out.Right, out.Score)
	assert.FileExists(t, resultPath)
}

func TestFaceTiePrefersLeft(t *testing.T) {
	lm := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) {
		return face.Eyes{Left: eyeFrom(eyeCrop()), Right: eyeFrom(eyeCrop())}, true, nil
	})
	img := blankCrop()
	defer img.Close()

	out, err := New(pupil.DefaultParams(), lm).Face(img, "")
	require.NoError(t, err)
	assert.Equal(t, out.Left, out.Right)
	assert.Equal(t, out.Left, out.Score)
}

func TestFaceSkips(t *testing.T) {
	img := blankCrop()
	defer img.Close()

	noFace := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) { return face.Eyes{}, false, nil })
	_, err := New(pupil.DefaultParams(), noFace).Face(img, "")
	require.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, "no face", Reason(err))

	noPupil := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) {
		return face.Eyes{Left: eyeFrom(blankCrop())}, true, nil
	})
	out, err := New(pupil.DefaultParams(), noPupil).Face(img, "")
	require.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, Missing, out.Left)
	assert.Equal(t, Missing, out.Right)

	broken := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) { return face.Eyes{}, false, errors.New("model") })
	_, err = New(pupil.DefaultParams(), broken).Face(img, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSkipped)

	_, err = New(pupil.DefaultParams(), nil).Face(img, "")
	assert.Error(t, err)
}

func TestVideoAveragesValidFrames(t *testing.T) {
	call := 0
	lm := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) {
		call++
		if call == 2 {
			return face.Eyes{}, false, nil
		}
		return face.Eyes{Left: eyeFrom(eyeCrop())}, true, nil
	})
	frames := []gocv.Mat{blankCrop(), blankCrop(), blankCrop()}
	defer video.Frames(frames).Close()

	resultPath := filepath.Join(t.TempDir(), "clip_result.jpg")
	out, err := New(pupil.DefaultParams(), lm).Video(context.Background(), frames, resultPath)
	require.NoError(t, err)
	require.Len(t, out.FrameScores, 3)
	assert.Equal(t, Missing, out.FrameScores[1])
	assert.InDelta(t, (out.FrameScores[0]+out.FrameScores[2])/2, out.Score, 1e-12)
	assert.Greater(t, out.Score, 0.9)
	assert.FileExists(t, resultPath)
}

func TestVideoWithoutValidFrames(t *testing.T) {
	lm := landmarkerFunc(func(gocv.Mat) (face.Eyes, bool, error) {
		return face.Eyes{Right: eyeFrom(eyeCrop())}, true, nil
	})
	frames := []gocv.Mat{blankCrop(), blankCrop()}
	defer video.Frames(frames).Close()

	out, err := New(pupil.DefaultParams(), lm).Video(context.Background(), frames, "")
	require.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, "no face", Reason(err))
	assert.Equal(t, []float64{Missing, Missing}, out.FrameScores)
}

func TestVideoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frames := []gocv.Mat{blankCrop()}
	defer video.Frames(frames).Close()

	_, err := New(pupil.DefaultParams(), nil).Video(ctx, frames, "")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(pupil.DefaultParams(), nil).Run(ctx, ModeEye, "x.jpg")
	assert.ErrorIs(t, err, context.Canceled)
}
