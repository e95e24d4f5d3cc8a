package classify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"gocv.io/x/gocv"

	"pupil-biou/internal/biou"
	"pupil-biou/internal/face"
	eyeimage "pupil-biou/internal/image"
	"pupil-biou/internal/logging"
	"pupil-biou/internal/pupil"
	"pupil-biou/internal/video"
	"pupil-biou/pkg/geometry"
)

var logger = logging.New("Classify")

// Missing is the score recorded for an eye or frame that produced none.
const Missing = -1.0

// Pipeline holds what the per-input pipelines share. It is read-only after
// construction, so one Pipeline may serve many goroutines as long as the
// Landmarker is safe for concurrent use.
type Pipeline struct {
	Params     pupil.Params
	Scorer     biou.Scorer
	Landmarker face.Landmarker // required for face and video input
	Frames     int             // leading frames sampled per video
	OutDir     string          // result images are written here when set
}

// New returns a Pipeline with the default scorer.
func New(params pupil.Params, lm face.Landmarker) *Pipeline {
	return &Pipeline{
		Params:     params,
		Scorer:     biou.NewScorer(),
		Landmarker: lm,
		Frames:     video.DefaultFrames,
	}
}

// EyeScore is the scored pupil of one eye crop.
type EyeScore struct {
	Score   float64
	Pupil   *pupil.Result
	Contour geometry.Contour
	Report  biou.Report
}

// Close releases the pupil mask.
func (s *EyeScore) Close() {
	if s != nil && s.Pupil != nil {
		s.Pupil.Close()
	}
}

// ScoreEye locates the pupil in an eye crop (BGR or gray), extracts its
// outer contour and scores it. The crop is used as given.
func (p *Pipeline) ScoreEye(eye gocv.Mat) (*EyeScore, error) {
	gray := eyeimage.ToGray(eye)
	defer gray.Close()

	res, err := pupil.Locate(gray, p.Params)
	if err != nil {
		return nil, skip(err)
	}
	contour, err := pupil.LargestContour(res.Mask)
	if err != nil {
		res.Close()
		return nil, skip(err)
	}
	rep := p.Scorer.Evaluate(res.Mask, contour)
	if rep.Err != nil {
		res.Close()
		return nil, skip(rep.Err)
	}
	return &EyeScore{Score: rep.Score, Pupil: res, Contour: contour, Report: rep}, nil
}

// Outcome is the result of one input.
type Outcome struct {
	Path  string
	Mode  Mode
	Score float64

	// Face input: per-eye scores, Missing when an eye gave none.
	Left, Right float64
	// Video input: left-eye score per sampled frame, Missing for frames
	// without one.
	FrameScores []float64
}

// Run dispatches path to the pipeline for mode.
func (p *Pipeline) Run(ctx context.Context, mode Mode, path string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	switch mode {
	case ModeEye:
		return p.EyeFile(path)
	case ModeFace:
		return p.FaceFile(path)
	case ModeVideo:
		return p.VideoFile(ctx, path)
	}
	return Outcome{}, fmt.Errorf("unknown mode %q", mode)
}

// EyeFile scores a pre-cropped eye image. The crop is padded to a square
// before detection.
func (p *Pipeline) EyeFile(path string) (Outcome, error) {
	out := Outcome{Path: path, Mode: ModeEye}
	img, err := eyeimage.Load(path)
	if err != nil {
		return out, skip(err)
	}
	defer img.Close()

	square := eyeimage.SquareEyeCrop(img)
	defer square.Close()

	s, err := p.ScoreEye(square)
	if err != nil {
		return out, err
	}
	defer s.Close()
	out.Score = s.Score

	if p.OutDir != "" {
		if err := eyeimage.SaveEyeAndMask(p.OutDir, eyeimage.Stem(path), square, s.Pupil.Mask); err != nil {
			return out, err
		}
	}
	return out, nil
}

// FaceFile scores both eyes of a face image and keeps the higher score.
func (p *Pipeline) FaceFile(path string) (Outcome, error) {
	img, err := eyeimage.Load(path)
	if err != nil {
		return Outcome{Path: path, Mode: ModeFace, Left: Missing, Right: Missing}, skip(err)
	}
	defer img.Close()
	out, err := p.Face(img, p.resultPath(path))
	out.Path = path
	return out, err
}

// Face scores both eyes of a decoded face image. Missing eyes score
// Missing; the left eye wins ties. When resultPath is set the chosen eye is
// exported with its landmarks.
func (p *Pipeline) Face(img gocv.Mat, resultPath string) (Outcome, error) {
	out := Outcome{Mode: ModeFace, Left: Missing, Right: Missing}
	eyes, err := p.detect(img)
	if err != nil {
		return out, err
	}
	defer eyes.Close()

	left, lerr := p.scoreOptional(eyes.Left)
	defer left.Close()
	right, rerr := p.scoreOptional(eyes.Right)
	defer right.Close()
	if left != nil {
		out.Left = left.Score
	}
	if right != nil {
		out.Right = right.Score
	}
	if left == nil && right == nil {
		return out, skip(errors.Join(lerr, rerr))
	}

	chosen, eye := left, eyes.Left
	if out.Right > out.Left {
		chosen, eye = right, eyes.Right
	}
	out.Score = chosen.Score

	if resultPath != "" {
		landmarks := eye.Landmarks
		if landmarks == nil {
			landmarks = []image.Point{}
		}
		if err := eyeimage.SaveResult(resultPath, eye.Crop, chosen.Pupil.Mask, out.Score, landmarks); err != nil {
			return out, err
		}
	}
	return out, nil
}

// VideoFile averages the left-eye score over the leading frames of a video.
// Frames are decoded into memory and handed straight to the landmarker.
func (p *Pipeline) VideoFile(ctx context.Context, path string) (Outcome, error) {
	out := Outcome{Path: path, Mode: ModeVideo}
	frames, err := video.FirstFrames(path, p.Frames)
	if err != nil {
		return out, skip(err)
	}
	defer frames.Close()

	res, err := p.Video(ctx, frames, p.resultPath(path))
	res.Path = path
	return res, err
}

// Video averages the valid left-eye scores of frames. The last scored eye
// is exported when resultPath is set.
func (p *Pipeline) Video(ctx context.Context, frames []gocv.Mat, resultPath string) (Outcome, error) {
	out := Outcome{Mode: ModeVideo, FrameScores: make([]float64, 0, len(frames))}
	var (
		sum      float64
		valid    int
		lastErr  error
		lastEye  gocv.Mat
		lastMask gocv.Mat
		haveLast bool
	)
	defer func() {
		if haveLast {
			lastEye.Close()
			lastMask.Close()
		}
	}()

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		score, eye, mask, err := p.frameScore(frame)
		if err != nil {
			logger.Printf("frame %d: %v", i, err)
			lastErr = err
			out.FrameScores = append(out.FrameScores, Missing)
			continue
		}
		out.FrameScores = append(out.FrameScores, score)
		sum += score
		valid++
		if haveLast {
			lastEye.Close()
			lastMask.Close()
		}
		lastEye, lastMask, haveLast = eye, mask, true
	}
	if valid == 0 {
		if lastErr == nil {
			lastErr = video.ErrNoFrames
		}
		return out, skip(lastErr)
	}
	out.Score = sum / float64(valid)

	if resultPath != "" {
		if err := eyeimage.SaveResult(resultPath, lastEye, lastMask, out.Score, nil); err != nil {
			return out, err
		}
	}
	return out, nil
}

// frameScore scores the left eye of one frame and returns clones of the eye
// crop and mask owned by the caller.
func (p *Pipeline) frameScore(frame gocv.Mat) (float64, gocv.Mat, gocv.Mat, error) {
	eyes, err := p.detect(frame)
	if err != nil {
		return 0, gocv.Mat{}, gocv.Mat{}, err
	}
	defer eyes.Close()
	if eyes.Left == nil {
		return 0, gocv.Mat{}, gocv.Mat{}, skip(fmt.Errorf("%w: left eye not found", face.ErrNoFace))
	}
	s, err := p.ScoreEye(eyes.Left.Crop)
	if err != nil {
		return 0, gocv.Mat{}, gocv.Mat{}, err
	}
	defer s.Close()
	return s.Score, eyes.Left.Crop.Clone(), s.Pupil.Mask.Clone(), nil
}

func (p *Pipeline) detect(img gocv.Mat) (face.Eyes, error) {
	if p.Landmarker == nil {
		return face.Eyes{}, errors.New("no face landmarker configured")
	}
	eyes, found, err := p.Landmarker.Detect(img)
	if err != nil {
		return face.Eyes{}, fmt.Errorf("landmark detection: %w", err)
	}
	if !found {
		return face.Eyes{}, skip(face.ErrNoFace)
	}
	return eyes, nil
}

func (p *Pipeline) scoreOptional(eye *face.Eye) (*EyeScore, error) {
	if eye == nil {
		return nil, fmt.Errorf("%w: eye not found", face.ErrNoFace)
	}
	return p.ScoreEye(eye.Crop)
}

func (p *Pipeline) resultPath(input string) string {
	if p.OutDir == "" {
		return ""
	}
	return filepath.Join(p.OutDir, eyeimage.Stem(input)+"_result.jpg")
}
