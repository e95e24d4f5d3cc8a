// Package classify runs the per-input pupil pipelines (eye crop, face image,
// video) and turns their BIoU score into a real/synthetic verdict.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"pupil-biou/internal/ellipse"
	"pupil-biou/internal/face"
	eyeimage "pupil-biou/internal/image"
	"pupil-biou/internal/pupil"
	"pupil-biou/internal/video"
)

// DefaultThreshold separates real (above) from synthetic scores.
const DefaultThreshold = 0.5

// Label is the dataset category of an input.
type Label string

const (
	Real      Label = "real"
	Synthetic Label = "synthetic"
)

// Labels lists the dataset categories in report order.
var Labels = []Label{Real, Synthetic}

// Mode selects the pipeline used for an input.
type Mode string

const (
	ModeEye   Mode = "eye"
	ModeFace  Mode = "face"
	ModeVideo Mode = "video"
)

// Modes lists the pipelines in report order.
var Modes = []Mode{ModeEye, ModeFace, ModeVideo}

// ParseMode converts a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeEye, ModeFace, ModeVideo:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want eye, face or video)", s)
}

// Accepts reports whether path has an extension this mode can read.
func (m Mode) Accepts(path string) bool {
	if m == ModeVideo {
		return eyeimage.IsVideo(path)
	}
	return eyeimage.IsSupportedFormat(path)
}

// ErrSkipped wraps every failure that excludes an input from accuracy
// counting. Use Reason to get a short category for reports.
var ErrSkipped = errors.New("skipped")

func skip(err error) error {
	if errors.Is(err, ErrSkipped) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSkipped, err)
}

// Verdict classifies a score: real when strictly above threshold.
func Verdict(score, threshold float64) Label {
	if score > threshold {
		return Real
	}
	return Synthetic
}

// Correct reports whether score agrees with the known label. A score equal
// to the threshold is wrong for both labels.
func Correct(label Label, score, threshold float64) bool {
	switch label {
	case Real:
		return score > threshold
	case Synthetic:
		return score < threshold
	}
	return false
}

// Reason returns a short category for a skip error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, eyeimage.ErrDecode):
		return "unreadable"
	case errors.Is(err, video.ErrNoFrames):
		return "no frames"
	case errors.Is(err, face.ErrNoFace):
		return "no face"
	case errors.Is(err, pupil.ErrInvalidInput), errors.Is(err, ellipse.ErrTooFewPoints):
		return "invalid input"
	case errors.Is(err, pupil.ErrNotFound):
		return "pupil not found"
	case errors.Is(err, ellipse.ErrDegenerate):
		return "degenerate fit"
	}
	return "error"
}
