// Package pupil locates the pupil in a grayscale eye crop and builds its mask.
package pupil

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"pupil-biou/pkg/geometry"
)

var (
	// ErrInvalidInput is returned for empty or multi-channel images.
	ErrInvalidInput = errors.New("pupil: invalid input image")
	// ErrNotFound is returned when no acceptable pupil is located.
	ErrNotFound = errors.New("pupil: not found")
)

// Candidate is a scored Hough circle proposal.
type Candidate struct {
	Center geometry.Point2D `json:"center"`
	Radius float64          `json:"radius"`

	MeanIntensity float64 `json:"mean_intensity"`
	EdgeCoverage  float64 `json:"edge_coverage"`
	DistPenalty   float64 `json:"dist_penalty"`
	Score         float64 `json:"score"`
	Skipped       bool    `json:"skipped,omitempty"` // radius too small or outside the image
}

// Result is a located pupil. Mask is a CV_8UC1 raster the size of the input
// with 255 marking pupil pixels; the caller owns it and must call Close.
type Result struct {
	Mask   gocv.Mat
	Center image.Point
	Radius int

	Winner     Candidate
	Candidates []Candidate // every proposal, in detector order
	Relaxed    bool        // found by the relaxed second Hough pass
	Area       int         // nonzero mask pixels
}

// Close releases the mask.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	return r.Mask.Close()
}
