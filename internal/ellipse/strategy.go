package ellipse

import (
	"errors"
	"fmt"
	"log"

	"gocv.io/x/gocv"

	"pupil-biou/internal/logging"
	"pupil-biou/pkg/geometry"
)

var logger = logging.New("Ellipse")

// Method identifies which fitter produced an ellipse.
type Method int

const (
	MethodNone Method = iota
	MethodDirectLS
	MethodOpenCV
	MethodCustom
)

func (m Method) String() string {
	switch m {
	case MethodDirectLS:
		return "direct-ls"
	case MethodOpenCV:
		return "opencv"
	case MethodCustom:
		return "custom"
	default:
		return "none"
	}
}

// FitFunc fits an ellipse to a contour.
type FitFunc func(geometry.Contour) (Ellipse, error)

// Fitter is one step of a Strategy. A Fitter without a Method reports
// MethodCustom.
type Fitter struct {
	Method Method
	Fit    FitFunc
}

func (f Fitter) method() Method {
	if f.Method == MethodNone {
		return MethodCustom
	}
	return f.Method
}

// Result is the outcome of a Strategy fit.
type Result struct {
	Ellipse Ellipse
	Method  Method
}

// Strategy attempts Primary and calls Fallback only when Primary fails. The
// Result carries the Method of whichever step produced the ellipse.
type Strategy struct {
	Primary  Fitter
	Fallback Fitter
	Logger   *log.Logger
}

// DefaultStrategy pairs the Direct Least-Squares fit with OpenCV's fitEllipse.
func DefaultStrategy() Strategy {
	return Strategy{
		Primary:  Fitter{Method: MethodDirectLS, Fit: Fit},
		Fallback: Fitter{Method: MethodOpenCV, Fit: FitOpenCV},
		Logger:   logger,
	}
}

// Fit runs the two-step fit. Contours shorter than MinPoints fail without
// consulting either fitter.
func (s Strategy) Fit(contour geometry.Contour) (Result, error) {
	if len(contour) < MinPoints {
		return Result{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(contour))
	}
	primaryErr := errors.New("no primary fitter")
	if s.Primary.Fit != nil {
		e, err := s.Primary.Fit(contour)
		if err == nil {
			return Result{Ellipse: e, Method: s.Primary.method()}, nil
		}
		primaryErr = err
	}
	if s.Fallback.Fit == nil {
		return Result{}, primaryErr
	}
	if s.Logger != nil {
		s.Logger.Printf("%s fit failed (%v), falling back to %s", s.Primary.method(), primaryErr, s.Fallback.method())
	}
	e, err := s.Fallback.Fit(contour)
	if err != nil {
		return Result{}, fmt.Errorf("%w: primary: %v; fallback: %v", ErrDegenerate, primaryErr, err)
	}
	return Result{Ellipse: e, Method: s.Fallback.method()}, nil
}

// FitWithFallback runs DefaultStrategy.
func FitWithFallback(contour geometry.Contour) (Result, error) {
	return DefaultStrategy().Fit(contour)
}

// FitOpenCV fits with OpenCV's fitEllipse. The returned rectangle's width lies
// along its angle, so Canonicalize takes it as the along-angle axis.
//
// gocv's RotatedRect rounds center and size to whole pixels, so this fit is
// accurate to about half a pixel per coordinate and axis. Small pupils that
// reach this path score somewhat lower than under the primary fit.
func FitOpenCV(contour geometry.Contour) (Ellipse, error) {
	if len(contour) < MinPoints {
		return Ellipse{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(contour))
	}
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()

	rect := gocv.FitEllipse(pv)
	if rect.Width <= 0 || rect.Height <= 0 {
		return Ellipse{}, fmt.Errorf("%w: opencv fit %dx%d", ErrDegenerate, rect.Width, rect.Height)
	}
	return Canonicalize(
		geometry.FromImagePoint(rect.Center),
		float64(rect.Width),
		float64(rect.Height),
		rect.Angle,
	), nil
}
