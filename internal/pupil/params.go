package pupil

import "fmt"

// Params controls pupil localization. The field set mirrors the detector's
// external contract; specular fields tune the highlight heuristics.
type Params struct {
	CannyLow  int `toml:"canny_low"`
	CannyHigh int `toml:"canny_high"`

	// Hough circle search
	MinRadius int     `toml:"hough_min_radius"`
	MaxRadius int     `toml:"hough_max_radius"`
	DP        float64 `toml:"accumulator_resolution"` // inverse accumulator resolution
	MinDist   int     `toml:"min_center_distance"`
	Param1    float64 `toml:"hough_param1"` // upper Canny threshold inside HoughCircles
	Param2    float64 `toml:"hough_param2"` // accumulator threshold

	// Specular highlight handling
	SpecularOffset      float64 `toml:"specular_offset"`       // brightness above Otsu threshold
	SpecularMaxArea     int     `toml:"specular_max_area"`     // largest component treated as a highlight
	SpecularMinContrast float64 `toml:"specular_min_contrast"` // Otsu class separation required to act
	SpecularRimMargin   int     `toml:"specular_rim_margin"`   // pixels near the circle edge left alone

	MinMaskArea int `toml:"min_mask_area"`
}

// DefaultParams returns detection parameters tuned for cropped eye images of
// roughly 100-400 px.
func DefaultParams() Params {
	return Params{
		CannyLow:  30,
		CannyHigh: 90,

		MinRadius: 10,
		MaxRadius: 120,
		DP:        1.2,
		MinDist:   30,
		Param1:    80,
		Param2:    30,

		SpecularOffset:      10,
		SpecularMaxArea:     300,
		SpecularMinContrast: 40,
		SpecularRimMargin:   3,

		MinMaskArea: 10,
	}
}

// WithCanny returns a copy of params with custom edge thresholds.
func (p Params) WithCanny(low, high int) Params {
	p.CannyLow = low
	p.CannyHigh = high
	return p
}

// WithRadiusRange returns a copy of params with a custom Hough radius range.
func (p Params) WithRadiusRange(minR, maxR int) Params {
	p.MinRadius = minR
	p.MaxRadius = maxR
	return p
}

// WithHough returns a copy of params with custom accumulator settings.
func (p Params) WithHough(dp float64, minDist int, param1, param2 float64) Params {
	p.DP = dp
	p.MinDist = minDist
	p.Param1 = param1
	p.Param2 = param2
	return p
}

// Relaxed returns the permissive parameter set used when the first Hough pass
// finds nothing: full accumulator resolution, halved distance and thresholds,
// and a widened radius range.
func (p Params) Relaxed() Params {
	p.DP = 1.0
	p.MinDist = max(1, p.MinDist/2)
	p.Param1 /= 2
	p.Param2 /= 2
	p.MinRadius /= 2
	p.MaxRadius *= 2
	return p
}

// Validate reports the first inconsistent setting.
func (p Params) Validate() error {
	switch {
	case p.CannyLow < 0 || p.CannyHigh < p.CannyLow:
		return fmt.Errorf("invalid canny thresholds: low=%d high=%d", p.CannyLow, p.CannyHigh)
	case p.MinRadius < 0 || p.MaxRadius <= 0:
		return fmt.Errorf("invalid radius parameters: min=%d, max=%d", p.MinRadius, p.MaxRadius)
	case p.MinRadius > p.MaxRadius:
		return fmt.Errorf("min radius %d exceeds max radius %d", p.MinRadius, p.MaxRadius)
	case p.DP <= 0:
		return fmt.Errorf("accumulator resolution must be positive, got %v", p.DP)
	case p.MinDist <= 0:
		return fmt.Errorf("min center distance must be positive, got %d", p.MinDist)
	case p.Param1 <= 0 || p.Param2 <= 0:
		return fmt.Errorf("hough thresholds must be positive: %v, %v", p.Param1, p.Param2)
	}
	return nil
}
