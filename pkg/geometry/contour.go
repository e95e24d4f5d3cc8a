package geometry

import (
	"image"
	"math"
)

// Contour is an ordered sequence of integer pixel positions tracing the outer
// boundary of a mask region.
type Contour []image.Point

// Floats converts the contour to floating-point points.
func (c Contour) Floats() []Point2D {
	pts := make([]Point2D, len(c))
	for i, p := range c {
		pts[i] = FromImagePoint(p)
	}
	return pts
}

// RoundContour snaps floating-point points to the pixel grid.
func RoundContour(points []Point2D) Contour {
	c := make(Contour, len(points))
	for i, p := range points {
		c[i] = p.Round()
	}
	return c
}

// Area returns the enclosed polygon area using the shoelace formula.
func (c Contour) Area() float64 {
	if len(c) < 3 {
		return 0
	}
	var sum float64
	n := len(c)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += float64(c[i].X*c[j].Y - c[j].X*c[i].Y)
	}
	return math.Abs(sum) / 2
}

// Within reports whether every point lies inside a w×h raster.
func (c Contour) Within(w, h int) bool {
	for _, p := range c {
		if p.X < 0 || p.Y < 0 || p.X >= w || p.Y >= h {
			return false
		}
	}
	return true
}
