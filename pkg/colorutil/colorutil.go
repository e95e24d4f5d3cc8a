// Package colorutil provides shared drawing colors. OpenCV drawing calls map
// color.RGBA to BGR scalars, so single-channel rasters take the blue value.
package colorutil

import "image/color"

// Common overlay colors used throughout the application.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Gray returns an opaque gray level, usable as a single-channel fill value.
func Gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 255}
}
