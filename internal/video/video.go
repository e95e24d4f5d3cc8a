// Package video samples leading frames from video files into memory.
package video

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// DefaultFrames is the number of leading frames examined per video.
const DefaultFrames = 5

// ErrNoFrames is returned when a video yields no decodable frame.
var ErrNoFrames = errors.New("video: no frames")

// Frames is a set of decoded frames; Close releases all of them.
type Frames []gocv.Mat

// Close releases every frame.
func (f Frames) Close() {
	for i := range f {
		f[i].Close()
	}
}

// FirstFrames decodes up to n leading frames of the video at path. Fewer
// frames are returned for short videos; none is ErrNoFrames.
func FirstFrames(path string, n int) (Frames, error) {
	if n <= 0 {
		n = DefaultFrames
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return nil, fmt.Errorf("failed to open video %s", path)
	}

	frames := make(Frames, 0, n)
	for len(frames) < n {
		frame := gocv.NewMat()
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			frame.Close()
			break
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFrames, path)
	}
	return frames, nil
}
