package face

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"pupil-biou/internal/logging"
)

var logger = logging.New("Face")

// Default cascade file names shipped with OpenCV.
const (
	FaceCascadeFile = "haarcascade_frontalface_alt.xml"
	EyeCascadeFile  = "haarcascade_eye.xml"
)

// DefaultCascadeDirs lists the usual OpenCV install locations.
var DefaultCascadeDirs = []string{
	".",
	"./models/haarcascades",
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// HaarConfig locates the cascade files. Empty paths fall back to the default
// file names searched in Dirs (then OPENCV_CASCADE_PATH and
// DefaultCascadeDirs).
type HaarConfig struct {
	FaceCascade string
	EyeCascade  string
	Dirs        []string
	Margin      int
}

// HaarLandmarker detects the face and eyes with Haar cascades. Eye landmarks
// are placed on the ellipse inscribed in each detected eye box, in the order
// outer corner, two upper-lid points, inner corner, two lower-lid points.
// Detect serializes calls, so one instance may be shared by workers.
type HaarLandmarker struct {
	mu     sync.Mutex
	face   gocv.CascadeClassifier
	eye    gocv.CascadeClassifier
	margin int
}

// NewHaarLandmarker loads both cascades.
func NewHaarLandmarker(cfg HaarConfig) (*HaarLandmarker, error) {
	dirs := append([]string{}, cfg.Dirs...)
	if env := os.Getenv("OPENCV_CASCADE_PATH"); env != "" {
		dirs = append(dirs, env)
	}
	dirs = append(dirs, DefaultCascadeDirs...)

	face, err := loadCascade(candidates(cfg.FaceCascade, FaceCascadeFile, dirs))
	if err != nil {
		return nil, fmt.Errorf("failed to load face cascade: %w", err)
	}
	eye, err := loadCascade(candidates(cfg.EyeCascade, EyeCascadeFile, dirs))
	if err != nil {
		face.Close()
		return nil, fmt.Errorf("failed to load eye cascade: %w", err)
	}
	margin := cfg.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &HaarLandmarker{face: face, eye: eye, margin: margin}, nil
}

func candidates(explicit, name string, dirs []string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	for _, d := range dirs {
		paths = append(paths, filepath.Join(d, name))
	}
	return paths
}

func loadCascade(paths []string) (gocv.CascadeClassifier, error) {
	c := gocv.NewCascadeClassifier()
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if c.Load(p) {
			logger.Printf("loaded cascade %s", p)
			return c, nil
		}
	}
	c.Close()
	return gocv.CascadeClassifier{}, fmt.Errorf("none of %d candidate paths could be loaded", len(paths))
}

// Close releases the cascades.
func (h *HaarLandmarker) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.face.Close()
	return h.eye.Close()
}

// Detect implements Landmarker.
func (h *HaarLandmarker) Detect(img gocv.Mat) (Eyes, bool, error) {
	if img.Empty() {
		return Eyes{}, false, fmt.Errorf("empty image")
	}
	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() == 1 {
		img.CopyTo(&gray)
	} else {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}
	gocv.EqualizeHist(gray, &gray)

	h.mu.Lock()
	defer h.mu.Unlock()

	faces := h.face.DetectMultiScaleWithParams(gray, 1.1, 3, 0, image.Point{X: 30, Y: 30}, image.Point{})
	if len(faces) == 0 {
		return Eyes{}, false, nil
	}
	faceRect := largest(faces)

	// Eyes sit in the upper half of the face.
	upper := image.Rect(faceRect.Min.X, faceRect.Min.Y, faceRect.Max.X, faceRect.Min.Y+faceRect.Dy()/2)
	roi := gray.Region(upper)
	defer roi.Close()
	minEye := max(faceRect.Dx()/10, 8)
	boxes := h.eye.DetectMultiScaleWithParams(roi, 1.1, 3, 0, image.Point{X: minEye, Y: minEye}, image.Point{})
	if len(boxes) == 0 {
		return Eyes{}, false, nil
	}
	for i := range boxes {
		boxes[i] = boxes[i].Add(upper.Min)
	}
	boxes = twoLargest(boxes)
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Min.X < boxes[j].Min.X })

	var eyes Eyes
	faceMid := faceRect.Min.X + faceRect.Dx()/2
	for i, b := range boxes {
		eye, ok := CropEye(img, EllipseLandmarks(b), h.margin)
		if !ok {
			continue
		}
		// A lone eye is assigned by which half of the face it sits in.
		left := i == 0 && (len(boxes) == 2 || b.Min.X+b.Dx()/2 < faceMid)
		if left {
			eyes.Left = eye
		} else {
			eyes.Right = eye
		}
	}
	if eyes.Left == nil && eyes.Right == nil {
		return Eyes{}, false, nil
	}
	return eyes, true, nil
}

// EllipseLandmarks approximates six eye contour points on the ellipse
// inscribed in box: the two corners plus upper and lower lid points at one
// and two thirds of the width.
func EllipseLandmarks(box image.Rectangle) []image.Point {
	cx := float64(box.Min.X) + float64(box.Dx())/2
	cy := float64(box.Min.Y) + float64(box.Dy())/2
	a := float64(box.Dx()) / 2
	b := float64(box.Dy()) / 4 // lids cover roughly the middle half of a cascade box

	lid := func(xFrac float64, sign float64) image.Point {
		dx := (xFrac - 0.5) * 2 // -1..1
		dy := b * math.Sqrt(math.Max(0, 1-dx*dx))
		return image.Point{X: int(cx + dx*a + 0.5), Y: int(cy + sign*dy + 0.5)}
	}
	return []image.Point{
		{X: box.Min.X, Y: int(cy + 0.5)},
		lid(1.0/3, -1),
		lid(2.0/3, -1),
		{X: box.Max.X - 1, Y: int(cy + 0.5)},
		lid(2.0/3, 1),
		lid(1.0/3, 1),
	}
}

func largest(rects []image.Rectangle) image.Rectangle {
	best := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best
}

func twoLargest(rects []image.Rectangle) []image.Rectangle {
	sorted := append([]image.Rectangle{}, rects...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Dx()*sorted[i].Dy() > sorted[j].Dx()*sorted[j].Dy()
	})
	if len(sorted) > 2 {
		sorted = sorted[:2]
	}
	return sorted
}
