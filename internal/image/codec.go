// Package image provides image decoding, encoding and result export around
// OpenCV matrices.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when no decoder accepts the input bytes.
var ErrDecode = errors.New("image: cannot decode")

// Decode decodes encoded image bytes into a BGR Mat. OpenCV's decoders are
// tried first; formats it lacks fall back to the Go decoders.
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: no data", ErrDecode)
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	mat.Close()

	img, format, goErr := image.Decode(bytes.NewReader(data))
	if goErr != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, goErr)
	}
	m, err := FromGo(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert %s image: %w", format, err)
	}
	return m, nil
}

// DecodeGray decodes encoded image bytes into a single-channel Mat.
func DecodeGray(data []byte) (gocv.Mat, error) {
	m, err := Decode(data)
	if err != nil {
		return m, err
	}
	defer m.Close()
	return ToGray(m), nil
}

// Load reads and decodes an image file.
func Load(path string) (gocv.Mat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open image: %w", err)
	}
	m, err := Decode(data)
	if err != nil {
		return m, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Encode encodes m with the OpenCV encoder for ext (".png", ".jpg", ...).
func Encode(ext string, m gocv.Mat) ([]byte, error) {
	if m.Empty() {
		return nil, errors.New("image: cannot encode empty matrix")
	}
	buf, err := gocv.IMEncode(gocv.FileExt(normalizeExt(ext)), m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Save encodes m by the extension of path and writes it.
func Save(path string, m gocv.Mat) error {
	data, err := Encode(filepath.Ext(path), m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// ToGray returns a single-channel copy of m.
func ToGray(m gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch m.Channels() {
	case 1:
		m.CopyTo(&gray)
	case 4:
		gocv.CvtColor(m, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// FromGo converts a Go image to an OpenCV Mat: *image.Gray becomes CV_8UC1,
// everything else CV_8UC3 in BGR order.
func FromGo(src image.Image) (gocv.Mat, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), errors.New("image: empty bounds")
	}

	if g, ok := src.(*image.Gray); ok {
		buf := make([]byte, 0, w*h)
		for y := 0; y < h; y++ {
			off := g.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			buf = append(buf, g.Pix[off:off+w]...)
		}
		return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, buf)
	}

	buf := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// 16-bit to 8-bit, BGR order for OpenCV
			buf = append(buf, uint8(b>>8), uint8(g>>8), uint8(r>>8))
		}
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" {
		return ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// SupportedFormats returns the still-image extensions accepted as input.
func SupportedFormats() []string {
	return []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp", ".webp"}
}

// VideoFormats returns the video extensions accepted as input.
func VideoFormats() []string {
	return []string{".mp4", ".avi", ".mov"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	return hasExt(path, SupportedFormats())
}

// IsVideo checks if the given path has a supported video format.
func IsVideo(path string) bool {
	return hasExt(path, VideoFormats())
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
