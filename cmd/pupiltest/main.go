// Command pupiltest runs pupil detection on an eye image and prints every
// scored candidate, the winning circle, the fitted ellipse and the BIoU.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"pupil-biou/internal/biou"
	eyeimage "pupil-biou/internal/image"
	"pupil-biou/internal/pupil"
)

func main() {
	imagePath := flag.String("image", "", "Path to eye image (JPEG, PNG, TIFF, BMP or WebP)")
	square := flag.Bool("square", true, "Pad the crop to a centered square first")
	minRadius := flag.Int("min-radius", 0, "Override the smallest Hough radius")
	maxRadius := flag.Int("max-radius", 0, "Override the largest Hough radius")
	out := flag.String("out", "", "Write the side-by-side result image here")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: pupiltest -image <path> [-square=true] [-min-radius N] [-max-radius N] [-out result.jpg]")
		os.Exit(1)
	}

	img, err := eyeimage.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer func() { img.Close() }()
	fmt.Printf("Loaded image: %dx%d pixels, %d channels\n", img.Cols(), img.Rows(), img.Channels())

	if *square {
		sq := eyeimage.SquareEyeCrop(img)
		img.Close()
		img = sq
		fmt.Printf("Squared to: %dx%d\n", img.Cols(), img.Rows())
	}
	gray := eyeimage.ToGray(img)
	defer gray.Close()

	params := pupil.DefaultParams()
	if *minRadius > 0 || *maxRadius > 0 {
		lo, hi := params.MinRadius, params.MaxRadius
		if *minRadius > 0 {
			lo = *minRadius
		}
		if *maxRadius > 0 {
			hi = *maxRadius
		}
		params = params.WithRadiusRange(lo, hi)
	}
	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Canny: low=%d high=%d\n", params.CannyLow, params.CannyHigh)
	fmt.Printf("  Hough: radius %d-%d dp=%.1f minDist=%d param1=%.0f param2=%.0f\n",
		params.MinRadius, params.MaxRadius, params.DP, params.MinDist, params.Param1, params.Param2)
	fmt.Printf("  Specular: offset=%.0f maxArea=%d minContrast=%.0f rimMargin=%d\n",
		params.SpecularOffset, params.SpecularMaxArea, params.SpecularMinContrast, params.SpecularRimMargin)

	fmt.Printf("\nLocating pupil...\n")
	res, err := pupil.Locate(gray, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Close()

	if res.Relaxed {
		fmt.Println("(candidates came from the relaxed Hough pass)")
	}
	fmt.Printf("\n%d candidates:\n", len(res.Candidates))
	fmt.Printf("%8s %8s %8s %10s %8s %8s %10s\n", "X", "Y", "Radius", "Mean", "Edges", "Penalty", "Score")
	fmt.Println(strings.Repeat("-", 66))
	for _, c := range res.Candidates {
		if c.Skipped {
			fmt.Printf("%8.1f %8.1f %8.1f %10s\n", c.Center.X, c.Center.Y, c.Radius, "skipped")
			continue
		}
		fmt.Printf("%8.1f %8.1f %8.1f %10.1f %8.2f %8.2f %10.2f\n",
			c.Center.X, c.Center.Y, c.Radius, c.MeanIntensity, c.EdgeCoverage, c.DistPenalty, c.Score)
	}

	fmt.Printf("\nWinner: center=(%d,%d) radius=%d score=%.2f\n", res.Center.X, res.Center.Y, res.Radius, res.Winner.Score)
	fmt.Printf("Mask area: %d px\n", res.Area)

	contour, err := pupil.LargestContour(res.Mask)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Contour extraction failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Contour: %d points\n", len(contour))

	rep := biou.NewScorer().Evaluate(res.Mask, contour)
	if rep.Err != nil {
		fmt.Printf("Ellipse: no fit (%v)\n", rep.Err)
	} else {
		fmt.Printf("Ellipse (%s): %s\n", rep.Method, rep.Ellipse)
	}
	fmt.Printf("Intersection: %d px  Union: %d px\n", rep.Intersection, rep.Union)
	fmt.Printf("\n%s\n", eyeimage.ScoreLabel(rep.Score))

	if *out != "" {
		if err := eyeimage.SaveResult(*out, img, res.Mask, rep.Score, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save result: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved %s\n", *out)
	}
}
