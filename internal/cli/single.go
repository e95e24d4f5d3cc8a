package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pupil-biou/internal/classify"
)

func newEyeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eye <image>",
		Short: "Score a pre-cropped eye image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closer, err := a.pipeline(false)
			if err != nil {
				return err
			}
			defer closer.Close()

			out, err := p.Run(cmd.Context(), classify.ModeEye, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "BIoU = %.6f\n", out.Score)
			a.printVerdict(w, out.Score)
			return nil
		},
	}
}

func newFaceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "face <image>",
		Short: "Score both eyes of a face image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closer, err := a.pipeline(true)
			if err != nil {
				return err
			}
			defer closer.Close()

			out, err := p.Run(cmd.Context(), classify.ModeFace, args[0])
			w := cmd.OutOrStdout()
			printEye(w, "Left", out.Left)
			printEye(w, "Right", out.Right)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "BIoU = %.6f\n", out.Score)
			a.printVerdict(w, out.Score)
			return nil
		},
	}
}

func newVideoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "video <file>",
		Short: "Average the left-eye score over the first frames of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closer, err := a.pipeline(true)
			if err != nil {
				return err
			}
			defer closer.Close()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Processing first %d frames\n", p.Frames)
			out, err := p.Run(cmd.Context(), classify.ModeVideo, args[0])
			for i, s := range out.FrameScores {
				if s == classify.Missing {
					fmt.Fprintf(w, "Frame %d: no left eye score\n", i)
					continue
				}
				fmt.Fprintf(w, "Frame %d - Left Eye BIoU = %.6f\n", i, s)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Mean BIoU = %.6f\n", out.Score)
			a.printVerdict(w, out.Score)
			return nil
		},
	}
}

func printEye(w io.Writer, side string, score float64) {
	if score == classify.Missing {
		fmt.Fprintf(w, "%s Eye: not scored\n", side)
		return
	}
	fmt.Fprintf(w, "%s Eye BIoU = %.6f\n", side, score)
}

func (a *app) printVerdict(w io.Writer, score float64) {
	fmt.Fprintf(w, "Verdict: %s\n", classify.Verdict(score, a.cfg.Threshold))
}
