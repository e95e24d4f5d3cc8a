// Package cli implements the pupil-biou command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"pupil-biou/internal/classify"
	"pupil-biou/internal/config"
	"pupil-biou/internal/face"
	"pupil-biou/internal/logging"
	"pupil-biou/internal/version"
)

// defaultOutDir is where batch result images go when nothing else is set.
const defaultOutDir = "results"

type app struct {
	cfgPath string
	envFile string
	cfg     *config.Config
	logFile io.Closer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "pupil-biou",
		Short: "Classify eye images as real or synthetic by pupil ellipse agreement",
		Long: `pupil-biou locates the pupil in an eye crop, fits an ellipse to its boundary
and scores how well the detected mask agrees with that ellipse (BIoU).
Scores above the threshold are classified as real.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logFile != nil {
				a.logFile.Close()
				a.logFile = nil
			}
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&a.envFile, "env-file", "", "dotenv file with PUPIL_* settings (default .env)")
	pf.Bool("quiet", false, "suppress diagnostic logging")
	pf.String("log-file", "", "append diagnostic logging to this file")
	pf.StringP("out", "o", "", "directory for result images")
	pf.Float64("threshold", defaults.Threshold, "scores above this are classified as real")
	pf.Int("frames", defaults.VideoFrames, "leading frames sampled per video")
	pf.String("cascade-dir", "", "directory holding the Haar cascade files")

	p := defaults.Pupil
	pf.Int("canny-low", p.CannyLow, "Canny low threshold")
	pf.Int("canny-high", p.CannyHigh, "Canny high threshold")
	pf.Int("min-radius", p.MinRadius, "smallest pupil radius searched, in pixels")
	pf.Int("max-radius", p.MaxRadius, "largest pupil radius searched, in pixels")
	pf.Float64("dp", p.DP, "Hough accumulator resolution (inverse ratio)")
	pf.Int("min-dist", p.MinDist, "minimum distance between circle centers")
	pf.Float64("param1", p.Param1, "Hough gradient upper threshold")
	pf.Float64("param2", p.Param2, "Hough accumulator threshold")

	root.AddCommand(
		newEyeCmd(a),
		newFaceCmd(a),
		newVideoCmd(a),
		newBatchCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree with a context cancelled on SIGINT/SIGTERM
// and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// setup loads the layered configuration, applies flags on top and routes
// diagnostic logging.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath, a.envFile)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	switch {
	case cfg.Quiet:
		logging.Discard()
	case cfg.LogFile != "":
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logging.SetOutput(f)
		a.logFile = f
	default:
		logging.SetOutput(cmd.ErrOrStderr())
	}
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	var err error
	setInt := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}
	setFloat := func(name string, dst *float64) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetFloat64(name)
		}
	}
	setString := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}

	setInt("canny-low", &cfg.Pupil.CannyLow)
	setInt("canny-high", &cfg.Pupil.CannyHigh)
	setInt("min-radius", &cfg.Pupil.MinRadius)
	setInt("max-radius", &cfg.Pupil.MaxRadius)
	setFloat("dp", &cfg.Pupil.DP)
	setInt("min-dist", &cfg.Pupil.MinDist)
	setFloat("param1", &cfg.Pupil.Param1)
	setFloat("param2", &cfg.Pupil.Param2)

	setFloat("threshold", &cfg.Threshold)
	setInt("frames", &cfg.VideoFrames)
	setString("out", &cfg.OutputDir)
	setString("cascade-dir", &cfg.Cascades.Dir)
	setString("log-file", &cfg.LogFile)
	// Batch-only flags; Changed is false where they are not defined.
	setInt("workers", &cfg.Workers)
	setString("csv", &cfg.CSVPath)
	setString("db", &cfg.ResultsDSN)
	if err == nil && fs.Changed("quiet") {
		cfg.Quiet, err = fs.GetBool("quiet")
	}
	return err
}

// pipeline builds the classifier. The landmarker is only loaded when
// needFace is set; the returned closer releases it.
func (a *app) pipeline(needFace bool) (*classify.Pipeline, io.Closer, error) {
	p := classify.New(a.cfg.Pupil, nil)
	p.Frames = a.cfg.VideoFrames
	p.OutDir = a.cfg.OutputDir
	if !needFace {
		return p, nopCloser{}, nil
	}

	var dirs []string
	if a.cfg.Cascades.Dir != "" {
		dirs = append(dirs, a.cfg.Cascades.Dir)
	}
	lm, err := face.NewHaarLandmarker(face.HaarConfig{
		FaceCascade: a.cfg.Cascades.Face,
		EyeCascade:  a.cfg.Cascades.Eye,
		Dirs:        dirs,
	})
	if err != nil {
		return nil, nil, err
	}
	p.Landmarker = lm
	return p, lm, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip configuration loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
