package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pupil-biou/internal/batch"
	"pupil-biou/internal/classify"
	"pupil-biou/internal/config"
	"pupil-biou/internal/logging"
	"pupil-biou/internal/store"
)

// defaultCSV is the results file written when neither flag nor config names one.
const defaultCSV = "biou_results.csv"

var logger = logging.New("CLI")

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dataset>",
		Short: "Classify a labeled dataset and report accuracy",
		Long: `batch walks <dataset>/{real,synthetic}/{eye,face,video}, scores every
readable file on a worker pool and prints a results table with the overall
accuracy. Items without a usable score are counted separately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.IntP("workers", "w", config.Default().Workers, "number of parallel workers")
	f.String("csv", "", "results CSV path (default "+defaultCSV+")")
	f.String("db", "", "results database: sqlite3://path or postgres://...")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, root string) error {
	ctx := cmd.Context()
	items, err := batch.Discover(root)
	if err != nil {
		return err
	}

	needFace := false
	for _, it := range items {
		if it.Mode != classify.ModeEye {
			needFace = true
			break
		}
	}
	p, closer, err := a.pipeline(false)
	if err != nil {
		return err
	}
	if needFace {
		lp, lc, err := a.pipeline(true)
		if err != nil {
			logger.Printf("Warning: face and video items will be skipped: %v", err)
		} else {
			p, closer = lp, lc
		}
	}
	defer closer.Close()

	sink, err := a.openSinks(cmd)
	if err != nil {
		return err
	}

	outDir := a.cfg.OutputDir
	if outDir == "" {
		outDir = defaultOutDir
	}
	var progress io.Writer
	if !a.cfg.Quiet {
		progress = cmd.ErrOrStderr()
	}
	r := &batch.Runner{
		Pipeline:  p,
		Workers:   a.cfg.Workers,
		Threshold: a.cfg.Threshold,
		OutDir:    outDir,
		Sink:      sink,
		Progress:  progress,
	}
	summary, runErr := r.Run(ctx, items)
	closeErr := sink.Close()
	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout())
		batch.WriteTable(cmd.OutOrStdout(), summary)
	}
	return errors.Join(runErr, closeErr)
}

func (a *app) openSinks(cmd *cobra.Command) (store.Sink, error) {
	path := a.cfg.CSVPath
	if path == "" {
		path = defaultCSV
	}
	csv, err := store.NewCSV(path)
	if err != nil {
		return nil, err
	}
	sinks := store.Multi{csv}
	if a.cfg.ResultsDSN != "" {
		db, err := store.Open(cmd.Context(), a.cfg.ResultsDSN)
		if err != nil {
			csv.Close()
			return nil, err
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}
