package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"

	"pupil-biou/internal/classify"
	"pupil-biou/internal/logging"
	"pupil-biou/internal/store"
)

var logger = logging.New("Batch")

// Result is the outcome for one item. Err is set when the item was excluded
// from the accuracy count.
type Result struct {
	Item
	Score   float64
	Correct bool
	Err     error
}

// Skipped reports whether the item produced no usable score.
func (r Result) Skipped() bool {
	return r.Err != nil
}

// Summary aggregates a batch run.
type Summary struct {
	Results []Result       // sorted by label, mode, file name
	Total   int            // scored items
	Correct int            // scored items whose verdict matched the label
	Skipped map[string]int // excluded items by classify.Reason
}

// Accuracy is Correct/Total, or 0 for an empty run.
func (s *Summary) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// SkippedTotal is the number of excluded items.
func (s *Summary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Runner classifies dataset items on a bounded worker pool.
type Runner struct {
	Pipeline  *classify.Pipeline
	Workers   int
	Threshold float64
	OutDir    string     // per-category result images; empty disables export
	Sink      store.Sink // receives scored rows; may be nil
	Progress  io.Writer  // progress bar destination; nil hides it
}

// Run processes items and returns the summary. Cancelling ctx stops
// dispatch; items already running finish and the partial summary is
// returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, items []Item) (*Summary, error) {
	if r.Pipeline == nil {
		return nil, errors.New("batch: no pipeline")
	}
	workers := r.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(1, len(items)))

	var bar *progressbar.ProgressBar
	if r.Progress != nil {
		bar = progressbar.NewOptions(len(items),
			progressbar.OptionSetDescription("Scoring"),
			progressbar.OptionSetWriter(r.Progress),
			progressbar.OptionShowCount(),
		)
	}

	tasks := make(chan Item, workers)
	results := make(chan Result, workers*2)
	var wg sync.WaitGroup

	summary := &Summary{Skipped: map[string]int{}}
	// Rows still arriving after cancellation are recorded.
	sinkCtx := context.WithoutCancel(ctx)
	var sinkErrs []error
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for res := range results {
			if bar != nil {
				bar.Add(1)
			}
			summary.Results = append(summary.Results, res)
			if res.Skipped() {
				summary.Skipped[classify.Reason(res.Err)]++
				continue
			}
			summary.Total++
			if res.Correct {
				summary.Correct++
			}
			if r.Sink != nil {
				if err := r.Sink.Write(sinkCtx, row(res)); err != nil {
					logger.Printf("failed to record %s: %v", res.Name(), err)
					sinkErrs = append(sinkErrs, err)
				}
			}
		}
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range tasks {
				if ctx.Err() != nil {
					continue
				}
				results <- r.process(ctx, it)
			}
		}()
	}

dispatch:
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case tasks <- it:
		}
	}
	close(tasks)
	wg.Wait()
	close(results)
	<-aggDone

	runErr := ctx.Err()

	if bar != nil {
		bar.Finish()
	}
	sortItems(summary.Results, func(i int) Item { return summary.Results[i].Item })
	if len(sinkErrs) > 0 {
		runErr = errors.Join(runErr, fmt.Errorf("%d result rows not recorded: %w", len(sinkErrs), sinkErrs[0]))
	}
	return summary, runErr
}

func (r *Runner) process(ctx context.Context, it Item) Result {
	p := *r.Pipeline
	p.OutDir = ""
	if r.OutDir != "" {
		p.OutDir = OutputDir(r.OutDir, it.Label, it.Mode)
	}

	res := Result{Item: it}
	out, err := p.Run(ctx, it.Mode, it.Path)
	if err != nil {
		if !errors.Is(err, classify.ErrSkipped) {
			logger.Printf("%s: %v", it.Path, err)
		}
		res.Err = err
		return res
	}
	res.Score = out.Score
	res.Correct = classify.Correct(it.Label, out.Score, r.Threshold)
	return res
}

func row(res Result) store.Row {
	return store.Row{
		Filename: res.Name(),
		Label:    string(res.Label),
		Mode:     string(res.Mode),
		Score:    res.Score,
		Correct:  res.Correct,
	}
}
