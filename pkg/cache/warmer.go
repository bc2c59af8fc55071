package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WarmTask is one read operation executed at startup to pre-populate the
// cache, typically a GetOrCompute against a hot key.
type WarmTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// WarmResult is the outcome of one task.
type WarmResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// WarmReport summarizes a warming run.
type WarmReport struct {
	Duration  time.Duration `json:"duration"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []WarmResult  `json:"results"`
}

// Warmer runs a fixed set of warm tasks concurrently at startup. One
// failing task never aborts the others; failures are logged and counted.
type Warmer struct {
	tasks  []WarmTask
	logger zerolog.Logger
}

// NewWarmer creates a warmer over a fixed task set.
func NewWarmer(tasks []WarmTask, logger zerolog.Logger) *Warmer {
	return &Warmer{tasks: tasks, logger: logger}
}

// WarmAll runs every task concurrently and reports per-task outcomes.
func (w *Warmer) WarmAll(ctx context.Context) WarmReport {
	start := time.Now()
	results := make([]WarmResult, len(w.tasks))

	var wg sync.WaitGroup
	for idx, task := range w.tasks {
		wg.Add(1)
		go func(idx int, task WarmTask) {
			defer wg.Done()

			taskStart := time.Now()
			err := task.Run(ctx)
			results[idx] = WarmResult{
				Name:     task.Name,
				Duration: time.Since(taskStart),
				Err:      err,
			}
		}(idx, task)
	}
	wg.Wait()

	report := WarmReport{
		Duration: time.Since(start),
		Results:  results,
	}
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
			guardCacheWarmTasksTotal.WithLabelValues("failure").Inc()
			w.logger.Warn().Err(r.Err).Str("task", r.Name).
				Msg("Cache warm task failed")
		} else {
			report.Succeeded++
			guardCacheWarmTasksTotal.WithLabelValues("success").Inc()
		}
	}

	w.logger.Info().
		Dur("duration", report.Duration).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Cache warming finished")

	return report
}
