package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/rxverify/internal/async"
	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/ingest"
)

type batchSummary struct {
	Scanned      uint32         `json:"scanned"`
	Matched      uint32         `json:"matched"`
	Deduplicated uint32         `json:"deduplicated"`
	Failed       uint32         `json:"failed"`
	ByStatus     map[string]int `json:"by_status"`
	Results      []fileVerdict  `json:"results"`
}

// collector gathers verdicts from queue workers.
type collector struct {
	mu      sync.Mutex
	results []fileVerdict
}

func (c *collector) handle(job async.Job, v entity.VerificationVerdict) {
	c.mu.Lock()
	c.results = append(c.results, fileVerdict{File: job.Name, Verdict: v})
	c.mu.Unlock()
}

func (a *app) newQueue(e *env, workers, size int, onDone async.ResultHandler) *async.ProcessorQueue {
	return async.NewProcessorQueue(e.proc, a.logger.With("component", "queue"),
		async.WithWorkers(workers),
		async.WithQueueSize(size),
		async.WithProcessTimeout(a.cfg.OCR.Timeout+30*time.Second),
		async.WithResultHandler(onDone),
	)
}

func batchCmd(a *app) *cobra.Command {
	var (
		workers    int
		queueSize  int
		skipHidden bool
	)
	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Verify every prescription image under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer e.Close(a.logger)

			var col collector
			q := a.newQueue(e, workers, queueSize, col.handle)
			in := ingest.NewFSIngestor(a.logger, a.cfg.Server.MaxUploadBytes)
			stats, scanErr := in.ScanDirectory(ctx, args[0], skipHidden, func(it ingest.Item) error {
				if it.Deduplicated {
					return nil
				}
				return q.Enqueue(ctx, async.NewJob(it.SourcePath, it.Image))
			})
			q.Shutdown(context.WithoutCancel(ctx))
			if scanErr != nil {
				return scanErr
			}

			sum := batchSummary{
				Scanned:      stats.Scanned,
				Matched:      stats.Matched,
				Deduplicated: stats.Deduplicated,
				Failed:       stats.Failed,
				ByStatus:     map[string]int{},
				Results:      col.results,
			}
			sort.Slice(sum.Results, func(i, j int) bool { return sum.Results[i].File < sum.Results[j].File })
			for _, r := range col.results {
				sum.ByStatus[string(r.Verdict.Status)]++
			}
			return writeOutput(cmd.OutOrStdout(), a.format, sum)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent verifications")
	cmd.Flags().IntVar(&queueSize, "queue-size", 64, "images buffered ahead of the workers")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "ignore dot-files and dot-directories")
	return cmd
}

func watchCmd(a *app) *cobra.Command {
	var (
		workers     int
		initialScan bool
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch DIR...",
		Short: "Verify prescription images as they appear in watched directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			e, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer e.Close(a.logger)

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			q := a.newQueue(e, workers, 16, func(job async.Job, v entity.VerificationVerdict) {
				mu.Lock()
				defer mu.Unlock()
				if err := writeOutput(out, a.format, fileVerdict{File: job.Name, Verdict: v}); err != nil {
					a.logger.Error("write result", "job", job.Name, "error", err)
				}
			})
			defer q.Shutdown(context.WithoutCancel(ctx))

			paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
				Roots:       args,
				InitialScan: initialScan,
				Debounce:    debounce,
				Logger:      a.logger.With("component", "watcher"),
			})
			if err != nil {
				return err
			}

			in := ingest.NewFSIngestor(a.logger, a.cfg.Server.MaxUploadBytes)
			return watchLoop(ctx, a.logger, paths, errs, func(p string) error {
				it, err := in.ReadPath(ctx, p)
				if err != nil {
					a.logger.Warn("skip file", "path", p, "error", err)
					return nil
				}
				if it.Deduplicated {
					return nil
				}
				if err := q.Enqueue(ctx, async.NewJob(it.SourcePath, it.Image)); err != nil {
					return fmt.Errorf("enqueue %s: %w", it.SourcePath, err)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent verifications")
	cmd.Flags().BoolVar(&initialScan, "initial-scan", false, "verify files already present")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "coalesce rapid file events")
	return cmd
}

// watchLoop hands each watched path to handle until paths is closed, ctx is
// done or handle fails. Watcher errors are logged only.
func watchLoop(ctx context.Context, logger *slog.Logger, paths <-chan string, errs <-chan error, handle func(string) error) error {
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			if err := handle(p); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				// a closed channel is always ready; stop selecting on it
				errs = nil
				continue
			}
			logger.Warn("watcher error", "error", err)
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		}
	}
}
