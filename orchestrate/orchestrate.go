// Package orchestrate batches
// the FOV range, run Copy sequentially per batch (the external reader
// is not thread-safe), fan the batch's remaining stages out across a
// worker pool, and merge each worker's catalog back into the parent
// after every batch.
package orchestrate

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/catalog"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/pyamaerr"
	"github.com/pyama-io/pyama/stage"
)

// Options configures one run_complete_workflow call.
type Options struct {
	FOVStart, FOVEnd int // inclusive
	BatchSize        int
	NWorkers         int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.NWorkers <= 0 {
		o.NWorkers = 1
	}
	return o
}

// fovRange is a contiguous, inclusive sub-range of FOV indices.
type fovRange struct{ start, end int }

// batches partitions [start,end] into contiguous ranges of size at
// most batchSize.
func batches(start, end, batchSize int) []fovRange {
	var out []fovRange
	for s := start; s <= end; s += batchSize {
		e := s + batchSize - 1
		if e > end {
			e = end
		}
		out = append(out, fovRange{s, e})
	}
	return out
}

// workerRanges splits a batch into up to nWorkers contiguous
// sub-ranges, as even as possible with the remainder given to the
// earliest workers.
func workerRanges(b fovRange, nWorkers int) []fovRange {
	total := b.end - b.start + 1
	if nWorkers > total {
		nWorkers = total
	}
	base := total / nWorkers
	rem := total % nWorkers

	out := make([]fovRange, 0, nWorkers)
	cur := b.start
	for w := 0; w < nWorkers; w++ {
		size := base
		if w < rem {
			size++
		}
		if size == 0 {
			continue
		}
		out = append(out, fovRange{cur, cur + size - 1})
		cur += size
	}
	return out
}

// Run implements run_complete_workflow: it validates the requested FOV
// range (fov_start defaults to the first FOV when negative; fov_end
// must name an in-range FOV, not a sentinel to clamp), then schedules
// batches of Copy (sequential) followed by a parallel
// Segment→BackgroundCorrect→Track→Extract sweep per worker sub-range,
// merging catalogs and persisting the result to disk between batches.
// It returns true iff every FOV in the range completed Extract.
func Run(svc stage.Services, cat *catalog.Catalog, outputDir string, opts Options, tok cancel.Token, rep progress.Reporter) (bool, error) {
	opts = opts.withDefaults()

	nFOVs := svc.Source.Metadata().NFOVs
	start, end := opts.FOVStart, opts.FOVEnd
	if start < 0 {
		start = 0
	}
	if end >= nFOVs {
		return false, fmt.Errorf("orchestrate: %w: fov_end %d out of range, must be < n_fovs (%d)", pyamaerr.ErrInvalidRange, end, nFOVs)
	}
	if start > end {
		return false, fmt.Errorf("orchestrate: %w: fov range [%d,%d] is empty or inverted", pyamaerr.ErrInvalidRange, start, end)
	}

	completed := map[int]bool{}
	catalogPath := catalogYAMLPath(outputDir)

	for _, batch := range batches(start, end, opts.BatchSize) {
		if cancel.Fired(tok) {
			log.Info("workflow cancelled, stopping before next batch", "fov_start", batch.start, "fov_end", batch.end)
			return finish(completed, start, end), nil
		}

		log.Info("batch start", "fov_start", batch.start, "fov_end", batch.end, "workers", opts.NWorkers)

		if err := svc.CopyAllFOVs(cat, outputDir, batch.start, batch.end, tok, rep); err != nil {
			if !pyamaerr.IsCancelled(err) {
				log.Error("batch copy failed", "fov_start", batch.start, "fov_end", batch.end, "err", err)
				return false, err
			}
			return finish(completed, start, end), nil
		}

		results := runWorkers(svc, cat, outputDir, workerRanges(batch, opts.NWorkers), tok, rep)
		for _, r := range results {
			cat.Merge(r.catalog)
			for fov := range r.completed {
				completed[fov] = true
			}
		}

		if err := cat.Save(catalogPath); err != nil {
			log.Error("catalog save failed", "path", catalogPath, "err", err)
			return false, err
		}
		log.Info("batch complete", "fov_start", batch.start, "fov_end", batch.end, "catalog", catalogPath)

		if cancel.Fired(tok) {
			log.Info("workflow cancelled after batch", "fov_start", batch.start, "fov_end", batch.end)
			return finish(completed, start, end), nil
		}
	}

	ok := finish(completed, start, end)
	log.Info("workflow finished", "fov_start", start, "fov_end", end, "success", ok)
	return ok, nil
}

func catalogYAMLPath(outputDir string) string {
	return filepath.Join(outputDir, "processing_results.yaml")
}

func finish(completed map[int]bool, start, end int) bool {
	for f := start; f <= end; f++ {
		if !completed[f] {
			return false
		}
	}
	return true
}

type workerResult struct {
	catalog   *catalog.Catalog
	completed map[int]bool
}

// runWorkers fans sub-ranges out across a fixed goroutine pool: a
// buffered work channel, a pool of size len(ranges) draining it, and
// a WaitGroup gating the results channel's close. Each worker mutates
// its own catalog clone; a worker that errors on some FOV still
// returns the partial progress it made on the rest of its sub-range.
func runWorkers(svc stage.Services, cat *catalog.Catalog, outputDir string, ranges []fovRange, tok cancel.Token, rep progress.Reporter) []workerResult {
	work := make(chan fovRange, len(ranges))
	for _, r := range ranges {
		work <- r
	}
	close(work)

	results := make(chan workerResult, len(ranges))
	var wg sync.WaitGroup
	for w := 0; w < len(ranges); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range work {
				results <- runWorkerRange(svc, cat, outputDir, r, tok, rep)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]workerResult, 0, len(ranges))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// runWorkerRange executes Segment→BackgroundCorrect→Track→Extract, in
// order, for every FOV in r, against a private catalog clone so the
// worker shares no mutable state with its siblings: each worker
// operates on a disjoint FOV range and mutates only its own clone.
func runWorkerRange(svc stage.Services, parent *catalog.Catalog, outputDir string, r fovRange, tok cancel.Token, rep progress.Reporter) workerResult {
	local := parent.Clone()
	completed := map[int]bool{}

	log.Info("worker start", "fov_start", r.start, "fov_end", r.end)
	for fov := r.start; fov <= r.end; fov++ {
		if cancel.Fired(tok) {
			break
		}
		if err := runFOVStages(svc, local, outputDir, fov, tok, rep); err != nil {
			if pyamaerr.IsCancelled(err) {
				log.Debug("fov processing cancelled", "fov", fov)
				break
			}
			log.Error("fov processing failed", "fov", fov, "err", err)
			continue
		}
		completed[fov] = true
	}

	log.Info("worker done", "fov_start", r.start, "fov_end", r.end, "completed", len(completed))
	return workerResult{catalog: local, completed: completed}
}

func runFOVStages(svc stage.Services, cat *catalog.Catalog, outputDir string, fov int, tok cancel.Token, rep progress.Reporter) error {
	if err := svc.Segment(cat, outputDir, fov, tok, rep); err != nil {
		return err
	}
	if err := svc.BackgroundCorrect(cat, outputDir, fov, tok, rep); err != nil {
		return err
	}
	if err := svc.Track(cat, outputDir, fov, tok, rep); err != nil {
		return err
	}
	if err := svc.Extract(cat, outputDir, fov, tok, rep); err != nil {
		return err
	}
	return nil
}
