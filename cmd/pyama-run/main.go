// Command pyama-run drives the Copy→Segment→BackgroundCorrect→Track→
// Extract pipeline over a range of fields of view, batched and
// parallelized by the orchestrator.
//
// Usage:
//
//	pyama-run --input <dir> --output <dir> [options]
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/pyama-io/pyama/background"
	"github.com/pyama-io/pyama/binarize"
	"github.com/pyama-io/pyama/cancel"
	"github.com/pyama-io/pyama/catalog"
	"github.com/pyama-io/pyama/channelsel"
	"github.com/pyama-io/pyama/internal/rawsource"
	"github.com/pyama-io/pyama/orchestrate"
	"github.com/pyama-io/pyama/progress"
	"github.com/pyama-io/pyama/stage"
	"github.com/pyama-io/pyama/track"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		charmlog.Error("pyama-run failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("pyama-run", pflag.ContinueOnError)

	input := flags.StringP("input", "i", "", "directory of raw .pfs stacks + metadata.yaml (required)")
	output := flags.StringP("output", "o", "", "directory to write per-FOV artifacts and the catalog into (required)")
	fovStart := flags.Int("fov-start", 0, "first FOV to process, inclusive")
	fovEnd := flags.Int("fov-end", -1, "last FOV to process, inclusive (-1 = last available FOV)")
	batchSize := flags.Int("batch-size", 4, "FOVs processed per batch before the catalog is persisted")
	workers := flags.IntP("workers", "w", 4, "worker goroutines per batch")
	timeUnits := flags.String("time-units", "frame", "time unit of the traces' time column, recorded as the catalog's time_units")
	pcChannel := flags.Int("pc-channel", -1, "phase-contrast channel index, or -1 if none")
	flChannels := flags.IntSlice("fl-channels", nil, "fluorescence channel indices, comma-separated")
	binAlgo := flags.String("binarizer", "logstd", fmt.Sprintf("binarization algorithm (%s)", strings.Join(binarize.Names(), ", ")))
	bgAlgo := flags.String("background", "schwarzfischer", fmt.Sprintf("background correction algorithm (%s)", strings.Join(background.Names(), ", ")))
	trackAlgo := flags.String("tracker", "bbox-overlap", fmt.Sprintf("cell tracking algorithm (%s)", strings.Join(track.Names(), ", ")))
	verbose := flags.BoolP("verbose", "v", false, "debug-level logging")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *verbose {
		charmlog.SetLevel(charmlog.DebugLevel)
	}
	if *input == "" || *output == "" {
		return fmt.Errorf("pyama-run: --input and --output are required")
	}

	src, err := rawsource.Open(*input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}

	binarizer, ok := binarize.Lookup(*binAlgo)
	if !ok {
		return fmt.Errorf("pyama-run: unknown -binarizer %q (have: %s)", *binAlgo, strings.Join(binarize.Names(), ", "))
	}
	corrector, ok := background.Lookup(*bgAlgo)
	if !ok {
		return fmt.Errorf("pyama-run: unknown -background %q (have: %s)", *bgAlgo, strings.Join(background.Names(), ", "))
	}
	tracker, ok := track.Lookup(*trackAlgo)
	if !ok {
		return fmt.Errorf("pyama-run: unknown -tracker %q (have: %s)", *trackAlgo, strings.Join(track.Names(), ", "))
	}

	sel := channelsel.Selection{PC: *pcChannel, FL: *flChannels}
	if err := sel.Validate(src.Metadata().NChannels); err != nil {
		return fmt.Errorf("channel selection: %w", err)
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	svc := stage.Services{
		Source:     src,
		Selection:  sel,
		Binarizer:  binarizer,
		Background: corrector,
		Tracker:    tracker,
		TrackOpts:  track.DefaultOptions(),
	}

	cat := loadOrCreateCatalog(*output)
	if cat.TimeUnits == "" {
		cat.TimeUnits = *timeUnits
	}

	tok, cancelFn := installSignalCancellation()
	defer cancelFn()

	rep := progress.Coarse(loggingReporter, 10)

	opts := orchestrate.Options{
		FOVStart:  *fovStart,
		FOVEnd:    resolveFOVEnd(*fovEnd, src.Metadata().NFOVs),
		BatchSize: *batchSize,
		NWorkers:  *workers,
	}

	ok, err = orchestrate.Run(svc, cat, *output, opts, tok, rep)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pyama-run: workflow did not complete every requested FOV (cancelled or partial failure)")
	}
	return nil
}

func resolveFOVEnd(requested, nFOVs int) int {
	if requested < 0 {
		return nFOVs - 1
	}
	return requested
}

func loadOrCreateCatalog(outputDir string) *catalog.Catalog {
	path := filepath.Join(outputDir, "processing_results.yaml")
	if cat, err := catalog.Load(path); err == nil {
		charmlog.Info("resuming from existing catalog", "path", path)
		return cat
	}
	return catalog.New(outputDir)
}

func loggingReporter(ev progress.Event) {
	charmlog.Info("progress", "stage", ev.Stage, "fov", ev.FOV, "t", ev.T, "T", ev.NFrames, "message", ev.Message)
}

// installSignalCancellation wires SIGINT/SIGTERM to the orchestrator's
// cooperative cancellation token, so an operator can Ctrl-C a long run
// and still get a persisted partial catalog instead of a truncated file.
func installSignalCancellation() (cancel.Token, func()) {
	src := cancel.New()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sig; ok {
			charmlog.Warn("signal received, finishing in-flight work and stopping")
			src.Cancel()
		}
	}()
	return src.Token(), func() { signal.Stop(sig); close(sig) }
}
