package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dgnsrekt/copilot_capture/internal/analyze"
	"github.com/dgnsrekt/copilot_capture/internal/config"
	"github.com/dgnsrekt/copilot_capture/internal/storage"
)

func main() {
	filter := flag.String("filter", "", "only count records whose JSON contains this text (case-insensitive)")
	file := flag.String("file", "", "analyze a single capture file")
	dir := flag.String("dir", "", "directory of capture files (default CAPTURE_OUTPUT_DIR or temp)")
	flag.Parse()

	if *dir == "" {
		*dir = config.AnalyzeDir()
	}
	if err := run(os.Stdout, os.Stderr, *filter, *file, *dir); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(stdout, stderr io.Writer, filter, file, dir string) error {
	var paths []string
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("file not found: %s", file)
		}
		paths = []string{file}
	} else {
		found, err := analyze.LoadFiles(dir, storage.CaptureGlobs(config.FilePrefix)...)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.New("no captured files found in " + filepath.Clean(dir) + "/")
		}
		_, _ = fmt.Fprintf(stdout, "Found %d captured files\n", len(found))
		paths = found
	}

	records, loadErrs := analyze.LoadAndMerge(paths)
	analyze.RenderLoadErrors(stderr, loadErrs)
	_, _ = fmt.Fprintf(stdout, "Loaded %d requests from %d files\n", len(records), len(paths)-countFailedFiles(loadErrs))
	analyze.Render(stdout, analyze.Analyze(records, filter))
	return nil
}

// countFailedFiles counts files that failed as a whole. Line errors in a
// JSON Lines file leave the rest of the file loaded.
func countFailedFiles(errs []*analyze.LoadError) int {
	n := 0
	for _, e := range errs {
		if e.Line == 0 {
			n++
		}
	}
	return n
}
