package analyze

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Record is one captured request as read back from disk. Files may come
// from older capture versions, so records stay untyped.
type Record map[string]any

// LoadError describes a file (or a line of a JSON Lines file) that could not
// be read.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadFiles lists the files under dir matching any of patterns, newest
// first. Capture file names embed a sortable timestamp, so reverse
// lexicographic order is reverse chronological. No match is not an error.
func LoadFiles(dir string, patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// LoadAndMerge reads every file and concatenates the records. A JSON array
// contributes its elements, any other JSON value one record, and a .jsonl
// file one record per non-empty line. Failures are collected and the rest of
// the batch still loads.
func LoadAndMerge(paths []string) ([]Record, []*LoadError) {
	var (
		records []Record
		errs    []*LoadError
	)
	for _, path := range paths {
		var (
			recs    []Record
			fileErr []*LoadError
		)
		if strings.HasSuffix(path, ".jsonl") {
			recs, fileErr = loadJSONLines(path)
		} else {
			recs, fileErr = loadJSON(path)
		}
		records = append(records, recs...)
		errs = append(errs, fileErr...)
	}
	return records, errs
}

func loadJSON(path string) ([]Record, []*LoadError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*LoadError{{Path: path, Err: err}}
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, []*LoadError{{Path: path, Err: err}}
	}

	if list, ok := value.([]any); ok {
		out := make([]Record, 0, len(list))
		for _, item := range list {
			out = append(out, toRecord(item))
		}
		return out, nil
	}
	return []Record{toRecord(value)}, nil
}

func loadJSONLines(path string) ([]Record, []*LoadError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, []*LoadError{{Path: path, Err: err}}
	}
	defer func() { _ = f.Close() }()

	var (
		out  []Record
		errs []*LoadError
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			errs = append(errs, &LoadError{Path: path, Line: line, Err: err})
			continue
		}
		out = append(out, toRecord(value))
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, &LoadError{Path: path, Line: line + 1, Err: err})
	}
	return out, errs
}

// toRecord keeps objects as they are and wraps any other JSON value so it
// still counts as one record.
func toRecord(v any) Record {
	if m, ok := v.(map[string]any); ok {
		return Record(m)
	}
	return Record{"value": v}
}
