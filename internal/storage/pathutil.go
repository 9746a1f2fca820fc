package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/types"
)

// StampLayout formats file timestamps with one-second granularity. Names
// built with it sort lexicographically in chronological order.
const StampLayout = "20060102_150405"

// Stamp formats t for use in capture file names.
func Stamp(t time.Time) string {
	return t.Format(StampLayout)
}

// SnapshotName returns "{prefix}-{category}-{stamp}.json".
func SnapshotName(prefix string, category types.Category, stamp string) string {
	return fmt.Sprintf("%s-%s-%s.json", prefix, category, stamp)
}

// CaptureLogName returns "{prefix}-{category}-{stamp}.jsonl".
func CaptureLogName(prefix string, category types.Category, stamp string) string {
	return fmt.Sprintf("%s-%s-%s.jsonl", prefix, category, stamp)
}

// CaptureGlobs returns the glob patterns matching every capture file.
func CaptureGlobs(prefix string) []string {
	return []string{prefix + "-*.json", prefix + "-*.jsonl"}
}

// StripQuery drops everything from the first '?' on.
func StripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
