package datefix

import (
	"fmt"
	"time"
)

// Origin identifies the application whose naming convention produced a file.
type Origin string

const (
	// OriginWhatsApp covers IMG-YYYYMMDD-WA#### and VID-YYYYMMDD-WA#### names.
	OriginWhatsApp Origin = "whatsapp"
	// OriginSnapchat covers Snapchat-<id> names, which carry no date.
	OriginSnapchat Origin = "snapchat"
	// OriginInstagram covers IMG_YYYYMMDD_HHMMSS_### names.
	OriginInstagram Origin = "instagram"
)

// AllOrigins lists every supported origin in rule priority order.
func AllOrigins() []Origin {
	return []Origin{OriginWhatsApp, OriginInstagram, OriginSnapchat}
}

// ParseOrigin converts a user-supplied string to an Origin.
func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case OriginWhatsApp, OriginSnapchat, OriginInstagram:
		return Origin(s), nil
	}
	return "", fmt.Errorf("unknown origin: %s", s)
}

// Options holds the resolved run configuration. It is populated by the
// calling layer; the core never prompts or parses arguments itself.
type Options struct {
	// Recursive processes the full subtree instead of direct children only.
	Recursive bool
	// Override skips backup creation and writes in place. Irreversible.
	Override bool
	// BackupDir is the root directory backups are mirrored into. Ignored
	// when Override is set. Must be non-empty otherwise.
	BackupDir string
	// Origins restricts which naming conventions are considered.
	// Empty means all supported origins.
	Origins []Origin
	// FallbackDate is applied to matched files whose name carries no date
	// (Snapchat). Zero value means no fallback is available.
	FallbackDate time.Time
	// ProgressChan is an optional channel for receiving progress events.
	ProgressChan chan<- ProgressEvent
}

// DefaultOptions returns the default run configuration.
func DefaultOptions() Options {
	return Options{
		Recursive: false,
		Override:  false,
		Origins:   AllOrigins(),
	}
}

// ProgressEvent represents a progress update during a run.
type ProgressEvent struct {
	// Current is the number of files examined so far.
	Current int
	// Total is the total number of files to examine.
	Total int
	// File is the path of the file currently being processed.
	File string
}

// Outcome classifies the result of processing a single file.
type Outcome int

const (
	// Updated means the recovered date was written into the file.
	Updated Outcome = iota
	// SkippedNoDateMatch means no naming rule matched the file.
	SkippedNoDateMatch
	// SkippedUnsupportedFormat means no writer handles the file's format.
	SkippedUnsupportedFormat
	// FailedBackupMismatch means backup verification failed; the original
	// was not touched.
	FailedBackupMismatch
	// FailedWriteError means backup creation or the metadata write failed.
	FailedWriteError
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case SkippedNoDateMatch:
		return "skipped-no-date-match"
	case SkippedUnsupportedFormat:
		return "skipped-unsupported-format"
	case FailedBackupMismatch:
		return "failed-backup-mismatch"
	case FailedWriteError:
		return "failed-write-error"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome is a failure rather than a skip.
func (o Outcome) Failed() bool {
	return o == FailedBackupMismatch || o == FailedWriteError
}

// Result is the immutable per-file record aggregated into the Summary.
type Result struct {
	// Path is the absolute path of the processed file.
	Path string
	// Origin is the convention that matched, empty if none did.
	Origin Origin
	// Date is the resolved date that was (or would have been) written.
	Date time.Time
	// Outcome classifies what happened.
	Outcome Outcome
	// Reason is a human-readable explanation for skips and failures.
	Reason string
}

// Summary aggregates per-file results for a whole run.
type Summary struct {
	// Counts holds the number of files per outcome kind.
	Counts map[Outcome]int
	// Failures lists failed files in processing order.
	Failures []Result
	// Total is the number of files examined.
	Total int
}

// NewSummary returns an empty Summary.
func NewSummary() Summary {
	return Summary{Counts: make(map[Outcome]int)}
}

// Record adds a per-file result to the summary.
func (s *Summary) Record(r Result) {
	s.Total++
	s.Counts[r.Outcome]++
	if r.Outcome.Failed() {
		s.Failures = append(s.Failures, r)
	}
}

// Failed reports whether any file ended in a failure outcome. The calling
// layer derives its exit status from this.
func (s *Summary) Failed() bool {
	return len(s.Failures) > 0
}
