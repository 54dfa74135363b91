package datefix

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/acm19/datefix/internal/logger"
	"github.com/barasher/go-exiftool"
)

// BatchWalker runs the per-file pipeline over a directory: extract a date
// from the filename, protect the file with a verified backup, write the
// date into its metadata, record the outcome. One file's failure never
// aborts the batch.
type BatchWalker struct {
	extensions Extensions
	writer     Writer
}

// NewBatchWalker creates a walker backed by the real metadata writers.
func NewBatchWalker(et *exiftool.Exiftool) *BatchWalker {
	return NewBatchWalkerWithWriter(NewWriterRegistry(et))
}

// NewBatchWalkerWithWriter creates a walker with a custom writer.
func NewBatchWalkerWithWriter(writer Writer) *BatchWalker {
	return &BatchWalker{
		extensions: NewExtensions(),
		writer:     writer,
	}
}

// Run processes every candidate file under dir and returns the aggregated
// summary. Only configuration errors (invalid directory, missing backup
// root) abort the run; per-file errors are recorded and the walk continues.
// Cancellation takes effect at the next file boundary, never mid-file, and
// returns the partial summary along with ctx.Err().
func (w *BatchWalker) Run(ctx context.Context, dir string, opts Options) (Summary, error) {
	summary := NewSummary()

	if err := validateDirectory(dir); err != nil {
		return summary, err
	}
	if !opts.Override && opts.BackupDir == "" {
		return summary, fmt.Errorf("backup directory not configured and override not set")
	}

	files, err := w.enumerate(dir, opts)
	if err != nil {
		return summary, fmt.Errorf("failed to enumerate %s: %w", dir, err)
	}

	extractor := NewFilenameDateExtractor(w.origins(opts), opts.FallbackDate)
	var guard BackupGuard
	if !opts.Override {
		guard = NewBackupGuard(dir, opts.BackupDir)
	}

	for i, filePath := range files {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run cancelled", "processed", i, "total", len(files))
			return summary, err
		}
		emitProgress(opts.ProgressChan, i+1, len(files), filePath)

		result := w.processFile(filePath, extractor, guard)
		summary.Record(result)
		logger.Debug("File processed", "file", filePath, "outcome", result.Outcome.String())
	}

	return summary, nil
}

// Scan is a dry run over the same gates as Run: it reports files that would
// be updated as Updated without touching any file.
func (w *BatchWalker) Scan(ctx context.Context, dir string, opts Options) (Summary, error) {
	summary := NewSummary()

	if err := validateDirectory(dir); err != nil {
		return summary, err
	}

	files, err := w.enumerate(dir, opts)
	if err != nil {
		return summary, fmt.Errorf("failed to enumerate %s: %w", dir, err)
	}

	extractor := NewFilenameDateExtractor(w.origins(opts), opts.FallbackDate)
	for i, filePath := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		emitProgress(opts.ProgressChan, i+1, len(files), filePath)

		if !w.extensions.IsSupported(filePath) {
			summary.Record(Result{Path: filePath, Outcome: SkippedUnsupportedFormat, Reason: "unsupported extension"})
			continue
		}
		match, ok := extractor.Extract(filePath)
		if !ok {
			summary.Record(Result{Path: filePath, Outcome: SkippedNoDateMatch, Reason: "no naming rule matched"})
			continue
		}
		summary.Record(Result{Path: filePath, Origin: match.Origin, Date: match.Date, Outcome: Updated})
	}

	return summary, nil
}

// processFile drives a single file through the pipeline stages. Every error
// is converted into a terminal outcome here; nothing propagates.
func (w *BatchWalker) processFile(filePath string, extractor *FilenameDateExtractor, guard BackupGuard) Result {
	if !w.extensions.IsSupported(filePath) {
		return Result{Path: filePath, Outcome: SkippedUnsupportedFormat, Reason: "unsupported extension"}
	}

	match, ok := extractor.Extract(filePath)
	if !ok {
		return Result{Path: filePath, Outcome: SkippedNoDateMatch, Reason: "no naming rule matched"}
	}
	result := Result{Path: filePath, Origin: match.Origin, Date: match.Date}

	if err := isValidFile(filePath); err != nil {
		result.Outcome = FailedWriteError
		result.Reason = err.Error()
		return result
	}

	if guard != nil {
		rec, err := guard.Protect(filePath)
		if err != nil {
			logger.Error("Backup creation failed, file skipped", "file", filePath, "error", err)
			result.Outcome = FailedWriteError
			result.Reason = fmt.Sprintf("backup creation failed: %v", err)
			return result
		}
		if err := guard.Verify(rec); err != nil {
			if errors.Is(err, ErrBackupMismatch) {
				result.Outcome = FailedBackupMismatch
				result.Reason = fmt.Sprintf("backup mismatch: %s vs %s", rec.OriginalPath, rec.BackupPath)
			} else {
				result.Outcome = FailedWriteError
				result.Reason = fmt.Sprintf("backup verification failed: %v", err)
			}
			return result
		}
	}

	if err := w.writer.Write(filePath, match.Date); err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			result.Outcome = SkippedUnsupportedFormat
			result.Reason = "no metadata writer for this format"
		} else {
			logger.Error("Metadata write failed", "file", filePath, "error", err)
			result.Outcome = FailedWriteError
			result.Reason = err.Error()
		}
		return result
	}

	result.Outcome = Updated
	return result
}

// origins returns the enabled origins, defaulting to all of them.
func (w *BatchWalker) origins(opts Options) []Origin {
	if len(opts.Origins) == 0 {
		return AllOrigins()
	}
	return opts.Origins
}

// enumerate lists candidate files in lexicographic order so repeated runs
// over an unchanged directory produce identical summaries. Dot files and
// dot directories are skipped, as is anything under the backup root.
func (w *BatchWalker) enumerate(dir string, opts Options) ([]string, error) {
	var files []string

	if !opts.Recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
		}
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			// Never enumerate our own backups.
			if opts.BackupDir != "" && path == opts.BackupDir {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// emitProgress sends a progress event without ever blocking the pipeline.
func emitProgress(ch chan<- ProgressEvent, current, total int, filePath string) {
	if ch == nil {
		return
	}
	select {
	case ch <- ProgressEvent{Current: current, Total: total, File: filePath}:
	default:
		logger.Debug("Progress event dropped (channel full)")
	}
}

// validateDirectory checks the run's root directory up front. This is the
// only fatal error path: no file has been touched yet.
func validateDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("not a valid directory: %s", dir)
	}
	return nil
}

// isValidFile checks if a file exists and is not empty (0 bytes).
func isValidFile(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is 0 bytes (corrupted)")
	}
	return nil
}
