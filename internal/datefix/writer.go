package datefix

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/acm19/datefix/internal/logger"
	"github.com/barasher/go-exiftool"
	"github.com/gabriel-vasile/mimetype"
)

const (
	// exifDateLayout is the EXIF date/time string format.
	exifDateLayout = "2006:01:02 15:04:05"
	// containerDateLayout is the format ffmpeg expects for creation_time.
	containerDateLayout = "2006-01-02T15:04:05"
)

// ErrUnsupportedFormat is returned when no writer handles a file's format.
// The file is left untouched.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Writer is the capability the batch walker depends on.
type Writer interface {
	// Write stores the date in the file's metadata. Returns
	// ErrUnsupportedFormat when no writer family handles the file.
	Write(filePath string, date time.Time) error
}

// MetadataWriter is one writer family (image or video).
type MetadataWriter interface {
	// CanHandle reports whether this writer handles the file, based on its
	// extension confirmed by content sniffing.
	CanHandle(filePath string) bool
	// Write stores the date in the file's metadata. The update is targeted:
	// all other metadata fields are preserved.
	Write(filePath string, date time.Time) error
}

// imageWriter updates EXIF date tags via the exiftool binary and verifies
// the result by reading the tags back.
type imageWriter struct {
	et           *exiftool.Exiftool
	exiftoolPath string
	extensions   Extensions
}

func newImageWriter(et *exiftool.Exiftool, exiftoolPath string) *imageWriter {
	if exiftoolPath == "" {
		exiftoolPath = "exiftool"
	}
	return &imageWriter{
		et:           et,
		exiftoolPath: exiftoolPath,
		extensions:   NewExtensions(),
	}
}

func (w *imageWriter) CanHandle(filePath string) bool {
	return w.extensions.IsImage(filePath) && sniffHasPrefix(filePath, "image/")
}

// Write sets DateTimeOriginal, CreateDate and ModifyDate to the given date.
// -overwrite_original prevents exiftool's own backup copies, -P preserves
// the file modification time for the caller to set explicitly.
func (w *imageWriter) Write(filePath string, date time.Time) error {
	formatted := date.Format(exifDateLayout)
	cmd := exec.Command(w.exiftoolPath,
		"-DateTimeOriginal="+formatted,
		"-CreateDate="+formatted,
		"-ModifyDate="+formatted,
		"-overwrite_original",
		"-P",
		filePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("exiftool write failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	if err := w.verify(filePath, date); err != nil {
		return err
	}

	logger.Debug("Wrote EXIF date tags", "file", filepath.Base(filePath), "date", formatted)
	return nil
}

// verify reads DateTimeOriginal back and confirms the calendar date matches.
func (w *imageWriter) verify(filePath string, date time.Time) error {
	if w.et == nil {
		return fmt.Errorf("exiftool not initialised")
	}

	fileInfos := w.et.ExtractMetadata(filePath)
	if len(fileInfos) == 0 {
		return fmt.Errorf("no metadata found after write")
	}
	fileInfo := fileInfos[0]
	if fileInfo.Err != nil {
		return fmt.Errorf("failed to read metadata after write: %w", fileInfo.Err)
	}

	val, err := fileInfo.GetString("DateTimeOriginal")
	if err != nil {
		return fmt.Errorf("DateTimeOriginal missing after write: %w", err)
	}
	written, err := time.ParseInLocation(exifDateLayout, val, time.Local)
	if err != nil {
		return fmt.Errorf("unparseable DateTimeOriginal after write: %q", val)
	}
	wy, wm, wd := written.Date()
	dy, dm, dd := date.Date()
	if wy != dy || wm != dm || wd != dd {
		return fmt.Errorf("date read-back mismatch: wrote %s, read %s", date.Format(exifDateLayout), val)
	}
	return nil
}

// videoWriter updates the container creation_time via an ffmpeg stream-copy
// remux into a temporary file that replaces the original on success.
type videoWriter struct {
	ffmpegPath string
	extensions Extensions
}

func newVideoWriter(ffmpegPath string) *videoWriter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &videoWriter{
		ffmpegPath: ffmpegPath,
		extensions: NewExtensions(),
	}
}

func (w *videoWriter) CanHandle(filePath string) bool {
	return w.extensions.IsVideo(filePath) && sniffHasPrefix(filePath, "video/")
}

// Write remuxes the container with creation_time set. Streams are copied,
// not re-encoded, so every other stream and tag survives unchanged.
func (w *videoWriter) Write(filePath string, date time.Time) error {
	ext := filepath.Ext(filePath)
	tmpPath := strings.TrimSuffix(filePath, ext) + "_datefix_tmp" + ext

	cmd := exec.Command(w.ffmpegPath,
		"-y",
		"-i", filePath,
		"-c", "copy",
		"-metadata", "creation_time="+date.Format(containerDateLayout),
		tmpPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg remux failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace original with remuxed file: %w", err)
	}

	logger.Debug("Wrote container creation_time", "file", filepath.Base(filePath), "date", date.Format(containerDateLayout))
	return nil
}

// sniffHasPrefix confirms the file content's MIME type family. Extension
// alone is not trusted: a text file renamed to .jpg must not be rewritten.
func sniffHasPrefix(filePath string, prefix string) bool {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		logger.Debug("Content sniffing failed", "file", filepath.Base(filePath), "error", err)
		return false
	}
	return strings.HasPrefix(mtype.String(), prefix)
}

// WriterRegistry dispatches to the first writer family that handles a file.
type WriterRegistry struct {
	writers []MetadataWriter
}

// NewWriterRegistry creates a registry with the image and video writers.
// et is used for post-write verification of image tags.
func NewWriterRegistry(et *exiftool.Exiftool) *WriterRegistry {
	return NewWriterRegistryWithPaths(et, "", "")
}

// NewWriterRegistryWithPaths creates a registry with custom binary paths.
func NewWriterRegistryWithPaths(et *exiftool.Exiftool, exiftoolPath, ffmpegPath string) *WriterRegistry {
	return &WriterRegistry{
		writers: []MetadataWriter{
			newImageWriter(et, exiftoolPath),
			newVideoWriter(ffmpegPath),
		},
	}
}

// Write dispatches to the first capable writer, then sets the filesystem
// modification time to the resolved date as a secondary best-effort step.
func (r *WriterRegistry) Write(filePath string, date time.Time) error {
	for _, w := range r.writers {
		if !w.CanHandle(filePath) {
			continue
		}
		if err := w.Write(filePath, date); err != nil {
			return err
		}
		if err := os.Chtimes(filePath, date, date); err != nil {
			logger.Warn("Failed to set filesystem timestamp", "file", filePath, "error", err)
		}
		return nil
	}
	return ErrUnsupportedFormat
}
