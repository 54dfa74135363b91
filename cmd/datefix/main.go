package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/acm19/datefix/internal/datefix"
	"github.com/acm19/datefix/internal/logger"
	"github.com/barasher/go-exiftool"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "datefix",
	Short:   "Recover date-taken metadata for chat-app photos and videos",
	Long:    `Datefix restores the capture date of media files whose timestamp was lost in transfer through WhatsApp, Snapchat or Instagram, using the date encoded in their filenames.`,
	Version: version,
}

var fixCmd = &cobra.Command{
	Use:   "fix DIRECTORY",
	Short: "Write recovered dates into file metadata",
	Long:  `Extracts the date from each recognised filename and writes it into the file's EXIF or container metadata. Unless --override is set, every file is backed up and the backup verified before it is touched.`,
	Args:  cobra.ExactArgs(1),
	Run:   runFix,
}

var scanCmd = &cobra.Command{
	Use:   "scan DIRECTORY",
	Short: "Dry run: report which files would be updated",
	Long:  `Runs date extraction only and reports what a fix run would do. No file is modified.`,
	Args:  cobra.ExactArgs(1),
	Run:   runScan,
}

var (
	recursive    bool
	override     bool
	backupDir    string
	originsFlag  string
	fallbackDate string
)

func init() {
	for _, cmd := range []*cobra.Command{fixCmd, scanCmd} {
		cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Process subdirectories recursively")
		cmd.Flags().StringVar(&originsFlag, "origins", "", "Comma-separated origins to consider (whatsapp,snapchat,instagram); default all")
		cmd.Flags().StringVar(&fallbackDate, "date", "", "Date (YYYY-MM-DD) for matched files whose name carries no date, e.g. Snapchat")
	}

	fixCmd.Flags().BoolVar(&override, "override", false, "Modify files in place without creating a backup")
	fixCmd.Flags().StringVar(&backupDir, "backup-dir", "", "Backup root directory (default: DIRECTORY_backup)")

	rootCmd.AddCommand(fixCmd, scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFix(cmd *cobra.Command, args []string) {
	directory := args[0]

	opts, err := resolveOptions()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	opts.Override = override
	if !override {
		opts.BackupDir = backupDir
		if opts.BackupDir == "" {
			opts.BackupDir = defaultBackupDir(directory)
		}
		logger.Info("Backups enabled", "backup_dir", opts.BackupDir)
	} else {
		logger.Warn("Override mode: originals will be modified without a backup")
	}

	et, err := exiftool.NewExiftool()
	if err != nil {
		logger.Error("Failed to initialise exiftool", "error", err)
		os.Exit(1)
	}
	defer et.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting fix run", "directory", directory, "recursive", opts.Recursive, "override", opts.Override)
	walker := datefix.NewBatchWalker(et)
	summary, err := walker.Run(ctx, directory, opts)
	if err != nil {
		logger.Error("Run aborted", "error", err)
		reportSummary(summary)
		os.Exit(1)
	}

	reportSummary(summary)
	if summary.Failed() {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, args []string) {
	directory := args[0]

	opts, err := resolveOptions()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	walker := datefix.NewBatchWalkerWithWriter(nil)
	summary, err := walker.Scan(ctx, directory, opts)
	if err != nil {
		logger.Error("Scan aborted", "error", err)
		os.Exit(1)
	}

	logger.Info("Scan complete",
		"total", summary.Total,
		"would_update", summary.Counts[datefix.Updated],
		"no_date_match", summary.Counts[datefix.SkippedNoDateMatch],
		"unsupported", summary.Counts[datefix.SkippedUnsupportedFormat])
}

// resolveOptions builds the core Options from the shared flags.
func resolveOptions() (datefix.Options, error) {
	opts := datefix.DefaultOptions()
	opts.Recursive = recursive

	if originsFlag != "" {
		origins, err := parseOrigins(originsFlag)
		if err != nil {
			return opts, err
		}
		opts.Origins = origins
	}

	if fallbackDate != "" {
		date, err := time.ParseInLocation("2006-01-02", fallbackDate, time.Local)
		if err != nil {
			return opts, fmt.Errorf("invalid --date (expected YYYY-MM-DD): %s", fallbackDate)
		}
		opts.FallbackDate = date
	}

	return opts, nil
}

// parseOrigins parses a comma-separated origin list.
func parseOrigins(s string) ([]datefix.Origin, error) {
	var origins []datefix.Origin
	for _, part := range strings.Split(s, ",") {
		origin, err := datefix.ParseOrigin(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		origins = append(origins, origin)
	}
	return origins, nil
}

// defaultBackupDir picks DIRECTORY_backup, suffixing (N) until unused so an
// existing backup from a previous run is never overwritten.
func defaultBackupDir(directory string) string {
	base := strings.TrimSuffix(directory, string(os.PathSeparator)) + "_backup"
	candidate := base
	for counter := 1; ; counter++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s(%d)", base, counter)
	}
}

// reportSummary logs the per-outcome counts and names every failed file.
func reportSummary(summary datefix.Summary) {
	logger.Info("Run complete",
		"total", summary.Total,
		"updated", summary.Counts[datefix.Updated],
		"no_date_match", summary.Counts[datefix.SkippedNoDateMatch],
		"unsupported", summary.Counts[datefix.SkippedUnsupportedFormat],
		"backup_mismatch", summary.Counts[datefix.FailedBackupMismatch],
		"write_errors", summary.Counts[datefix.FailedWriteError])

	for _, failure := range summary.Failures {
		logger.Error("File failed", "file", failure.Path, "reason", failure.Reason)
	}
}
