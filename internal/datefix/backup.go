package datefix

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/acm19/datefix/internal/logger"
)

// ErrBackupMismatch is returned by Verify when the backup copy does not
// match the original byte for byte.
var ErrBackupMismatch = errors.New("backup does not match original")

// BackupRecord pairs an original file with its verified backup copy.
// A record is created immediately before mutation and never reused.
type BackupRecord struct {
	// OriginalPath is the file that is about to be mutated.
	OriginalPath string
	// BackupPath is where the copy was written.
	BackupPath string
	// OriginalChecksum is the MD5 of the original at protection time.
	OriginalChecksum string
	// BackupChecksum is the MD5 of the backup at protection time.
	BackupChecksum string
	// OriginalSize is the original's size in bytes.
	OriginalSize int64
	// BackupSize is the backup's size in bytes.
	BackupSize int64
}

// BackupGuard defines the interface for protecting files before mutation.
type BackupGuard interface {
	// Protect copies the file into the backup root, mirroring its location
	// relative to the source directory, and records checksums and sizes.
	Protect(filePath string) (*BackupRecord, error)
	// Verify re-reads both files and confirms they are byte-identical.
	// Returns ErrBackupMismatch on any checksum or size difference.
	Verify(rec *BackupRecord) error
}

// backupGuard implements the BackupGuard interface.
type backupGuard struct {
	sourceDir string
	backupDir string
}

// NewBackupGuard creates a guard that mirrors files from sourceDir into
// backupDir. The guard never deletes backups.
func NewBackupGuard(sourceDir, backupDir string) BackupGuard {
	return &backupGuard{
		sourceDir: sourceDir,
		backupDir: backupDir,
	}
}

// Protect copies the file into the backup root and records checksums.
func (g *backupGuard) Protect(filePath string) (*BackupRecord, error) {
	relPath, err := filepath.Rel(g.sourceDir, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve relative path for %s: %w", filePath, err)
	}
	backupPath := filepath.Join(g.backupDir, relPath)

	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := copyFilePreserveTime(filePath, backupPath); err != nil {
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}

	origSum, origSize, err := fileChecksum(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum original: %w", err)
	}
	backupSum, backupSize, err := fileChecksum(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum backup: %w", err)
	}

	logger.Debug("Backup created", "original", filePath, "backup", backupPath, "checksum", origSum)
	return &BackupRecord{
		OriginalPath:     filePath,
		BackupPath:       backupPath,
		OriginalChecksum: origSum,
		BackupChecksum:   backupSum,
		OriginalSize:     origSize,
		BackupSize:       backupSize,
	}, nil
}

// Verify re-reads both files and confirms the backup is byte-identical.
func (g *backupGuard) Verify(rec *BackupRecord) error {
	origSum, origSize, err := fileChecksum(rec.OriginalPath)
	if err != nil {
		return fmt.Errorf("failed to checksum original: %w", err)
	}
	backupSum, backupSize, err := fileChecksum(rec.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to checksum backup: %w", err)
	}

	if origSum != backupSum || origSize != backupSize {
		logger.Error("Backup verification failed", "original", rec.OriginalPath, "backup", rec.BackupPath)
		return ErrBackupMismatch
	}
	return nil
}

// fileChecksum returns the MD5 hex digest and size of a file.
func fileChecksum(filePath string) (string, int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// copyFilePreserveTime copies a file and preserves its modification time.
func copyFilePreserveTime(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}
	if err := dstFile.Close(); err != nil {
		return err
	}

	if err := os.Chtimes(dst, time.Now(), srcInfo.ModTime()); err != nil {
		return err
	}
	return nil
}
