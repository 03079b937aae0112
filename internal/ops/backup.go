package ops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupManager copies the seen-items database to timestamped backup
// files. Only meaningful for the sqlite driver; the database is small
// enough that a plain file copy is safe between mutations.
type BackupManager struct {
	dbPath string
	logger *Logger
}

// NewBackupManager creates a backup manager for the given database path
func NewBackupManager(dbPath string, logger *Logger) *BackupManager {
	if logger == nil {
		logger = Default()
	}
	return &BackupManager{
		dbPath: dbPath,
		logger: logger.WithComponent("backup"),
	}
}

// Backup copies the database to destPath. If destPath is a directory,
// a timestamped filename is generated inside it.
func (b *BackupManager) Backup(destPath string) error {
	if info, err := os.Stat(destPath); err == nil && info.IsDir() {
		name := fmt.Sprintf("picrate-%s.db.bak", time.Now().Format("20060102-150405"))
		destPath = filepath.Join(destPath, name)
	}

	size, err := b.copyFile(b.dbPath, destPath)
	if err != nil {
		b.logger.Error("backup failed", "dest", destPath, "error", err)
		return fmt.Errorf("failed to back up database: %w", err)
	}

	b.logger.Info("backup completed", "dest", destPath, "size_bytes", size)
	return nil
}

// Restore copies a backup file over the database path. The caller
// must ensure nothing holds the database open.
func (b *BackupManager) Restore(backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not accessible: %w", err)
	}

	size, err := b.copyFile(backupPath, b.dbPath)
	if err != nil {
		b.logger.Error("restore failed", "source", backupPath, "error", err)
		return fmt.Errorf("failed to restore database: %w", err)
	}

	b.logger.Info("restore completed", "source", backupPath, "size_bytes", size)
	return nil
}

func (b *BackupManager) copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, in)
	if err != nil {
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	if err := out.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync destination: %w", err)
	}

	return size, nil
}

// CleanOldBackups removes backup files older than maxAge from a directory
func CleanOldBackups(backupDir string, maxAge time.Duration, logger *Logger) error {
	if logger == nil {
		logger = Default()
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !isBackupFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			path := filepath.Join(backupDir, entry.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to remove old backup", "path", path, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Info("old backups removed", "count", removed)
	}
	return nil
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, "picrate-") && strings.HasSuffix(name, ".db.bak")
}
