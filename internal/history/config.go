package history

import (
	"path/filepath"

	"codeberg.org/mutker/socpowerd/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/socpowerd/history.db"
	backupSubdir   = "backups"
)

type Config struct {
	DBPath string
	// BackupDir receives a copy of the database before a schema change.
	// Empty means a backups directory next to DBPath.
	BackupDir string
	// Samples buffered before a write; 0 writes through.
	BatchSize int
	// Seconds between forced flushes; 0 disables the timer.
	BatchTimeout int
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:  defaultDBPath,
		Enabled: false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "history batching must not be negative")
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupSubdir)
}
