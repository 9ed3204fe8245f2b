package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	cp "github.com/otiai10/copy"
)

// BackupNow copies the database file at dbPath into backupDir, stamped with
// the current time, then prunes older backups beyond retention. It is
// invoked by the daemon's scheduled-backup ticker (spec.md §5) and by the
// admin `/k-metric/backup` trigger.
func BackupNow(dbPath, backupDir string, retention int, now time.Time) (string, error) {
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return "", fmt.Errorf("persist: create backup dir: %w", err)
	}
	dest := filepath.Join(backupDir, fmt.Sprintf("oracle-%s.db", now.UTC().Format("20060102T150405Z")))
	if err := cp.Copy(dbPath, dest); err != nil {
		return "", fmt.Errorf("persist: copy database: %w", err)
	}
	if err := pruneBackups(backupDir, retention); err != nil {
		return dest, err
	}
	return dest, nil
}

func pruneBackups(backupDir string, retention int) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("persist: list backups: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // timestamp-prefixed names sort chronologically
	if len(names) <= retention {
		return nil
	}
	for _, stale := range names[:len(names)-retention] {
		if err := os.Remove(filepath.Join(backupDir, stale)); err != nil {
			return fmt.Errorf("persist: prune backup %s: %w", stale, err)
		}
	}
	return nil
}
