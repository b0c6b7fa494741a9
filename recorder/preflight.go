package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

const preflightTimeout = 2 * time.Second

// preflight runs a bounded WAL checkpoint plus quick_check before the main
// open path. A database left behind by a crashed session can stall the first
// write for a long time; on timeout or corruption the file (and its WAL/SHM
// sidecars) is renamed to a timestamped quarantine path so the session starts
// with a fresh one.
func preflight(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("recorder: empty db path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), preflightTimeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return quarantine(path, fmt.Errorf("open: %w", err))
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return quarantine(path, fmt.Errorf("checkpoint: %w", err))
	}
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check(1)").Scan(&result); err != nil {
		return quarantine(path, fmt.Errorf("quick_check: %w", err))
	}
	if result != "ok" {
		return quarantine(path, fmt.Errorf("quick_check: %s", result))
	}
	return nil
}

// quarantine renames the database and sidecars out of the way and reports the
// move. Returning nil lets New proceed against a fresh file.
func quarantine(path string, cause error) error {
	stamp := time.Now().UTC().Format("20060102-150405")
	dest := fmt.Sprintf("%s.quarantine-%s", path, stamp)
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("recorder: quarantine after %v: %w", cause, err)
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		sidecar := path + suffix
		if _, err := os.Stat(sidecar); err != nil {
			continue
		}
		_ = os.Rename(sidecar, dest+suffix)
	}
	log.Printf("Recorder: quarantined unhealthy database to %s (%v)", dest, cause)
	return nil
}
