// Package recorder mirrors accepted telemetry records into SQLite for
// offline analysis without slowing the acquisition loop.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/TASBotL3C/smpspeed-usb2snes/sampler"
	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"

	_ "modernc.org/sqlite"
)

// Recorder persists records into SQLite, optionally capped per session.
type Recorder struct {
	db    *sql.DB
	limit int

	mu    sync.Mutex
	count int
}

// New opens (or creates) the SQLite database at path and ensures the schema
// exists. limit caps rows per session; zero means unlimited.
func New(path string, limit int) (*Recorder, error) {
	if limit < 0 {
		return nil, errors.New("recorder: limit must not be negative")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("recorder: ensure dir: %w", err)
		}
	}
	if err := preflight(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db, limit: limit}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS telemetry_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    captured_at TEXT,
    ppu_hz REAL,
    meaning_us REAL,
    slowest_us REAL,
    fastest_us REAL,
    smp_clock_hz REAL,
    relative_ppm REAL,
    slowest_clock_hz REAL,
    fastest_clock_hz REAL,
    dsp_rate_hz REAL,
    attempts INTEGER,
    transport_errors INTEGER
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("recorder: schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record inserts the record unless the session cap has been reached. The
// insert runs on its own goroutine so the acquisition loop never waits on
// disk.
func (r *Recorder) Record(rec *telemetry.Record, stats sampler.Stats) {
	if r == nil || r.db == nil || rec == nil {
		return
	}
	r.mu.Lock()
	if r.limit > 0 && r.count >= r.limit {
		r.mu.Unlock()
		return
	}
	r.count++
	r.mu.Unlock()

	go r.insert(rec, stats)
}

func (r *Recorder) insert(rec *telemetry.Record, stats sampler.Stats) {
	_, err := r.db.Exec(`
INSERT INTO telemetry_records (
    captured_at, ppu_hz, meaning_us, slowest_us, fastest_us,
    smp_clock_hz, relative_ppm, slowest_clock_hz, fastest_clock_hz,
    dsp_rate_hz, attempts, transport_errors
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UTC().Format("2006-01-02T15:04:05Z07:00"),
		rec.PPUHz,
		rec.MeaningMicros,
		rec.SlowestMicros,
		rec.FastestMicros,
		rec.SMPClockHz,
		rec.RelativePPM,
		rec.SlowestClockHz,
		rec.FastestClockHz,
		rec.DSPRateHz,
		stats.Attempts,
		stats.TransportErrors,
	)
	if err != nil {
		log.Printf("Recorder: failed to insert record: %v", err)
	}
}
