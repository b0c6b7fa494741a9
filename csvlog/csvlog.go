// Package csvlog writes accepted telemetry records to a CSV file and runs
// the slow-cadence logging loop that requests one stabilized reading per
// tick.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"
)

// Columns is the fixed CSV schema, written exactly once as the header.
var Columns = []string{
	"Time",
	"SNES PPU (Hz)",
	"Meaning (μs)",
	"Slowest (μs)",
	"Fastest (μs)",
	"S-SMP clock (Hz)",
	"S-SMP relative (ppm)",
	"Slowest clock (Hz)",
	"Fastest clock (Hz)",
	"DSP sample rate (Hz)",
}

// Writer appends records to a CSV file. The file is created exclusively: a
// measurement log is never silently mixed into an existing one.
type Writer struct {
	file *os.File
	csv  *csv.Writer

	mu   sync.Mutex
	rows int
}

// Create opens path for exclusive creation and writes the header row.
func Create(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvlog: create %s: %w", path, err)
	}
	w := &Writer{file: file, csv: csv.NewWriter(file)}
	if err := w.csv.Write(Columns); err != nil {
		file.Close()
		return nil, fmt.Errorf("csvlog: write header: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("csvlog: flush header: %w", err)
	}
	return w, nil
}

// Append writes one record row and flushes it; a crash must not lose
// already-accepted samples.
func (w *Writer) Append(rec *telemetry.Record) error {
	row := make([]string, 0, len(Columns))
	row = append(row, rec.Time.Format(time.RFC3339))
	for _, v := range rec.Values() {
		row = append(row, telemetry.FormatValue(v))
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("csvlog: write row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("csvlog: flush row: %w", err)
	}
	w.mu.Lock()
	w.rows++
	w.mu.Unlock()
	return nil
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	w.csv.Flush()
	err := w.csv.Error()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}

// DefaultPath derives a timestamped output filename for sessions that do
// not configure one.
func DefaultPath(now time.Time) string {
	return now.Format("smpspeed-20060102-150405.csv")
}
