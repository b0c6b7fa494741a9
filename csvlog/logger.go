package csvlog

import (
	"context"
	"time"

	"github.com/TASBotL3C/smpspeed-usb2snes/sampler"
	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"
)

// minSleep is the floor between acquisitions even when stabilization ate
// the whole interval, so the console gets a breather between bursts.
const minSleep = 500 * time.Millisecond

// Acquirer produces one stabilized record per call. Implemented by
// *sampler.Machine.
type Acquirer interface {
	Acquire(ctx context.Context) (*telemetry.Record, sampler.Stats, error)
}

// RecordSink receives accepted records on the side (SQLite mirror, MQTT
// publisher, dashboard). Implementations must not block.
type RecordSink interface {
	Record(rec *telemetry.Record, stats sampler.Stats)
}

// Logger is the slow-cadence loop: one stabilized acquisition per interval,
// one CSV row per acquisition.
type Logger struct {
	writer   *Writer
	acquirer Acquirer
	interval time.Duration
	sinks    []RecordSink
}

// NewLogger builds the interval logger. Interval values below the sleep
// floor are raised to it.
func NewLogger(writer *Writer, acquirer Acquirer, interval time.Duration, sinks ...RecordSink) *Logger {
	if interval < minSleep {
		interval = minSleep
	}
	return &Logger{
		writer:   writer,
		acquirer: acquirer,
		interval: interval,
		sinks:    sinks,
	}
}

// Run loops until ctx is canceled (clean stop, returns nil) or the acquirer
// reports a fatal condition (sampler.ErrExpired, tilemap.ErrGeometry),
// which is returned to the caller. Retry already happened inside the
// acquirer; this level never retries.
func (l *Logger) Run(ctx context.Context) error {
	for {
		start := time.Now()

		rec, stats, err := l.acquirer.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := l.writer.Append(rec); err != nil {
			return err
		}
		for _, sink := range l.sinks {
			sink.Record(rec, stats)
		}

		sleep := l.interval - time.Since(start)
		if sleep < minSleep {
			sleep = minSleep
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
