// Package sampler implements the read-stabilization state machine. The
// console redraws its counters asynchronously relative to our polling, so a
// single read can catch a torn frame. The machine re-samples at a fast
// cadence and accepts a reading only when two consecutive extractable
// screens are byte-identical; torn frames essentially never repeat
// identically. This two-consecutive-matches heuristic is deliberate — do not
// "improve" it to majority voting.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"
	"github.com/TASBotL3C/smpspeed-usb2snes/tilemap"
)

// State is the machine's acquisition state.
type State int

const (
	// Idle means no acquisition is in progress.
	Idle State = iota
	// Sampling means the machine is polling for a coherent screen.
	Sampling
	// Stable means the last acquisition accepted a reading.
	Stable
	// Expired means the last acquisition exhausted its budget. Fatal for
	// the session.
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Stable:
		return "stable"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrExpired reports that the stabilization budget elapsed without two
// consecutive matching screens. The operator needs to (re)start the
// measurement ROM; retrying at this level cannot help.
var ErrExpired = errors.New("sampler: no valid screen detected within budget")

// Source is the blocking memory read the machine polls. Implemented by
// *usb2snes.Client; tests substitute fakes.
type Source interface {
	ReadMemory(ctx context.Context, offset uint32, size int) ([]byte, error)
}

const (
	defaultCadence = 250 * time.Millisecond
	defaultBudget  = 60 * time.Second
)

// Config tunes one machine. Zero values take the production defaults.
type Config struct {
	// Offset and Size locate the tilemap snapshot in the usb2snes flat
	// address space.
	Offset uint32
	Size   int
	// Cadence is the fast re-poll interval while sampling.
	Cadence time.Duration
	// Budget bounds one whole acquisition, including transport retries.
	Budget time.Duration
	// Trace, when set, receives debug-level notes about absorbed transient
	// failures. Transients are never surfaced anywhere else; startup
	// jitter is normal and must not alarm the operator.
	Trace func(format string, args ...any)
	// Observe, when set, receives every successfully fetched raw snapshot
	// together with whether it became the accepted reading. Must not block.
	Observe func(ts time.Time, raw []byte, accepted bool)
}

func (c Config) withDefaults() Config {
	if c.Offset == 0 {
		c.Offset = tilemap.SnapshotOffset
	}
	if c.Size <= 0 {
		c.Size = tilemap.SnapshotSize
	}
	if c.Cadence <= 0 {
		c.Cadence = defaultCadence
	}
	if c.Budget <= 0 {
		c.Budget = defaultBudget
	}
	return c
}

// Stats describes one acquisition for the session summary and dashboard.
type Stats struct {
	Attempts        int           // snapshot fetches tried
	TransportErrors int           // fetches that failed at the transport
	NotReady        int           // screens that decoded but did not extract
	Mismatches      int           // extracted screens that differed from the baseline
	Elapsed         time.Duration // wall time of the acquisition
}

// Machine drives repeated snapshot reads until one stabilizes.
type Machine struct {
	src Source
	cfg Config

	mu    sync.Mutex
	state State
}

// New builds a machine over the given source.
func New(src Source, cfg Config) *Machine {
	return &Machine{src: src, cfg: cfg.withDefaults()}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Acquire blocks until one stabilized TelemetryRecord is available, the
// budget expires (ErrExpired), a structural decode failure occurs
// (tilemap.ErrGeometry), or ctx is canceled. Transport errors and
// not-yet-valid screens are absorbed and retried at the sampling cadence.
//
// A screen that fails extraction is a no-op for the comparison baseline: the
// last successfully extracted screen remains the candidate to match.
func (m *Machine) Acquire(ctx context.Context) (*telemetry.Record, Stats, error) {
	cfg := m.cfg
	start := time.Now()
	m.setState(Sampling)

	var stats Stats
	var baseline *tilemap.Screen

	finish := func(s State) Stats {
		m.setState(s)
		stats.Elapsed = time.Since(start)
		return stats
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, finish(Idle), err
		}
		if time.Since(start) > cfg.Budget {
			return nil, finish(Expired), ErrExpired
		}

		stats.Attempts++
		raw, err := m.src.ReadMemory(ctx, cfg.Offset, cfg.Size)
		if err != nil {
			stats.TransportErrors++
			m.trace("transport error absorbed (attempt %d): %v", stats.Attempts, err)
			if err := sleepCtx(ctx, cfg.Cadence); err != nil {
				return nil, finish(Idle), err
			}
			continue
		}

		now := time.Now().UTC()

		screen, err := tilemap.Decode(raw)
		if err != nil {
			// Geometry mismatch means the offset/size constants are
			// wrong for this ROM; re-reading cannot fix that.
			m.observe(now, raw, false)
			return nil, finish(Idle), err
		}

		rec, ok := telemetry.Extract(screen, now)
		if !ok {
			stats.NotReady++
			m.trace("screen not ready (attempt %d, hash %x)", stats.Attempts, screen.Hash())
			m.observe(now, raw, false)
			if err := sleepCtx(ctx, cfg.Cadence); err != nil {
				return nil, finish(Idle), err
			}
			continue
		}

		if baseline != nil && screen.Equal(baseline) {
			m.observe(now, raw, true)
			return rec, finish(Stable), nil
		}
		m.observe(now, raw, false)
		if baseline != nil {
			stats.Mismatches++
			m.trace("screen changed between reads (attempt %d): %x -> %x",
				stats.Attempts, baseline.Hash(), screen.Hash())
		}
		baseline = screen

		if err := sleepCtx(ctx, cfg.Cadence); err != nil {
			return nil, finish(Idle), err
		}
	}
}

func (m *Machine) observe(ts time.Time, raw []byte, accepted bool) {
	if m.cfg.Observe != nil {
		m.cfg.Observe(ts, raw, accepted)
	}
}

func (m *Machine) trace(format string, args ...any) {
	if m.cfg.Trace != nil {
		m.cfg.Trace(format, args...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
