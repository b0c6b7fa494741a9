package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TASBotL3C/smpspeed-usb2snes/tilemap"
)

// step is one scripted ReadMemory outcome.
type step struct {
	data []byte
	err  error
}

// scriptedSource replays a fixed sequence of read outcomes; once exhausted
// it repeats the final step.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	idx   int
}

func (s *scriptedSource) ReadMemory(ctx context.Context, offset uint32, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return nil, errors.New("scripted source has no steps")
	}
	st := s.steps[s.idx]
	if s.idx < len(s.steps)-1 {
		s.idx++
	}
	return st.data, st.err
}

// measurementSnapshot builds a snapshot showing the full measurement screen
// with the given PPU value; varying the value yields distinct valid screens.
func measurementSnapshot(ppu string) []byte {
	rows := []struct {
		row  int
		text string
	}{
		{0, "SNES PPU: " + ppu},
		{5, "Meaning: 41.7 us"},
		{6, "Slowest: 40 us"},
		{7, "Fastest: 43 us"},
		{9, "S-SMP clock: 1024000 Hz"},
		{10, "relative: 5 ppm"},
		{11, "Slowest: 1023000 Hz"},
		{12, "Fastest: 1025000 Hz"},
		{14, "DSP sample rate: 32000 Hz"},
	}
	snap := make([]byte, tilemap.SnapshotSize)
	for _, r := range rows {
		copy(snap[r.row*tilemap.Cols+1:], r.text)
	}
	return snap
}

func fastConfig() Config {
	return Config{Cadence: time.Millisecond, Budget: time.Second}
}

func TestAcceptsAfterTwoConsecutiveMatchingScreens(t *testing.T) {
	a := measurementSnapshot("24606 Hz")
	b := measurementSnapshot("24607 Hz")
	src := &scriptedSource{steps: []step{{data: a}, {data: b}, {data: b}}}

	m := New(src, fastConfig())
	rec, stats, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if rec.PPUHz != 24607 {
		t.Fatalf("expected the repeated screen's value 24607, got %v", rec.PPUHz)
	}
	if stats.Attempts != 3 {
		t.Fatalf("expected acceptance on attempt 3, got %d", stats.Attempts)
	}
	if stats.Mismatches != 1 {
		t.Fatalf("expected one mismatch, got %d", stats.Mismatches)
	}
	if m.State() != Stable {
		t.Fatalf("expected Stable state, got %v", m.State())
	}
}

func TestDoesNotAcceptSingleValidScreen(t *testing.T) {
	a := measurementSnapshot("24606 Hz")
	b := measurementSnapshot("24607 Hz")
	c := measurementSnapshot("24608 Hz")
	// a, b, c all valid but never repeated; then c repeats.
	src := &scriptedSource{steps: []step{{data: a}, {data: b}, {data: c}, {data: c}}}

	m := New(src, fastConfig())
	rec, stats, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if rec.PPUHz != 24608 {
		t.Fatalf("expected last screen's value, got %v", rec.PPUHz)
	}
	if stats.Attempts != 4 {
		t.Fatalf("acceptance requires a repeat: expected attempt 4, got %d", stats.Attempts)
	}
}

func TestNotReadyScreenPreservesBaseline(t *testing.T) {
	a := measurementSnapshot("24607 Hz")
	blank := make([]byte, tilemap.SnapshotSize)
	src := &scriptedSource{steps: []step{{data: a}, {data: blank}, {data: a}}}

	m := New(src, fastConfig())
	rec, stats, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if rec.PPUHz != 24607 {
		t.Fatalf("expected 24607, got %v", rec.PPUHz)
	}
	if stats.Attempts != 3 {
		t.Fatalf("expected acceptance on attempt 3 across the not-ready gap, got %d", stats.Attempts)
	}
	if stats.NotReady != 1 {
		t.Fatalf("expected one not-ready sample, got %d", stats.NotReady)
	}
}

func TestTransportErrorsAreAbsorbed(t *testing.T) {
	a := measurementSnapshot("24607 Hz")
	readErr := errors.New("bridge hiccup")
	src := &scriptedSource{steps: []step{{err: readErr}, {err: readErr}, {data: a}, {data: a}}}

	m := New(src, fastConfig())
	rec, stats, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if stats.TransportErrors != 2 {
		t.Fatalf("expected 2 absorbed transport errors, got %d", stats.TransportErrors)
	}
}

func TestGeometryErrorIsStructural(t *testing.T) {
	src := &scriptedSource{steps: []step{{data: make([]byte, 16)}}}

	m := New(src, fastConfig())
	_, stats, err := m.Acquire(context.Background())
	if !errors.Is(err, tilemap.ErrGeometry) {
		t.Fatalf("expected geometry error, got %v", err)
	}
	if stats.Attempts != 1 {
		t.Fatalf("structural errors must not be retried, got %d attempts", stats.Attempts)
	}
}

func TestExpiresWhenNothingExtracts(t *testing.T) {
	blank := make([]byte, tilemap.SnapshotSize)
	src := &scriptedSource{steps: []step{{data: blank}}}

	m := New(src, Config{Cadence: time.Millisecond, Budget: 50 * time.Millisecond})
	done := make(chan error, 1)
	go func() {
		_, _, err := m.Acquire(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrExpired) {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("acquisition did not terminate")
	}
	if m.State() != Expired {
		t.Fatalf("expected Expired state, got %v", m.State())
	}
}

func TestExpiresWhenScreensNeverRepeat(t *testing.T) {
	// Alternating valid screens: extraction succeeds every time but the
	// stability predicate never holds.
	a := measurementSnapshot("24606 Hz")
	b := measurementSnapshot("24607 Hz")
	src := &alternatingSource{a: a, b: b}

	m := New(src, Config{Cadence: time.Millisecond, Budget: 50 * time.Millisecond})
	_, stats, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if stats.Mismatches == 0 {
		t.Fatalf("expected mismatches to be counted")
	}
}

type alternatingSource struct {
	a, b []byte
	n    int
}

func (s *alternatingSource) ReadMemory(ctx context.Context, offset uint32, size int) ([]byte, error) {
	s.n++
	if s.n%2 == 0 {
		return s.b, nil
	}
	return s.a, nil
}

func TestCancellationStopsSampling(t *testing.T) {
	blank := make([]byte, tilemap.SnapshotSize)
	src := &scriptedSource{steps: []step{{data: blank}}}

	ctx, cancel := context.WithCancel(context.Background())
	m := New(src, Config{Cadence: 10 * time.Millisecond, Budget: time.Minute})
	done := make(chan error, 1)
	go func() {
		_, _, err := m.Acquire(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("acquisition ignored cancellation")
	}
	if m.State() != Idle {
		t.Fatalf("expected Idle after cancellation, got %v", m.State())
	}
}

func TestObserveSeesEverySnapshotAndMarksAccepted(t *testing.T) {
	a := measurementSnapshot("24606 Hz")
	b := measurementSnapshot("24607 Hz")
	blank := make([]byte, tilemap.SnapshotSize)
	src := &scriptedSource{steps: []step{{data: a}, {data: blank}, {data: b}, {data: b}}}

	var seen int
	var accepted int
	cfg := fastConfig()
	cfg.Observe = func(ts time.Time, raw []byte, ok bool) {
		seen++
		if ok {
			accepted++
		}
		if len(raw) != tilemap.SnapshotSize {
			t.Errorf("observed snapshot of %d bytes", len(raw))
		}
	}
	m := New(src, cfg)
	if _, _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if seen != 4 {
		t.Fatalf("expected 4 observed snapshots, got %d", seen)
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted snapshot, got %d", accepted)
	}
}
