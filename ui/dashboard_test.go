package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/TASBotL3C/smpspeed-usb2snes/sampler"
	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"
)

func TestFormatLatestShowsAllFields(t *testing.T) {
	rec := &telemetry.Record{
		Time:           time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		PPUHz:          24607,
		MeaningMicros:  41.7,
		SlowestMicros:  40,
		FastestMicros:  43,
		SMPClockHz:     1024000,
		RelativePPM:    -5,
		SlowestClockHz: 1023000,
		FastestClockHz: 1025000,
		DSPRateHz:      32000,
	}
	got := formatLatest(rec, sampler.Stats{Attempts: 3, Elapsed: 750 * time.Millisecond})

	for _, want := range []string{
		"2026-03-14T15:09:26Z",
		"24607 Hz",
		"41.7 μs",
		"40 / 43 μs",
		"1024000 Hz (-5 ppm)",
		"32000 Hz",
		"750ms (3 attempts)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("latest pane missing %q:\n%s", want, got)
		}
	}
}

func TestFormatSessionHumanizesCounters(t *testing.T) {
	got := formatSession(1234, 56789, 0, 90*time.Second)
	for _, want := range []string{"1,234", "56,789", "1m30s"} {
		if !strings.Contains(got, want) {
			t.Fatalf("session pane missing %q:\n%s", want, got)
		}
	}
}

func TestDisabledDashboardIsInert(t *testing.T) {
	var d *Dashboard = New(false, nil)
	if d != nil {
		t.Fatalf("disabled dashboard must be nil")
	}
	// All methods must tolerate the nil receiver.
	d.Record(&telemetry.Record{}, sampler.Stats{})
	d.Stop()
	if w := d.EventWriter(); w != nil {
		t.Fatalf("nil dashboard must not hand out a writer")
	}
	if err := d.Run(); err != nil {
		t.Fatalf("nil dashboard run: %v", err)
	}
}
