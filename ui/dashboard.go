// Package ui renders a live terminal dashboard for a measurement session:
// the latest accepted reading, session counters, and the rolling event log.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/TASBotL3C/smpspeed-usb2snes/sampler"
	"github.com/TASBotL3C/smpspeed-usb2snes/telemetry"
)

var (
	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorAqua
)

// Dashboard is the tview application wrapper. A nil Dashboard is inert, so
// callers can wire it unconditionally.
type Dashboard struct {
	app     *tview.Application
	latest  *tview.TextView
	session *tview.TextView
	events  *tview.TextView

	mu       sync.Mutex
	accepted int
	attempts int
	errors   int
	started  time.Time
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true).
		SetBorderColor(uiBorderColor).
		SetTitle(" " + title + " ").
		SetTitleColor(uiTitleColor)
	return tv
}

// New constructs the dashboard when enabled, nil otherwise. onQuit fires
// when the operator presses q or Ctrl+C inside the UI; the caller owns
// shutdown policy.
func New(enabled bool, onQuit func()) *Dashboard {
	if !enabled {
		return nil
	}
	d := &Dashboard{
		app:     tview.NewApplication(),
		latest:  newBoxedTextView("Latest reading"),
		session: newBoxedTextView("Session"),
		events:  newBoxedTextView("Events"),
		started: time.Now(),
	}
	d.events.SetScrollable(true).SetMaxLines(500)
	d.events.SetChangedFunc(func() { d.app.Draw() })

	fmt.Fprint(d.latest, "waiting for first stabilized reading...")

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.latest, 13, 0, false).
		AddItem(d.session, 6, 0, false).
		AddItem(d.events, 0, 1, false)
	d.app.SetRoot(root, true)
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC || event.Rune() == 'q' {
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})
	return d
}

// Run blocks until Stop is called. Returns the terminal error, if any.
func (d *Dashboard) Run() error {
	if d == nil {
		return nil
	}
	return d.app.Run()
}

// Stop tears the terminal UI down.
func (d *Dashboard) Stop() {
	if d == nil {
		return
	}
	d.app.Stop()
}

// EventWriter returns a sink for log output; lines show up in the events
// pane.
func (d *Dashboard) EventWriter() io.Writer {
	if d == nil {
		return nil
	}
	return tview.ANSIWriter(d.events)
}

// Record implements the record sink: refresh the latest-reading and session
// panes.
func (d *Dashboard) Record(rec *telemetry.Record, stats sampler.Stats) {
	if d == nil || rec == nil {
		return
	}
	d.mu.Lock()
	d.accepted++
	d.attempts += stats.Attempts
	d.errors += stats.TransportErrors
	accepted, attempts, errors := d.accepted, d.attempts, d.errors
	started := d.started
	d.mu.Unlock()

	latest := formatLatest(rec, stats)
	session := formatSession(accepted, attempts, errors, time.Since(started))

	d.app.QueueUpdateDraw(func() {
		d.latest.SetText(latest)
		d.session.SetText(session)
	})
}

func formatLatest(rec *telemetry.Record, stats sampler.Stats) string {
	return fmt.Sprintf(
		"Captured         %s\n"+
			"SNES PPU         %s Hz\n"+
			"Meaning          %s μs\n"+
			"Slowest/Fastest  %s / %s μs\n"+
			"S-SMP clock      %s Hz (%s ppm)\n"+
			"Slowest clock    %s Hz\n"+
			"Fastest clock    %s Hz\n"+
			"DSP sample rate  %s Hz\n"+
			"Stabilized in    %s (%d attempts)",
		rec.Time.Format(time.RFC3339),
		telemetry.FormatValue(rec.PPUHz),
		telemetry.FormatValue(rec.MeaningMicros),
		telemetry.FormatValue(rec.SlowestMicros),
		telemetry.FormatValue(rec.FastestMicros),
		telemetry.FormatValue(rec.SMPClockHz),
		telemetry.FormatValue(rec.RelativePPM),
		telemetry.FormatValue(rec.SlowestClockHz),
		telemetry.FormatValue(rec.FastestClockHz),
		telemetry.FormatValue(rec.DSPRateHz),
		stats.Elapsed.Round(time.Millisecond),
		stats.Attempts,
	)
}

func formatSession(accepted, attempts, errors int, uptime time.Duration) string {
	return fmt.Sprintf(
		"Records   %s\nAttempts  %s\nErrors    %s\nUptime    %s",
		humanize.Comma(int64(accepted)),
		humanize.Comma(int64(attempts)),
		humanize.Comma(int64(errors)),
		uptime.Round(time.Second),
	)
}
