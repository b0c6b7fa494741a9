package telemetry

import (
	"strings"
	"time"

	"github.com/TASBotL3C/smpspeed-usb2snes/tilemap"
)

// labelCol is the column where every smpspeed label starts; the ROM indents
// its rows by one tile.
const labelCol = 1

// fieldSpec anchors one measurement to its tilemap row and label.
type fieldSpec struct {
	row    int
	label  string
	unit   unit
	assign func(*Record, float64)
}

// fields mirrors the measurement ROM's screen layout. Row indexes and labels
// must match the ROM exactly; a mismatch on any row means the console is
// showing something else (menu, boot screen, torn frame).
var fields = []fieldSpec{
	{0, "SNES PPU:", unitHertz, func(r *Record, v float64) { r.PPUHz = v }},
	{5, "Meaning:", unitMicros, func(r *Record, v float64) { r.MeaningMicros = v }},
	{6, "Slowest:", unitMicros, func(r *Record, v float64) { r.SlowestMicros = v }},
	{7, "Fastest:", unitMicros, func(r *Record, v float64) { r.FastestMicros = v }},
	{9, "S-SMP clock:", unitHertz, func(r *Record, v float64) { r.SMPClockHz = v }},
	{10, "relative:", unitPPM, func(r *Record, v float64) { r.RelativePPM = v }},
	{11, "Slowest:", unitHertz, func(r *Record, v float64) { r.SlowestClockHz = v }},
	{12, "Fastest:", unitHertz, func(r *Record, v float64) { r.FastestClockHz = v }},
	{14, "DSP sample rate:", unitHertz, func(r *Record, v float64) { r.DSPRateHz = v }},
}

// meaningRow is the row whose value the ROM fills with "---" placeholders
// while the first measurement pass is still running.
const meaningRow = 5

// Extract scans a decoded screen for the nine labeled measurements. The
// second return is false when the screen is not (yet) a readable smpspeed
// display: a label is missing, the ROM is still measuring, or a token does
// not parse. That state is expected during startup and menu navigation and
// is not an error.
func Extract(screen *tilemap.Screen, now time.Time) (*Record, bool) {
	if screen == nil {
		return nil, false
	}
	rec := &Record{Time: now}
	for _, f := range fields {
		if !screen.HasLabel(f.row, labelCol, f.label) {
			return nil, false
		}
		text := screen.CellText(f.row, labelCol+len(f.label))
		if f.row == meaningRow && strings.Contains(text, "---") {
			// "---" run: measurement still in progress.
			return nil, false
		}
		v, err := parseMeasure(text, f.unit)
		if err != nil {
			return nil, false
		}
		f.assign(rec, v)
	}
	return rec, true
}
