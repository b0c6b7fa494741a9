// Package telemetry defines the canonical record produced by one stabilized
// screen read and the extractor that turns decoded tilemap text into typed
// values.
package telemetry

import (
	"strconv"
	"time"
)

// Record holds one validated set of smpspeed measurements. All frequency and
// duration fields are non-negative; RelativePPM is the only signed field.
// A Record is never mutated after Extract returns it.
type Record struct {
	Time           time.Time // capture timestamp (set by the caller at acceptance)
	PPUHz          float64   // SNES PPU dot-derived frequency in Hz
	MeaningMicros  float64   // mean timer measurement in microseconds
	SlowestMicros  float64   // slowest timer measurement in microseconds
	FastestMicros  float64   // fastest timer measurement in microseconds
	SMPClockHz     float64   // derived S-SMP clock in Hz
	RelativePPM    float64   // S-SMP deviation from nominal, parts per million
	SlowestClockHz float64   // S-SMP clock from the slowest sample in Hz
	FastestClockHz float64   // S-SMP clock from the fastest sample in Hz
	DSPRateHz      float64   // DSP sample rate in Hz
}

// Values returns the nine measurements in CSV column order (excluding the
// timestamp column).
func (r *Record) Values() []float64 {
	return []float64{
		r.PPUHz,
		r.MeaningMicros,
		r.SlowestMicros,
		r.FastestMicros,
		r.SMPClockHz,
		r.RelativePPM,
		r.SlowestClockHz,
		r.FastestClockHz,
		r.DSPRateHz,
	}
}

// FormatValue renders a measurement the way it appeared on screen: no
// exponent, no trailing zeros beyond what the value needs.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
