package telemetry

import (
	"errors"
	"strconv"
	"strings"
)

// unit identifies the suffix a measurement token must carry.
type unit int

const (
	unitHertz unit = iota
	unitMicros
	unitPPM
)

// unitSuffixes lists the accepted spellings per unit. The ROM renders
// microseconds as "us" in its ASCII charset, but tokens are also accepted
// with the micro sign (U+00B5) or Greek mu (U+03BC) spellings.
var unitSuffixes = map[unit][]string{
	unitHertz:  {"Hz"},
	unitMicros: {"µs", "μs", "us"},
	unitPPM:    {"ppm"},
}

var errBadToken = errors.New("telemetry: malformed measurement token")

// parseMeasure parses a display token like "24607 Hz", "32000.5 Hz",
// "-12 ppm" or "41.7 us" into its numeric value. The unit suffix is
// mandatory and anything trailing it is rejected; frequency and duration
// values must be non-negative.
func parseMeasure(token string, u unit) (float64, error) {
	token = strings.TrimSpace(token)
	var num string
	for _, suffix := range unitSuffixes[u] {
		if rest, ok := strings.CutSuffix(token, suffix); ok {
			num = strings.TrimRight(rest, " ")
			break
		}
	}
	if num == "" {
		return 0, errBadToken
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, errBadToken
	}
	if u != unitPPM && v < 0 {
		return 0, errBadToken
	}
	return v, nil
}
