package usb2snes

import (
	"strings"

	lev "github.com/agnivade/levenshtein"
)

// defaultDeviceMatch is the substring to look for when no preferred device
// is configured; the bridge reports SD2SNES/FXPak hardware under this name.
const defaultDeviceMatch = "SD2SNES"

// maxDeviceEditDistance bounds how dissimilar a fuzzy device match may be.
// Device names drift by COM port or firmware suffix, not by whole words.
const maxDeviceEditDistance = 3

// selectDevice picks the device to attach to. With no preference the first
// SD2SNES is taken. A configured preference matches by case-insensitive
// substring first, then falls back to the closest name within a bounded
// edit distance, so "sd2snes com4" still finds "SD2SNES COM3".
func selectDevice(devices []string, preferred string) (string, bool) {
	match := preferred
	if match == "" {
		match = defaultDeviceMatch
	}
	upper := strings.ToUpper(match)
	for _, d := range devices {
		if strings.Contains(strings.ToUpper(d), upper) {
			return d, true
		}
	}
	if preferred == "" {
		return "", false
	}

	best := ""
	bestDist := maxDeviceEditDistance + 1
	for _, d := range devices {
		dist := lev.ComputeDistance(strings.ToUpper(d), upper)
		if dist < bestDist {
			best = d
			bestDist = dist
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
