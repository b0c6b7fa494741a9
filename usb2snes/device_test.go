package usb2snes

import "testing"

func TestSelectDeviceDefaultsToFirstSD2SNES(t *testing.T) {
	devices := []string{"RetroArch Core", "SD2SNES COM3", "SD2SNES COM7"}
	got, ok := selectDevice(devices, "")
	if !ok || got != "SD2SNES COM3" {
		t.Fatalf("expected first SD2SNES, got %q (ok=%v)", got, ok)
	}
}

func TestSelectDeviceIsCaseInsensitive(t *testing.T) {
	got, ok := selectDevice([]string{"sd2snes com3"}, "")
	if !ok || got != "sd2snes com3" {
		t.Fatalf("expected case-insensitive match, got %q (ok=%v)", got, ok)
	}
}

func TestSelectDeviceNoDefaultFuzzyMatch(t *testing.T) {
	// Without a configured preference, only real SD2SNES names qualify.
	if got, ok := selectDevice([]string{"SD2SNEZ COM3"}, ""); ok {
		t.Fatalf("expected no match for near-miss without preference, got %q", got)
	}
}

func TestSelectDevicePreferredSubstringWins(t *testing.T) {
	devices := []string{"SD2SNES COM3", "SD2SNES COM7"}
	got, ok := selectDevice(devices, "COM7")
	if !ok || got != "SD2SNES COM7" {
		t.Fatalf("expected COM7 device, got %q (ok=%v)", got, ok)
	}
}

func TestSelectDevicePreferredFuzzyFallback(t *testing.T) {
	devices := []string{"SD2SNES COM3"}
	got, ok := selectDevice(devices, "SD2SNES COM4")
	if !ok || got != "SD2SNES COM3" {
		t.Fatalf("expected fuzzy match within edit distance, got %q (ok=%v)", got, ok)
	}
}

func TestSelectDevicePreferredFuzzyBounded(t *testing.T) {
	devices := []string{"RetroArch Core"}
	if got, ok := selectDevice(devices, "SD2SNES COM4"); ok {
		t.Fatalf("expected no match beyond edit distance bound, got %q", got)
	}
}

func TestSelectDeviceEmptyList(t *testing.T) {
	if got, ok := selectDevice(nil, ""); ok {
		t.Fatalf("expected no match on empty device list, got %q", got)
	}
}
