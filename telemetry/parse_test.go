package telemetry

import "testing"

func TestParseMeasure(t *testing.T) {
	cases := []struct {
		token string
		unit  unit
		want  float64
		ok    bool
	}{
		{"24607 Hz", unitHertz, 24607, true},
		{"32000.5 Hz", unitHertz, 32000.5, true},
		{"24607Hz", unitHertz, 24607, true},
		{"-12 ppm", unitPPM, -12, true},
		{"+5 ppm", unitPPM, 5, true},
		{"41.7 μs", unitMicros, 41.7, true},
		{"41.7 µs", unitMicros, 41.7, true},
		{"41.7 us", unitMicros, 41.7, true},
		{"24607Hzz", unitHertz, 0, false},
		{"24607", unitHertz, 0, false},
		{"Hz", unitHertz, 0, false},
		{"", unitHertz, 0, false},
		{"-- Hz", unitHertz, 0, false},
		{"-100 Hz", unitHertz, 0, false},
		{"-41.7 us", unitMicros, 0, false},
		{"12 ppmx", unitPPM, 0, false},
		{"1 2 Hz", unitHertz, 0, false},
	}
	for _, c := range cases {
		got, err := parseMeasure(c.token, c.unit)
		if c.ok && err != nil {
			t.Fatalf("%q: unexpected error: %v", c.token, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%q: expected an error, got %v", c.token, got)
		}
		if c.ok && got != c.want {
			t.Fatalf("%q: got %v, want %v", c.token, got, c.want)
		}
	}
}
