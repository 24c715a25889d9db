package types

import (
	"math"
	"strconv"
	"strings"
	"testing"
)

func TestDisplaySizeExamples(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{2 * 1048576, "2 MB"},
		{1073741824, "1 GB"},
		{5 * 1073741824 / 2, "2.5 GB"},
		{2048 * 1073741824, "2048 GB"},
	}
	for _, tc := range cases {
		if got := DisplaySize(tc.in); got != tc.want {
			t.Fatalf("DisplaySize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplaySizeNegativeIsZero(t *testing.T) {
	if got := DisplaySize(-12); got != "0 Bytes" {
		t.Fatalf("unexpected negative size label: %q", got)
	}
}

func TestDisplaySizePicksUnitInRange(t *testing.T) {
	units := map[string]float64{"Bytes": 1, "KB": 1024, "MB": 1024 * 1024, "GB": 1024 * 1024 * 1024}
	for _, b := range []int64{1, 7, 999, 1000, 1025, 4096, 99999, 1 << 20, 3<<20 + 12345, 1 << 30, 7<<30 + 1} {
		label := DisplaySize(b)
		parts := strings.SplitN(label, " ", 2)
		if len(parts) != 2 {
			t.Fatalf("malformed label %q", label)
		}
		div, ok := units[parts[1]]
		if !ok {
			t.Fatalf("unknown unit in %q", label)
		}
		scaled := float64(b) / div
		if scaled < 1 || (scaled >= 1024 && parts[1] != "GB") {
			t.Fatalf("unit for %d out of range: %q", b, label)
		}
		got, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			t.Fatalf("parse %q: %v", label, err)
		}
		if want := math.Round(scaled*10) / 10; got != want {
			t.Fatalf("DisplaySize(%d) value %v, want %v", b, got, want)
		}
	}
}
