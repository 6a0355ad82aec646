package store

import (
	"testing"
	"time"
)

func TestSplitArray(t *testing.T) {
	if v := splitArray(""); v != nil {
		t.Fatalf("empty -> nil expected, got %v", v)
	}
	if v := splitArray("wheelchair,ramp"); len(v) != 2 || v[1] != "ramp" {
		t.Fatalf("unexpected %v", v)
	}
}

func TestPQStringArray(t *testing.T) {
	if v := pqStringArray(nil); v != nil {
		t.Fatalf("nil slice -> nil expected")
	}
	if v := pqStringArray([]string{}); v != nil {
		t.Fatalf("empty slice -> nil expected")
	}
	if v := pqStringArray([]string{"a", "b"}); v == nil {
		t.Fatalf("non-empty -> non-nil expected")
	}
}

func TestDayBounds(t *testing.T) {
	d := time.Date(2025, 3, 10, 17, 45, 0, 0, time.UTC)
	if got := dayStart(d); !got.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dayStart %v", got)
	}
	if got := dayEnd(d); !got.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dayEnd %v", got)
	}
}
