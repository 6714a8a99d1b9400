package refnum

import (
	"bytes"
	"regexp"
	"testing"
	"time"
)

func TestNextFormat(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	gen := New("mv").WithClock(func() time.Time { return fixed }, bytes.NewReader([]byte{0xab, 0x0c}))

	got, err := gen.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "MV-260314092653-AB0C" {
		t.Fatalf("unexpected number %s", got)
	}
}

func TestNextRandomSuffix(t *testing.T) {
	pattern := regexp.MustCompile(`^PO-\d{12}-[0-9A-F]{4}$`)
	gen := New("PO")
	for i := 0; i < 10; i++ {
		got, err := gen.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !pattern.MatchString(got) {
			t.Fatalf("unexpected format %s", got)
		}
	}
}

func TestNextRandomFailure(t *testing.T) {
	gen := New("MV").WithClock(nil, bytes.NewReader(nil))
	if _, err := gen.Next(); err == nil {
		t.Fatal("expected error when random source is exhausted")
	}
}
