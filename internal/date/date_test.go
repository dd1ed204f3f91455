package date

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.FixedZone("X", 3600))
	got := string(Format(ts))
	want := "Tue, 05 Mar 2024 06:08:09 GMT"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestCurrentWithTicker(t *testing.T) {
	stop := StartTicker()
	defer stop()

	got := Current()
	if _, err := time.Parse(Layout, string(got)); err != nil {
		t.Errorf("Current() = %q is not a valid date: %v", got, err)
	}
}
