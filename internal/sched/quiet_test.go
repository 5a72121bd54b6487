package sched

import (
	"errors"
	"testing"
	"time"
)

func TestParseQuietHours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantStart time.Duration
		wantEnd   time.Duration
		wantErr   bool
	}{
		{"normal range", "22:00-07:00", 22 * time.Hour, 7 * time.Hour, false},
		{"with minutes", "08:30-17:45", 8*time.Hour + 30*time.Minute, 17*time.Hour + 45*time.Minute, false},
		{"spaces around dash", "22:00 - 07:00", 22 * time.Hour, 7 * time.Hour, false},
		{"missing dash", "22:00", 0, 0, true},
		{"missing minutes", "22-07", 0, 0, true},
		{"hour out of range", "25:00-07:00", 0, 0, true},
		{"minute out of range", "22:61-07:00", 0, 0, true},
		{"garbage", "night", 0, 0, true},
		{"empty", "", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := ParseQuietHours(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidQuiet) {
					t.Errorf("ParseQuietHours(%q) = %v, want ErrInvalidQuiet", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuietHours(%q): %v", tt.input, err)
			}
			if q.Start != tt.wantStart || q.End != tt.wantEnd {
				t.Errorf("ParseQuietHours(%q) = {%v %v}, want {%v %v}",
					tt.input, q.Start, q.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestQuietHours_IsQuiet(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name  string
		spec  string
		t     time.Time
		quiet bool
	}{
		{"inside normal range", "02:00-06:00", at(4, 0), true},
		{"before normal range", "02:00-06:00", at(1, 59), false},
		{"at start inclusive", "02:00-06:00", at(2, 0), true},
		{"at end exclusive", "02:00-06:00", at(6, 0), false},
		{"midnight wrap late evening", "23:00-07:00", at(23, 30), true},
		{"midnight wrap early morning", "23:00-07:00", at(6, 59), true},
		{"midnight wrap daytime", "23:00-07:00", at(12, 0), false},
		{"midnight wrap at end", "23:00-07:00", at(7, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, err := ParseQuietHours(tt.spec)
			if err != nil {
				t.Fatalf("ParseQuietHours(%q): %v", tt.spec, err)
			}
			if got := q.IsQuiet(tt.t); got != tt.quiet {
				t.Errorf("IsQuiet(%v) in %q = %v, want %v", tt.t, tt.spec, got, tt.quiet)
			}
		})
	}
}
