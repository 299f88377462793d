package engrams_test

import (
	"testing"
	"time"

	"github.com/agentoven/larder/internal/engrams"
)

const day = 24 * time.Hour

func TestPromote(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		level      int
		remaining  time.Duration
		wantLevel  int
		wantExpiry time.Time
		wantOK     bool
	}{
		{"fresh pattern reused within a day", 0, time.Hour, 1, now.Add(7 * day), true},
		{"level 0 outside window", 0, 20 * time.Hour, 0, now.Add(20 * time.Hour), false},
		{"level 1 inside window", 1, 2 * day, 2, now.Add(30 * day), true},
		{"level 3 inside window", 3, 29 * day, 4, now.Add(180 * day), true},
		{"level 4 renews inside window", 4, 59 * day, 4, now.Add(180 * day), true},
		{"level 4 with three months left", 4, 90 * day, 4, now.Add(90 * day), false},
		{"already expired", 2, -time.Minute, 2, now.Add(-time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, expiry, ok := engrams.Promote(tt.level, now.Add(tt.remaining), now)
			if ok != tt.wantOK {
				t.Errorf("Promote() ok = %v, want %v", ok, tt.wantOK)
			}
			if level != tt.wantLevel {
				t.Errorf("Promote() level = %d, want %d", level, tt.wantLevel)
			}
			if !expiry.Equal(tt.wantExpiry) {
				t.Errorf("Promote() expiry = %v, want %v", expiry, tt.wantExpiry)
			}
		})
	}
}

func TestTTLDuration_Clamps(t *testing.T) {
	if got := engrams.TTLDuration(-3); got != day {
		t.Errorf("TTLDuration(-3) = %v, want %v", got, day)
	}
	if got := engrams.TTLDuration(9); got != 180*day {
		t.Errorf("TTLDuration(9) = %v, want %v", got, 180*day)
	}
	if got := engrams.PromotedLevel(engrams.MaxTTLLevel); got != engrams.MaxTTLLevel {
		t.Errorf("PromotedLevel(max) = %d, want %d", got, engrams.MaxTTLLevel)
	}
}

func TestShouldPromote_OutOfRangeLevel(t *testing.T) {
	now := time.Now()
	if engrams.ShouldPromote(7, now.Add(time.Minute), now) {
		t.Error("ShouldPromote() with invalid level = true")
	}
}
