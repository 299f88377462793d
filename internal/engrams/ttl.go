package engrams

import "time"

// MaxTTLLevel is the top rung of the expiry ladder.
const MaxTTLLevel = 4

const day = 24 * time.Hour

// ttlDurations is the full lifetime granted on reaching each level.
var ttlDurations = [MaxTTLLevel + 1]time.Duration{
	1 * day,
	7 * day,
	30 * day,
	90 * day,
	180 * day,
}

// promotionWindows is the remaining lifetime under which a match promotes
// the utterance to the next level (or renews level 4).
var promotionWindows = [MaxTTLLevel + 1]time.Duration{
	12 * time.Hour,
	3 * day,
	14 * day,
	30 * day,
	60 * day,
}

// TTLDuration returns the lifetime for level, clamping out-of-range levels.
func TTLDuration(level int) time.Duration {
	return ttlDurations[clampLevel(level)]
}

// PromotionWindow returns the promotion threshold for level.
func PromotionWindow(level int) time.Duration {
	return promotionWindows[clampLevel(level)]
}

// ShouldPromote reports whether a match at now earns a promotion: the
// utterance is still alive but inside its level's promotion window.
func ShouldPromote(level int, expiresAt, now time.Time) bool {
	if level < 0 || level > MaxTTLLevel {
		return false
	}
	remaining := expiresAt.Sub(now)
	return remaining > 0 && remaining < promotionWindows[level]
}

// PromotedLevel returns the next level, capped at MaxTTLLevel.
func PromotedLevel(level int) int {
	return min(level+1, MaxTTLLevel)
}

// NewExpiry returns the expiry for a freshly granted level.
func NewExpiry(level int, now time.Time) time.Time {
	return now.Add(TTLDuration(level))
}

// Promote applies the spaced-repetition rule to a match at now and returns
// the resulting level and expiry. ok is false when nothing changes.
func Promote(level int, expiresAt, now time.Time) (newLevel int, newExpiry time.Time, ok bool) {
	if !ShouldPromote(level, expiresAt, now) {
		return level, expiresAt, false
	}
	newLevel = PromotedLevel(level)
	return newLevel, NewExpiry(newLevel, now), true
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxTTLLevel {
		return MaxTTLLevel
	}
	return level
}
