package services

import "time"

// LockoutPolicy is pure decision logic over attempt counters. The password
// layer and the 2FA layer each hold their own instance so brute-forcing a
// TOTP code after a password success is rate-limited the same way.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Remaining returns how long a lock set to expire at until still has to run.
// A zero duration means not locked.
func (p LockoutPolicy) Remaining(until *time.Time, now time.Time) time.Duration {
	if until == nil || !now.Before(*until) {
		return 0
	}
	return until.Sub(now)
}

// NextLock returns the lock expiry to set after a failed attempt, or nil if
// the incremented counter is still below the threshold. attempts is the
// counter value after incrementing.
func (p LockoutPolicy) NextLock(attempts int, now time.Time) *time.Time {
	if attempts < p.Threshold {
		return nil
	}
	t := now.Add(p.Duration)
	return &t
}

// RemainingMinutes rounds a lock duration up to whole minutes for the
// user-facing message.
func RemainingMinutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}
