// Package srs implements the spaced-repetition math shared by the
// ghost-steering engine's scoring and the SRS review recorder: the
// expected review interval for a given pass streak, and the priority of
// a blunder at a given point in time.
package srs

import (
	"math"
	"time"
)

const (
	// BaseHours is the interval for a blunder with no passed reviews.
	BaseHours = 1.0
	// Backoff is the multiplier applied per consecutive pass.
	Backoff = 2.0
	// MaxHours caps the expected interval regardless of streak length.
	MaxHours = 4320.0
)

// ExpectedIntervalHours returns the expected review interval, in hours,
// for a blunder with the given pass streak.
func ExpectedIntervalHours(streak int) float64 {
	if streak < 0 {
		streak = 0
	}
	interval := BaseHours * math.Pow(Backoff, float64(streak))
	if interval > MaxHours {
		return MaxHours
	}
	return interval
}

// Priority returns how overdue a blunder is: the ratio of hours elapsed
// since its last reference time (last review, or creation if never
// reviewed) to its expected interval at the given streak. A priority
// strictly greater than 1.0 means the blunder is due.
//
// lastReviewedAt and createdAt may both be nil/zero only in tests; in
// that case priority is 0.
func Priority(streak int, lastReviewedAt, createdAt *time.Time, now time.Time) float64 {
	ref := lastReviewedAt
	if ref == nil {
		ref = createdAt
	}
	if ref == nil {
		return 0
	}

	deltaHours := now.Sub(*ref).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}

	return deltaHours / ExpectedIntervalHours(streak)
}

// IsDue reports whether a blunder with the given priority should be
// surfaced for review. Exactly 1.0 is not yet due.
func IsDue(priority float64) bool {
	return priority > 1.0
}
