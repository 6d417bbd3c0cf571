// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides helpers shared by the chatvault packages.
package util

import "time"

// Bucket is a coarse recency group for session listings.
type Bucket string

const (
	BucketToday       Bucket = "Today"
	BucketYesterday   Bucket = "Yesterday"
	BucketThisWeek    Bucket = "This Week"
	BucketThisMonth   Bucket = "This Month"
	BucketLast6Months Bucket = "Last 6 Months"
	BucketLastYear    Bucket = "Last Year"
	BucketOlder       Bucket = "Older"
)

// Buckets returns the buckets from newest to oldest.
func Buckets() []Bucket {
	return []Bucket{
		BucketToday, BucketYesterday, BucketThisWeek, BucketThisMonth,
		BucketLast6Months, BucketLastYear, BucketOlder,
	}
}

// RecencyBucket places t relative to now, in now's location. Weeks start on
// Monday. Times in the future count as Today.
func RecencyBucket(t, now time.Time) Bucket {
	loc := now.Location()
	t = t.In(loc)

	today := startOfDay(now)
	if !t.Before(today) {
		return BucketToday
	}
	if !t.Before(today.AddDate(0, 0, -1)) {
		return BucketYesterday
	}

	// Days since Monday: Sunday is 6.
	offset := (int(today.Weekday()) + 6) % 7
	if !t.Before(today.AddDate(0, 0, -offset)) {
		return BucketThisWeek
	}

	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	if !t.Before(monthStart) {
		return BucketThisMonth
	}
	if !t.Before(today.AddDate(0, -6, 0)) {
		return BucketLast6Months
	}
	if !t.Before(today.AddDate(-1, 0, 0)) {
		return BucketLastYear
	}
	return BucketOlder
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
