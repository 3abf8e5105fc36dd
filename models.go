package main

import (
	"fmt"
	"time"
)

type Card struct {
	ID       string
	Title    string
	Prefix   string // uppercase key prefix, empty when the tracker omitted the key
	Sequence int64
	Fields   map[string][]TimeEntry // custom-field id -> stored timer records
}

// Key returns the human-readable card key, or "" when the tracker never sent one.
func (c Card) Key() string {
	if c.Prefix == "" {
		return ""
	}
	return fmt.Sprintf("%s-%d", c.Prefix, c.Sequence)
}

type TimeEntry struct {
	UserID     string
	DurationMS int64
	Comment    string
	CreatedAt  time.Time
}

type TrackerUser struct {
	ID    string
	Email string
	Name  string
}

type IdentityLink struct {
	SlackUserID   string
	TrackerUserID string
	Email         string
	LinkedAt      time.Time
}

type LastReport struct {
	SlackUserID string
	ChannelID   string
	MessageTS   string
	PostedAt    time.Time
}

// DayRange returns start-of-day and start-of-next-day for now in loc.
// Records in [start, end) belong to the day: 23:59:59 local is in,
// 00:00:00 the next local day is out.
func DayRange(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
