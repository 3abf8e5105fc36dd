package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	lineCardNotFound = "card not found"
	lineNoEntryToday = "no timesheet entry for today"
)

// ErrNotLinked means the caller has no identity link. It is returned before
// any tracker call is made.
var ErrNotLinked = errors.New("caller is not linked to a tracker account")

// DayEntries returns the user's logged-time records on card whose creation
// instant falls on the day of now in loc. A card without the timer field is
// valid and yields nothing. Record order is the stored order; no re-sort.
func DayEntries(card Card, userID, fieldID string, loc *time.Location, now time.Time) []TimeEntry {
	records, ok := card.Fields[fieldID]
	if !ok {
		return nil
	}
	start, end := DayRange(now, loc)

	var entries []TimeEntry
	for _, rec := range records {
		if rec.UserID != userID {
			continue
		}
		created := rec.CreatedAt.In(loc)
		if created.Before(start) || !created.Before(end) {
			continue
		}
		entries = append(entries, rec)
	}
	return entries
}

// FormatDuration renders milliseconds as zero-padded HH:MM, minutes rounded
// to nearest. Hours run past 24 when a duration exceeds a day.
func FormatDuration(ms int64) string {
	minutes := (ms + 30_000) / 60_000
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ReportLine is one row of the rendered report: a card key (or the raw token
// when resolution failed), and either a duration+comment or a sentinel text.
type ReportLine struct {
	Key      string
	Duration string
	Comment  string
	Sentinel string
}

// BuildReportForCaller resolves the caller's tracker identity and builds
// their report. An unlinked caller yields ErrNotLinked without a single
// tracker call.
func BuildReportForCaller(db *sql.DB, gw *TrackerGateway, cfg Config, slackUserID string, tokens []string, now time.Time) (string, error) {
	link, linked, err := GetIdentityLink(db, slackUserID)
	if err != nil {
		return "", fmt.Errorf("looking up identity link: %w", err)
	}
	if !linked {
		return "", ErrNotLinked
	}
	return BuildTimesheetReport(gw, cfg, link.TrackerUserID, tokens, now)
}

// BuildTimesheetReport runs every token through parse -> resolve -> extract
// and renders the aggregated body. Unparseable and unresolved tokens become
// "card not found" lines; a resolved card with no entries today becomes a
// "no timesheet entry" line; neither aborts the batch. A *GatewayError
// anywhere aborts the whole batch: no partial report is ever returned.
func BuildTimesheetReport(g *TrackerGateway, cfg Config, trackerUserID string, tokens []string, now time.Time) (string, error) {
	var lines []ReportLine
	for _, token := range tokens {
		tokenLines, err := reportToken(g, cfg, trackerUserID, token, now)
		if err != nil {
			return "", err
		}
		lines = append(lines, tokenLines...)
	}
	return renderReport(lines, now.In(cfg.Location)), nil
}

func reportToken(g *TrackerGateway, cfg Config, trackerUserID, token string, now time.Time) ([]ReportLine, error) {
	ref, scopeHint := ParseToken(token, cfg.TrackerDomain)
	display := displayKey(token, ref)

	if ref.Kind == RefUnparsed {
		log.Printf("timesheet token %q unparseable", token)
		return []ReportLine{{Key: display, Sentinel: lineCardNotFound}}, nil
	}

	card, found, err := ResolveCard(g, ref, scopeHint, cfg.Scopes, cfg.MaxPagesPerScope)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Printf("timesheet token %q unresolved", token)
		return []ReportLine{{Key: display, Sentinel: lineCardNotFound}}, nil
	}
	if key := card.Key(); key != "" {
		display = key
	}

	entries := DayEntries(card, trackerUserID, cfg.TimerFieldID, cfg.Location, now)
	if len(entries) == 0 {
		return []ReportLine{{Key: display, Sentinel: lineNoEntryToday}}, nil
	}

	lines := make([]ReportLine, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, ReportLine{
			Key:      display,
			Duration: FormatDuration(entry.DurationMS),
			Comment:  entry.Comment,
		})
	}
	return lines, nil
}

func displayKey(token string, ref CardRef) string {
	switch ref.Kind {
	case RefKey:
		return fmt.Sprintf("%s-%d", ref.Prefix, ref.Sequence)
	case RefOpaqueID:
		return ref.ID
	default:
		return strings.TrimSpace(token)
	}
}

func renderReport(lines []ReportLine, day time.Time) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Timesheet for %s:", day.Format("Mon Jan 2"))
	for _, line := range lines {
		if line.Sentinel != "" {
			fmt.Fprintf(&out, "\n%s - %s", line.Key, line.Sentinel)
			continue
		}
		fmt.Fprintf(&out, "\n%s - %s", line.Key, line.Duration)
		fmt.Fprintf(&out, "\n    • %s", flattenComment(line.Comment))
	}
	return out.String()
}

// flattenComment keeps a record's free-text comment on its bullet line;
// embedded newlines would otherwise break the indented layout.
func flattenComment(comment string) string {
	comment = strings.ReplaceAll(comment, "\r\n", "\n")
	return strings.ReplaceAll(comment, "\n", " ")
}
