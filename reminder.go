package main

import (
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// StartReminderScheduler starts a cron-based scheduler that DMs every linked
// user a reminder to log their time on the tracker.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 17 * * 1-5" (weekdays 5pm), "30 16 * * 5" (Fridays 16:30).
func StartReminderScheduler(cfg Config, db *sql.DB, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.ReminderSchedule)
	if schedule == "" {
		log.Println("Reminder disabled (reminder_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid reminder_schedule '%s': %v — reminders disabled", schedule, err)
		return
	}
	log.Printf("Reminders scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next reminder at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)
			sendReminders(api, db, time.Now().In(cfg.Location))
		}
	}()
}

func sendReminders(api *slack.Client, db *sql.DB, now time.Time) {
	links, err := ListIdentityLinks(db)
	if err != nil {
		log.Printf("reminder: listing links error: %v", err)
		return
	}
	if len(links) == 0 {
		log.Println("reminder: no linked users, nothing to send")
		return
	}

	msg := ReminderMessage(now)
	for _, link := range links {
		channel, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
			Users: []string{link.SlackUserID},
		})
		if err != nil {
			log.Printf("Error opening DM with %s: %v", link.SlackUserID, err)
			continue
		}

		_, _, err = api.PostMessage(channel.ID, slack.MsgOptionText(msg, false))
		if err != nil {
			log.Printf("Error sending reminder to %s: %v", link.SlackUserID, err)
		} else {
			log.Printf("Sent reminder to %s", link.SlackUserID)
		}
	}
}

// ReminderMessage renders the daily reminder text for the given local day.
func ReminderMessage(now time.Time) string {
	return "Hey! Friendly reminder to log your time on the tracker for " +
		now.Format("Mon Jan 2") + ".\n" +
		"Check your day with `/timesheet <card>` (e.g. `/timesheet BOK-5106`)."
}
