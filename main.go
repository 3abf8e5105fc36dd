package main

import (
	"log"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()
	appliedTimeout := ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. Tracker=%s Org=%s Scopes=%d MaxPagesPerScope=%d Timezone=%s HTTPTimeout=%s",
		cfg.TrackerURL, cfg.TrackerOrgID, len(cfg.Scopes), cfg.MaxPagesPerScope, cfg.Timezone, appliedTimeout)

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	gw := NewTrackerGateway(cfg)

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	StartReminderScheduler(cfg, db, api)

	log.Println("Starting TimesheetBot...")
	if err := StartSlackBot(cfg, db, gw, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
