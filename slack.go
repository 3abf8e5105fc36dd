package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

func StartSlackBot(cfg Config, db *sql.DB, gw *TrackerGateway, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, db, gw, cfg, cmd)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, db *sql.DB, gw *TrackerGateway, cfg Config, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/timesheet":
		handleTimesheet(api, db, gw, cfg, cmd)
	case "/ts":
		handleTimesheet(api, db, gw, cfg, cmd)
	case "/link":
		handleLink(api, db, gw, cmd)
	case "/unlink":
		handleUnlink(api, db, cmd)
	case "/delreport":
		handleDeleteReport(api, db, cmd)
	case "/help":
		handleHelp(api, cmd)
	}
}

func handleTimesheet(api *slack.Client, db *sql.DB, gw *TrackerGateway, cfg Config, cmd slack.SlashCommand) {
	tokens := SplitTokens(cmd.Text)
	if len(tokens) == 0 {
		postEphemeral(api, cmd, "Usage: /timesheet <card> [card...]\nCards can be keys (`BOK-5106`), ids, or pasted tracker links.")
		return
	}

	body, err := BuildReportForCaller(db, gw, cfg, cmd.UserID, tokens, time.Now())
	if errors.Is(err, ErrNotLinked) {
		postEphemeral(api, cmd, "You haven't linked a tracker account yet. Use `/link your@email` first.")
		log.Printf("timesheet denied user=%s: %v", cmd.UserID, err)
		return
	}
	if err != nil {
		// Status, endpoint and payload stay in the operator log; the caller
		// only sees a generic failure.
		logGatewayError("timesheet", cmd.UserID, err)
		postEphemeral(api, cmd, "Couldn't reach the tracker right now, please try again later.")
		return
	}

	_, ts, err := api.PostMessage(cmd.ChannelID, slack.MsgOptionText(body, false))
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error posting report: %v", err))
		log.Printf("timesheet post error user=%s channel=%s: %v", cmd.UserID, cmd.ChannelID, err)
		return
	}
	if err := SaveLastReport(db, cmd.UserID, cmd.ChannelID, ts); err != nil {
		log.Printf("timesheet last-report save error user=%s channel=%s: %v", cmd.UserID, cmd.ChannelID, err)
	}
	log.Printf("timesheet posted user=%s channel=%s tokens=%d ts=%s", cmd.UserID, cmd.ChannelID, len(tokens), ts)
}

func handleLink(api *slack.Client, db *sql.DB, gw *TrackerGateway, cmd slack.SlashCommand) {
	email := strings.TrimSpace(cmd.Text)
	if email == "" || !strings.Contains(email, "@") {
		postEphemeral(api, cmd, "Usage: /link your@email — the email of your tracker account.")
		return
	}

	user, found, err := FindUserByEmail(gw, email)
	if err != nil {
		logGatewayError("link", cmd.UserID, err)
		postEphemeral(api, cmd, "Couldn't reach the tracker right now, please try again later.")
		return
	}
	if !found {
		postEphemeral(api, cmd, fmt.Sprintf("No tracker account found for %s.", email))
		log.Printf("link not found user=%s email=%s", cmd.UserID, email)
		return
	}

	if err := SaveIdentityLink(db, cmd.UserID, user.ID, user.Email); err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error saving link: %v", err))
		log.Printf("link save error user=%s: %v", cmd.UserID, err)
		return
	}
	name := user.Name
	if name == "" {
		name = user.Email
	}
	postEphemeral(api, cmd, fmt.Sprintf("Linked to tracker account %s.", name))
	log.Printf("link saved user=%s tracker_user=%s", cmd.UserID, user.ID)
}

func handleUnlink(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	wasLinked, err := DeleteIdentityLink(db, cmd.UserID)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error removing link: %v", err))
		log.Printf("unlink error user=%s: %v", cmd.UserID, err)
		return
	}
	if !wasLinked {
		postEphemeral(api, cmd, "You had no linked tracker account.")
		return
	}
	postEphemeral(api, cmd, "Tracker account unlinked.")
	log.Printf("unlink done user=%s", cmd.UserID)
}

func handleDeleteReport(api *slack.Client, db *sql.DB, cmd slack.SlashCommand) {
	rec, found, err := GetLastReport(db, cmd.UserID, cmd.ChannelID)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error looking up your last report: %v", err))
		log.Printf("delreport lookup error user=%s channel=%s: %v", cmd.UserID, cmd.ChannelID, err)
		return
	}
	if !found {
		postEphemeral(api, cmd, "No report of yours to delete in this channel.")
		return
	}

	if _, _, err := api.DeleteMessage(cmd.ChannelID, rec.MessageTS); err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error deleting report: %v", err))
		log.Printf("delreport delete error user=%s channel=%s ts=%s: %v", cmd.UserID, cmd.ChannelID, rec.MessageTS, err)
		return
	}
	if err := ClearLastReport(db, cmd.UserID, cmd.ChannelID); err != nil {
		log.Printf("delreport clear error user=%s channel=%s: %v", cmd.UserID, cmd.ChannelID, err)
	}
	postEphemeral(api, cmd, "Your last report in this channel was deleted.")
	log.Printf("delreport done user=%s channel=%s ts=%s", cmd.UserID, cmd.ChannelID, rec.MessageTS)
}

func handleHelp(api *slack.Client, cmd slack.SlashCommand) {
	help := "*TimesheetBot commands:*\n" +
		"• `/link your@email` — Link your Slack user to your tracker account\n" +
		"• `/unlink` — Remove the link\n" +
		"• `/timesheet <card> [card...]` (or `/ts`) — Post today's logged time for the given cards\n" +
		"• `/delreport` — Delete your last posted report in this channel\n\n" +
		"Cards can be keys (`BOK-5106`), internal ids, or pasted tracker links."
	postEphemeral(api, cmd, help)
}

func logGatewayError(op, userID string, err error) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		log.Printf("%s gateway failure user=%s endpoint=%s status=%d body=%s err=%v",
			op, userID, gwErr.Endpoint, gwErr.Status, gwErr.Body, gwErr.Err)
		return
	}
	log.Printf("%s error user=%s: %v", op, userID, err)
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	postEphemeralTo(api, cmd.ChannelID, cmd.UserID, text)
}

func postEphemeralTo(api *slack.Client, channelID, userID, text string) {
	_, err := api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}
