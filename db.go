package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS identity_links (
		slack_user_id   TEXT PRIMARY KEY,
		tracker_user_id TEXT NOT NULL,
		email           TEXT NOT NULL,
		linked_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS last_reports (
		slack_user_id TEXT NOT NULL,
		channel_id    TEXT NOT NULL,
		message_ts    TEXT NOT NULL,
		posted_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (slack_user_id, channel_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

// SaveIdentityLink creates or overwrites the caller's tracker identity link.
func SaveIdentityLink(db *sql.DB, slackUserID, trackerUserID, email string) error {
	_, err := db.Exec(
		`INSERT INTO identity_links (slack_user_id, tracker_user_id, email, linked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(slack_user_id) DO UPDATE SET
		   tracker_user_id = excluded.tracker_user_id,
		   email = excluded.email,
		   linked_at = excluded.linked_at`,
		slackUserID, trackerUserID, email, time.Now().UTC(),
	)
	return err
}

// GetIdentityLink reports the caller's tracker user id, if linked.
func GetIdentityLink(db *sql.DB, slackUserID string) (IdentityLink, bool, error) {
	var link IdentityLink
	err := db.QueryRow(
		`SELECT slack_user_id, tracker_user_id, email, linked_at
		 FROM identity_links WHERE slack_user_id = ?`,
		slackUserID,
	).Scan(&link.SlackUserID, &link.TrackerUserID, &link.Email, &link.LinkedAt)
	if err == sql.ErrNoRows {
		return IdentityLink{}, false, nil
	}
	if err != nil {
		return IdentityLink{}, false, err
	}
	return link, true, nil
}

// DeleteIdentityLink removes the caller's link and reports whether one existed.
func DeleteIdentityLink(db *sql.DB, slackUserID string) (bool, error) {
	res, err := db.Exec(`DELETE FROM identity_links WHERE slack_user_id = ?`, slackUserID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ListIdentityLinks returns every link, ordered by link time.
func ListIdentityLinks(db *sql.DB) ([]IdentityLink, error) {
	rows, err := db.Query(
		`SELECT slack_user_id, tracker_user_id, email, linked_at
		 FROM identity_links ORDER BY linked_at, slack_user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []IdentityLink
	for rows.Next() {
		var link IdentityLink
		if err := rows.Scan(&link.SlackUserID, &link.TrackerUserID, &link.Email, &link.LinkedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// SaveLastReport records the message ts of the caller's most recent report in
// a channel, overwriting any previous one.
func SaveLastReport(db *sql.DB, slackUserID, channelID, messageTS string) error {
	_, err := db.Exec(
		`INSERT INTO last_reports (slack_user_id, channel_id, message_ts, posted_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(slack_user_id, channel_id) DO UPDATE SET
		   message_ts = excluded.message_ts,
		   posted_at = excluded.posted_at`,
		slackUserID, channelID, messageTS, time.Now().UTC(),
	)
	return err
}

func GetLastReport(db *sql.DB, slackUserID, channelID string) (LastReport, bool, error) {
	var rec LastReport
	err := db.QueryRow(
		`SELECT slack_user_id, channel_id, message_ts, posted_at
		 FROM last_reports WHERE slack_user_id = ? AND channel_id = ?`,
		slackUserID, channelID,
	).Scan(&rec.SlackUserID, &rec.ChannelID, &rec.MessageTS, &rec.PostedAt)
	if err == sql.ErrNoRows {
		return LastReport{}, false, nil
	}
	if err != nil {
		return LastReport{}, false, err
	}
	return rec, true, nil
}

func ClearLastReport(db *sql.DB, slackUserID, channelID string) error {
	_, err := db.Exec(
		`DELETE FROM last_reports WHERE slack_user_id = ? AND channel_id = ?`,
		slackUserID, channelID)
	return err
}
