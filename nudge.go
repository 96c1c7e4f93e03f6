package main

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// nudgeThreshold is the completion percentage below which a reviewer gets a
// personal reminder.
const nudgeThreshold = 100.0

// DigestData is one scheduler tick's snapshot of the screening state.
type DigestData struct {
	Progress []ProgressRow
	Groups   []GroupStatus
}

type GroupStatus struct {
	GroupNo   int
	Complete  bool
	Conflicts bool
}

// CollectDigest recomputes progress and per-group status from the store.
func CollectDigest(db *sql.DB, cfg Config) (DigestData, error) {
	var data DigestData
	progress, err := ProgressReport(db, cfg)
	if err != nil {
		return data, err
	}
	data.Progress = progress

	for g := 1; g <= cfg.GroupCount; g++ {
		complete, conflicts, err := CheckGroupStatus(db, cfg, g)
		if err != nil {
			return data, err
		}
		data.Groups = append(data.Groups, GroupStatus{GroupNo: g, Complete: complete, Conflicts: conflicts})
	}
	return data, nil
}

// BuildDigestMessage renders the channel digest: per-group status lines
// followed by per-reviewer progress, grouped by group.
func BuildDigestMessage(cfg Config, data DigestData) string {
	var b strings.Builder
	b.WriteString("*Screening progress*\n")

	for _, g := range data.Groups {
		state := "in progress"
		switch {
		case g.Complete && g.Conflicts:
			state = "complete, conflicts to resolve"
		case g.Complete:
			state = "complete"
		}
		b.WriteString(fmt.Sprintf("• %s: %s\n", cfg.GroupName(g.GroupNo), state))
	}

	rows := make([]ProgressRow, len(data.Progress))
	copy(rows, data.Progress)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].GroupNo != rows[j].GroupNo {
			return rows[i].GroupNo < rows[j].GroupNo
		}
		return rows[i].Username < rows[j].Username
	})
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %s (%s): %d/%d (%.0f%%)\n",
			r.Username, cfg.GroupName(r.GroupNo), r.Done, r.Total, r.Percent()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildNudgeMessage renders the personal reminder for one reviewer who has
// not finished their slice.
func BuildNudgeMessage(cfg Config, row ProgressRow) string {
	remaining := row.Total - row.Done
	return fmt.Sprintf(
		"Hey! Friendly reminder: you have %d article(s) left to screen in %s (%d/%d done).",
		remaining, cfg.GroupName(row.GroupNo), row.Done, row.Total,
	)
}

// RunDigest posts the digest to the configured channel and DMs reviewers who
// are behind. Send failures are logged, never fatal.
func RunDigest(db *sql.DB, cfg Config, api *slack.Client) error {
	data, err := CollectDigest(db, cfg)
	if err != nil {
		return err
	}

	if cfg.DigestChannelID != "" {
		msg := BuildDigestMessage(cfg, data)
		if _, _, err := api.PostMessage(cfg.DigestChannelID, slack.MsgOptionText(msg, false)); err != nil {
			log.Printf("Error posting digest to %s: %v", cfg.DigestChannelID, err)
		}
	}

	for _, row := range data.Progress {
		if row.Total == 0 || row.Percent() >= nudgeThreshold {
			continue
		}
		slackID, ok := cfg.SlackUserIDs[row.Username]
		if !ok || slackID == "" {
			continue
		}
		channel, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
			Users: []string{slackID},
		})
		if err != nil {
			log.Printf("Error opening DM with %s: %v", row.Username, err)
			continue
		}
		_, _, err = api.PostMessage(channel.ID, slack.MsgOptionText(BuildNudgeMessage(cfg, row), false))
		if err != nil {
			log.Printf("Error sending nudge to %s: %v", row.Username, err)
		} else {
			log.Printf("Sent nudge to %s", row.Username)
		}
	}
	return nil
}

// StartNudgeScheduler runs the digest on the configured cron schedule.
// The schedule is a standard 5-field cron expression (minute hour day-of-month
// month day-of-week). Examples: "0 9 * * 1-5" (weekdays 9am), "0 9 * * 5"
// (Fridays 9am). Blocks until the process exits.
func StartNudgeScheduler(db *sql.DB, cfg Config, api *slack.Client) error {
	schedule := strings.TrimSpace(cfg.NudgeSchedule)
	if schedule == "" {
		return fmt.Errorf("nudge_schedule is not set")
	}
	if !cfg.SlackConfigured() {
		return fmt.Errorf("slack_bot_token is not configured")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid nudge_schedule '%s': %v", schedule, err)
	}

	log.Printf("Digest scheduled (cron: %s) for %d reviewers", schedule, len(cfg.SlackUserIDs))

	for {
		now := time.Now().In(cfg.Location)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		time.Sleep(wait)

		if err := RunDigest(db, cfg, api); err != nil {
			log.Printf("Digest error: %v", err)
		}
	}
}
