// Package alert delivers operational notifications. Delivery is fire-and-log:
// a failed notification never fails the operation that produced it.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/stratalabs/vestflow/internal/treasury"
)

// Slack posts treasury alerts to a Slack channel.
type Slack struct {
	api     *slack.Client
	channel string
	log     *slog.Logger
}

// NewSlack creates a Slack alerter posting to the given channel.
func NewSlack(botToken, channel string, log *slog.Logger) *Slack {
	if log == nil {
		log = slog.Default()
	}
	return &Slack{
		api:     slack.New(botToken),
		channel: channel,
		log:     log,
	}
}

// Critical posts a critical treasury solvency alert. Failures are logged and
// swallowed.
func (s *Slack) Critical(ctx context.Context, r *treasury.Report) {
	text := fmt.Sprintf(
		":rotating_light: Treasury solvency is *critical*: balance %.2f, still owed %.2f, shortfall %.2f tokens.",
		r.Balance, r.RemainingNeeded, -r.Buffer,
	)
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(slack.Attachment{
			Color: "danger",
			Fields: []slack.AttachmentField{
				{Title: "Balance", Value: fmt.Sprintf("%.2f", r.Balance), Short: true},
				{Title: "Remaining needed", Value: fmt.Sprintf("%.2f", r.RemainingNeeded), Short: true},
				{Title: "Total allocated", Value: fmt.Sprintf("%.2f", r.TotalAllocated), Short: true},
				{Title: "Total claimed", Value: fmt.Sprintf("%.2f", r.TotalClaimed), Short: true},
			},
		}),
	)
	if err != nil {
		s.log.Error("failed to post treasury alert to slack", "channel", s.channel, "error", err)
		return
	}
	s.log.Info("posted critical treasury alert", "channel", s.channel)
}
