package alert

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSender posts to a Slack incoming webhook via slack-go/slack (spec
// §6: "Slack incoming webhook").
type SlackSender struct {
	WebhookURL string
}

func (s SlackSender) Send(ctx context.Context, env Envelope) error {
	msg := slack.WebhookMessage{
		Text: fmt.Sprintf("[%s] %s/%s: %s", env.Severity, env.DataSource, env.MetricName, env.Message),
		Attachments: []slack.Attachment{{
			Color: colorForSeverity(env.Severity),
			Fields: []slack.AttachmentField{
				{Title: "Observed", Value: fmt.Sprintf("%g", env.ObservedValue), Short: true},
				{Title: "Baseline", Value: fmt.Sprintf("%g", env.BaselineValue), Short: true},
				{Title: "Threshold", Value: fmt.Sprintf("%g", env.Threshold), Short: true},
			},
		}},
	}
	return slack.PostWebhookContext(ctx, s.WebhookURL, &msg)
}

func colorForSeverity(severity string) string {
	switch severity {
	case "critical":
		return "danger"
	case "warning":
		return "warning"
	default:
		return "#439FE0"
	}
}
