package alert

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/turphai/boomwatch/internal/apperrors"
)

// WebhookSender POSTs the JSON envelope to a configured URL, used directly
// for the "webhook" channel and, with a different target URL, by the
// dashboard and sms channels (spec §6: both are "a generic JSON webhook" in
// this core's view — the dashboard and SMS gateway details are external
// collaborators).
type WebhookSender struct {
	Client *resty.Client
	URL    string
}

func (s WebhookSender) Send(ctx context.Context, env Envelope) error {
	resp, err := s.Client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(env).
		Post(s.URL)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindDispatch, "webhooksender", "post envelope")
	}
	if resp.IsError() {
		return apperrors.Newf(apperrors.KindDispatch, "webhooksender", "webhook returned %d", resp.StatusCode())
	}
	return nil
}
