package alert

import "context"

// ChannelSender delivers one Envelope over one notification channel. Each
// binding in this package (slack, telegram, email, webhook) implements it;
// sms and dashboard reuse the generic webhook sender against their own
// configured endpoints (spec §6: "generic JSON webhook").
type ChannelSender interface {
	Send(ctx context.Context, env Envelope) error
}
