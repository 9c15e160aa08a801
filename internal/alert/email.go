package alert

import (
	"context"
	"fmt"
	"net/smtp"
)

// EmailSender delivers via net/smtp. No ecosystem SMTP client stood out
// across the retrieved examples beyond HTML pre-mailers unrelated to plain
// alert delivery, so this binding stays on the standard library (see
// DESIGN.md).
type EmailSender struct {
	Addr     string // host:port
	Auth     smtp.Auth
	From     string
	To       []string
}

func (s EmailSender) Send(ctx context.Context, env Envelope) error {
	subject := fmt.Sprintf("[%s] %s/%s alert", env.Severity, env.DataSource, env.MetricName)
	body := fmt.Sprintf("%s\n\nobserved=%g\nbaseline=%g\nthreshold=%g\ntriggered_at=%s\n",
		env.Message, env.ObservedValue, env.BaselineValue, env.Threshold, env.TriggeredAt)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.From, joinAddrs(s.To), subject, body)
	return smtp.SendMail(s.Addr, s.Auth, s.From, s.To, []byte(msg))
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
