// Package mailer enqueues templated emails for asynchronous delivery.
// SMTP itself is an external collaborator: the queue worker builds the
// message and hands it to the configured server, or just logs it outside
// production.
package mailer

import (
	"context"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// Email is one queued send.
type Email struct {
	To       string
	Name     string
	Template Template
	Link     string // only verify/reset carry a link
}

// Enqueuer is the interface the auth state machine depends on.
type Enqueuer interface {
	Enqueue(e Email)
}

// Config describes the SMTP endpoint and sender identity.
type Config struct {
	Host    string
	Port    int
	Name    string
	Address string
	Pass    string
}

// Service is a channel-backed email queue with a send throttle so a burst
// of signup traffic cannot flood the SMTP relay.
type Service struct {
	cfg        Config
	production bool
	queue      chan Email
	limiter    *rate.Limiter
	log        *slog.Logger
}

func NewService(cfg Config, production bool, log *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		production: production,
		queue:      make(chan Email, 128),
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		log:        log,
	}
}

// Start runs the queue worker until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-s.queue:
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
				s.send(e)
			}
		}
	}()
}

// Enqueue accepts the email without blocking the caller. A full queue
// drops the message with a log line rather than stalling a handler.
func (s *Service) Enqueue(e Email) {
	if !ValidTemplates[e.Template] {
		s.log.Error("email_invalid_template", "template", string(e.Template))
		return
	}
	select {
	case s.queue <- e:
	default:
		s.log.Error("email_queue_full", "template", string(e.Template), "to", e.To)
	}
}

func (s *Service) send(e Email) {
	if !s.production {
		s.log.Info("email_dev_mode",
			"to", e.To,
			"template", string(e.Template),
			"subject", subject(e.Template),
			"link", e.Link,
		)
		return
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.Name, s.cfg.Address); err != nil {
		s.log.Error("email_from_invalid", "error", err)
		return
	}
	if err := msg.To(e.To); err != nil {
		s.log.Error("email_to_invalid", "to", e.To, "error", err)
		return
	}
	msg.Subject(subject(e.Template))
	msg.SetBodyString(gomail.TypeTextPlain, body(e))

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Address),
		gomail.WithPassword(s.cfg.Pass),
	)
	if err != nil {
		s.log.Error("email_client_failed", "error", err)
		return
	}
	if err := client.DialAndSend(msg); err != nil {
		s.log.Error("email_send_failed", "to", e.To, "template", string(e.Template), "error", err)
		return
	}
	s.log.Info("email_sent", "template", string(e.Template))
}

// Recorder captures enqueued emails; tests assert on the slice.
type Recorder struct {
	Sent []Email
}

func (r *Recorder) Enqueue(e Email) { r.Sent = append(r.Sent, e) }
