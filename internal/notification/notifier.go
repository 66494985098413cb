// Package notification delivers fire-and-forget messages to single users.
package notification

import (
	"context"
	"html"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"studio-backend/internal/logging"
	"studio-backend/internal/model"
	"studio-backend/internal/repository"
)

// Message is what the workflow hands to the sink.
type Message struct {
	Recipient    uuid.UUID
	Title        string
	Body         string
	Type         string
	SubmissionID *uuid.UUID
}

// Sink accepts messages without reporting failure to the caller.
type Sink interface {
	Notify(ctx context.Context, msg Message)
}

// Pusher delivers a payload to a user's live connections.
type Pusher interface {
	SendTo(userID uuid.UUID, v interface{})
}

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

const mailTimeout = 30 * time.Second

type Notifier struct {
	repo   repository.NotificationRepository
	users  repository.UserRepository
	pusher Pusher
	mailer Mailer

	mailWG sync.WaitGroup
}

// NewNotifier wires the persisted inbox. pusher and mailer may be nil.
func NewNotifier(repo repository.NotificationRepository, users repository.UserRepository, pusher Pusher, mailer Mailer) *Notifier {
	return &Notifier{repo: repo, users: users, pusher: pusher, mailer: mailer}
}

func (n *Notifier) Notify(ctx context.Context, msg Message) {
	log := logging.FromContext(ctx).WithField("recipient", msg.Recipient)
	if msg.Recipient == uuid.Nil {
		return
	}
	if msg.Type == "" {
		msg.Type = model.NotificationInfo
	}

	row := &model.Notification{
		UserID:       msg.Recipient,
		Title:        msg.Title,
		Message:      msg.Body,
		Type:         msg.Type,
		SubmissionID: msg.SubmissionID,
	}
	if err := n.repo.Create(ctx, row); err != nil {
		log.WithError(err).Warn("notification could not be stored")
		return
	}

	if n.pusher != nil {
		n.pusher.SendTo(msg.Recipient, row)
	}

	if n.mailer != nil && n.users != nil {
		user, err := n.users.GetByID(ctx, msg.Recipient)
		if err != nil {
			log.WithError(err).Debug("notification recipient has no account, email skipped")
			return
		}
		n.sendMail(ctx, log, user.Email, msg)
	}
}

// sendMail delivers on its own goroutine, detached from the caller's
// cancellation and bounded by mailTimeout.
func (n *Notifier) sendMail(ctx context.Context, log *logrus.Entry, to string, msg Message) {
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	body := "<p>" + html.EscapeString(msg.Body) + "</p>"
	n.mailWG.Add(1)
	go func() {
		defer n.mailWG.Done()
		defer cancel()
		if err := n.mailer.Send(mailCtx, []string{to}, msg.Title, body); err != nil {
			log.WithError(err).Warn("notification email failed")
		}
	}()
}

// Wait blocks until every queued email has been attempted.
func (n *Notifier) Wait() {
	n.mailWG.Wait()
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, Message) {}
