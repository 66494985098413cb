package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

type memInbox struct {
	rows []model.Notification
	fail error
}

func (m *memInbox) Create(_ context.Context, n *model.Notification) error {
	if m.fail != nil {
		return m.fail
	}
	n.ID = uuid.New()
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memInbox) ListForUser(context.Context, uuid.UUID, bool, int, int) ([]model.Notification, int64, error) {
	return m.rows, int64(len(m.rows)), nil
}

func (m *memInbox) CountUnread(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (m *memInbox) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *memInbox) MarkAllRead(context.Context, uuid.UUID) (int64, error) { return 0, nil }

type memUsers struct {
	byID map[uuid.UUID]model.User
}

func (m *memUsers) Create(context.Context, *model.User) error { return nil }

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := m.byID[id]; ok {
		return &u, nil
	}
	return nil, apperr.NotFound("user")
}

func (m *memUsers) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, apperr.NotFound("user")
}

func (m *memUsers) GetByUsername(context.Context, string) (*model.User, error) {
	return nil, apperr.NotFound("user")
}

func (m *memUsers) List(context.Context, model.Role, int, int) ([]model.User, int64, error) {
	return nil, 0, nil
}

type recordingPusher struct {
	sent map[uuid.UUID]int
}

func (p *recordingPusher) SendTo(id uuid.UUID, _ interface{}) { p.sent[id]++ }

type recordingMailer struct {
	to          []string
	body        string
	hadDeadline bool
	err         error
}

func (m *recordingMailer) Send(ctx context.Context, to []string, _ string, html string) error {
	m.to = append(m.to, to...)
	m.body = html
	_, m.hadDeadline = ctx.Deadline()
	return m.err
}

// blockingMailer holds every Send until release is closed.
type blockingMailer struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (m *blockingMailer) Send(ctx context.Context, _ []string, _ string, _ string) error {
	close(m.started)
	<-m.release
	m.ctxErr = ctx.Err()
	return nil
}

func TestNotifier_PersistsPushesAndMails(t *testing.T) {
	userID := uuid.New()
	subID := uuid.New()
	inbox := &memInbox{}
	pusher := &recordingPusher{sent: map[uuid.UUID]int{}}
	mailer := &recordingMailer{}
	users := &memUsers{byID: map[uuid.UUID]model.User{userID: {ID: userID, Email: "arranger@studio.test"}}}

	n := NewNotifier(inbox, users, pusher, mailer)
	n.Notify(context.Background(), Message{
		Recipient:    userID,
		Title:        "Arrangement rejected",
		Body:         "needs <more> bass",
		SubmissionID: &subID,
	})
	n.Wait()

	require.Len(t, inbox.rows, 1)
	assert.Equal(t, userID, inbox.rows[0].UserID)
	assert.Equal(t, model.NotificationInfo, inbox.rows[0].Type)
	assert.Equal(t, &subID, inbox.rows[0].SubmissionID)
	assert.Equal(t, 1, pusher.sent[userID])
	assert.Equal(t, []string{"arranger@studio.test"}, mailer.to)
	assert.Equal(t, "<p>needs &lt;more&gt; bass</p>", mailer.body)
	assert.True(t, mailer.hadDeadline)
}

func TestNotifier_MailDoesNotBlockOrInheritCancel(t *testing.T) {
	userID := uuid.New()
	inbox := &memInbox{}
	mailer := &blockingMailer{started: make(chan struct{}), release: make(chan struct{})}
	users := &memUsers{byID: map[uuid.UUID]model.User{userID: {ID: userID, Email: "a@b.c"}}}
	n := NewNotifier(inbox, users, nil, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		n.Notify(ctx, Message{Recipient: userID, Title: "Ready"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify waited on the mailer")
	}
	require.Len(t, inbox.rows, 1)

	<-mailer.started
	cancel()
	close(mailer.release)
	n.Wait()
	assert.NoError(t, mailer.ctxErr, "request cancellation must not reach the mail send")
}

func TestNotifier_FailuresAreSwallowed(t *testing.T) {
	userID := uuid.New()
	pusher := &recordingPusher{sent: map[uuid.UUID]int{}}

	n := NewNotifier(&memInbox{fail: errors.New("db down")}, nil, pusher, nil)
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Message{Recipient: userID, Title: "x"})
	})
	assert.Zero(t, pusher.sent[userID], "nothing is pushed when the row was not stored")

	mailer := &recordingMailer{err: errors.New("smtp down")}
	n = NewNotifier(&memInbox{}, &memUsers{byID: map[uuid.UUID]model.User{userID: {ID: userID, Email: "a@b.c"}}}, nil, mailer)
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Message{Recipient: userID, Title: "x"})
		n.Wait()
	})
	assert.Equal(t, []string{"a@b.c"}, mailer.to)
}

func TestNotifier_IgnoresEmptyRecipient(t *testing.T) {
	inbox := &memInbox{}
	NewNotifier(inbox, nil, nil, nil).Notify(context.Background(), Message{Title: "x"})
	assert.Empty(t, inbox.rows)
}
