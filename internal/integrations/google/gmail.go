package google

import (
	"context"

	"google.golang.org/api/gmail/v1"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Gmail sends mail as the authenticated user.
type Gmail struct {
	api APIConfig
}

// NewGmail creates a Gmail backend.
func NewGmail(api APIConfig) *Gmail {
	return &Gmail{api: api}
}

// Send delivers a base64url-encoded RFC 5322 message.
func (g *Gmail) Send(ctx context.Context, cred schema.Credential, raw string) (*actions.SentMessage, error) {
	svc, err := gmail.NewService(ctx, g.api.options(ctx, cred)...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "could not create gmail client").WithCause(err)
	}
	msg, err := svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError("gmail send", err)
	}
	return &actions.SentMessage{ID: msg.Id, ThreadID: msg.ThreadId, Labels: msg.LabelIds}, nil
}

var _ actions.MailBackend = (*Gmail)(nil)
