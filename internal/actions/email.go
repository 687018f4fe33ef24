package actions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/actiondesk/internal/expressions"
	"github.com/rendis/actiondesk/internal/validation"
	"github.com/rendis/actiondesk/pkg/schema"
)

// SentMessage is the mail backend's receipt for a delivered message.
type SentMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	Labels   []string `json:"labels,omitempty"`
}

// MailBackend delivers a base64url-encoded RFC 5322 message.
// Rejected credentials are reported with an Unauthenticated error.
type MailBackend interface {
	Send(ctx context.Context, cred schema.Credential, raw string) (*SentMessage, error)
}

// FileReader gives executors read access to stored files.
type FileReader interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// DefaultEmailProjection is the jq program applied to SentMessage.
const DefaultEmailProjection = `{messageId: .id, threadId: .thread_id}`

const emailInputSchema = `{
  "type": "object",
  "properties": {
    "to": {"type": "string", "format": "email"},
    "subject": {"type": "string", "minLength": 1},
    "body": {"type": "string", "minLength": 1},
    "attachment_path": {"type": "string"}
  },
  "required": ["to", "subject", "body"]
}`

// EmailConfig holds the SendEmail executor's collaborators.
type EmailConfig struct {
	Mail       MailBackend
	Files      FileReader
	Authorizer Authorizer
	Refresher  TokenRefresher
	Validator  validation.Validator
	Projector  Projector
	// Projection overrides DefaultEmailProjection.
	Projection string
	Now        func() time.Time
}

// EmailExecutor sends email from the user's connected mailbox.
type EmailExecutor struct {
	mail       MailBackend
	files      FileReader
	access     accountAccess
	validator  validation.Validator
	projector  Projector
	projection string
}

// NewEmailExecutor creates an EmailExecutor.
func NewEmailExecutor(cfg EmailConfig) *EmailExecutor {
	e := &EmailExecutor{
		mail:  cfg.Mail,
		files: cfg.Files,
		access: accountAccess{
			provider:   schema.ProviderGoogle,
			authorizer: cfg.Authorizer,
			refresher:  cfg.Refresher,
			now:        cfg.Now,
		},
		validator:  cfg.Validator,
		projector:  cfg.Projector,
		projection: cfg.Projection,
	}
	if e.validator == nil {
		e.validator = validation.NewJSONSchemaValidator()
	}
	if e.projector == nil {
		e.projector = expressions.NewGoJQEngine()
	}
	if e.projection == "" {
		e.projection = DefaultEmailProjection
	}
	return e
}

func (e *EmailExecutor) Kind() schema.ActionKind { return schema.KindSendEmail }

func (e *EmailExecutor) Schema() ExecutorSchema {
	return ExecutorSchema{
		Description: "Send an email from the user's Gmail account, optionally with an attachment",
		InputSchema: []byte(emailInputSchema),
		Projection:  e.projection,
	}
}

func (e *EmailExecutor) Execute(ctx context.Context, in Input) Result {
	kind := e.Kind()

	cred, refreshed, err := e.access.credential(ctx, kind, in)
	if err != nil {
		return Result{Outcome: e.access.outcome(kind, in.UserID, err)}
	}
	res := Result{Refreshed: refreshed}

	if err := e.validator.ValidateInput(in.Params, []byte(emailInputSchema)); err != nil {
		res.Outcome = schema.Failed(kind, err)
		return res
	}
	if e.mail == nil {
		res.Outcome = schema.Failed(kind, schema.NewError(schema.ErrCodeActionUnavailable, "mail backend not configured"))
		return res
	}

	msg := EmailMessage{
		To:      stringParam(in.Params, "to", ""),
		Subject: stringParam(in.Params, "subject", ""),
		Body:    withPriorLinks(stringParam(in.Params, "body", ""), in.Prior),
	}

	path := stringParam(in.Params, "attachment_path", "")
	if path == "" {
		if inv, ok := priorResult(in.Prior, schema.KindGenerateInvoice); ok {
			path = stringParam(inv, "file", "")
		}
	}
	if path != "" {
		att, err := e.loadAttachment(ctx, kind, path)
		if err != nil {
			res.Outcome = schema.Failed(kind, err)
			return res
		}
		msg.Attachment = att
	}

	raw, err := BuildMIME(msg)
	if err != nil {
		res.Outcome = schema.Failed(kind, schema.NewError(schema.ErrCodeInternal, "could not build message").WithCause(err))
		return res
	}
	sent, err := e.mail.Send(ctx, *cred, EncodeRaw(raw))
	if err != nil {
		res.Outcome = e.access.outcome(kind, in.UserID, err)
		return res
	}

	payload, err := e.projector.Project(ctx, e.projection, sent)
	if err != nil {
		res.Outcome = schema.Failed(kind, err)
		return res
	}
	payload["to"] = msg.To
	payload["subject"] = msg.Subject
	if msg.Attachment != nil {
		payload["attachment"] = msg.Attachment.Filename
	}
	res.Outcome = schema.Succeeded(kind, payload)
	return res
}

// loadAttachment checks the file exists before reading it so a bad path is a
// local validation failure rather than a send failure.
func (e *EmailExecutor) loadAttachment(ctx context.Context, kind schema.ActionKind, path string) (*Attachment, error) {
	if e.files == nil {
		return nil, schema.NewError(schema.ErrCodeActionUnavailable, "file store not configured").WithKind(kind)
	}
	ok, err := e.files.Exists(ctx, path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "could not check attachment %s", filepath.Base(path)).
			WithKind(kind).WithCause(err)
	}
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "attachment not found: %s", filepath.Base(path)).
			WithKind(kind).
			WithDetails(map[string]any{"field": "attachment_path"})
	}
	data, err := e.files.Read(ctx, path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "could not read attachment %s", filepath.Base(path)).
			WithKind(kind).WithCause(err)
	}
	name := filepath.Base(path)
	return &Attachment{Filename: name, ContentType: ContentTypeFor(name), Data: data}, nil
}

// withPriorLinks appends the calendar link and checkout URL produced earlier
// in the request unless the body already carries them.
func withPriorLinks(body string, prior []schema.Outcome) string {
	var extra []string
	if ev, ok := priorResult(prior, schema.KindSchedule); ok {
		if link := stringParam(ev, "link", ""); link != "" && !strings.Contains(body, link) {
			extra = append(extra, fmt.Sprintf("Calendar invite: %s", link))
		}
	}
	if pay, ok := priorResult(prior, schema.KindCreatePayment); ok {
		if url := stringParam(pay, "checkoutUrl", ""); url != "" && !strings.Contains(body, url) {
			extra = append(extra, fmt.Sprintf("Pay online: %s", url))
		}
	}
	if len(extra) == 0 {
		return body
	}
	return body + "\n\n" + strings.Join(extra, "\n")
}

var _ Executor = (*EmailExecutor)(nil)
