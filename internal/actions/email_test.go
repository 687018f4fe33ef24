package actions

import (
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"

	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emailParams() map[string]any {
	return map[string]any{
		"to":      "john@x.com",
		"subject": "Your invoice",
		"body":    "Hi John, please find the invoice attached.",
	}
}

func decodeRaw(t *testing.T, raw string) *mail.Message {
	t.Helper()
	b, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg, err := mail.ReadMessage(strings.NewReader(string(b)))
	require.NoError(t, err)
	return msg
}

func TestEmail_NoCredential_AuthRequired(t *testing.T) {
	m := &fakeMail{}
	e := NewEmailExecutor(EmailConfig{Mail: m, Authorizer: fakeAuthorizer{}, Now: fixedNow})
	res := e.Execute(context.Background(), Input{UserID: "amy@x.com", Params: emailParams(), Credentials: credentialMap{}})

	assert.Equal(t, schema.OutcomeAuthRequired, res.Outcome.Status)
	assert.Contains(t, res.Outcome.AuthURL, "amy@x.com")
	assert.Zero(t, m.calls)
}

func TestEmail_PlainText(t *testing.T) {
	m := &fakeMail{}
	e := NewEmailExecutor(EmailConfig{Mail: m, Now: fixedNow})
	res := e.Execute(context.Background(), Input{
		UserID:      "amy@x.com",
		Params:      emailParams(),
		Credentials: googleCreds("amy@x.com", validCred()),
	})

	require.Equal(t, schema.OutcomeSuccess, res.Outcome.Status, res.Outcome.Error)
	assert.Equal(t, "msg-1", res.Outcome.Result["messageId"])
	assert.Equal(t, "john@x.com", res.Outcome.Result["to"])
	assert.Equal(t, "Your invoice", res.Outcome.Result["subject"])

	msg := decodeRaw(t, m.raw)
	assert.Equal(t, "john@x.com", msg.Header.Get("To"))
	assert.Equal(t, "Your invoice", msg.Header.Get("Subject"))
	mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)
	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	assert.Equal(t, "Hi John, please find the invoice attached.", string(body))
}

func TestEmail_MissingAttachment_ValidationErrorNoSend(t *testing.T) {
	m := &fakeMail{}
	e := NewEmailExecutor(EmailConfig{Mail: m, Files: newMemFiles(), Now: fixedNow})
	p := emailParams()
	p["attachment_path"] = "/invoices/missing.xlsx"

	res := e.Execute(context.Background(), Input{
		UserID:      "amy@x.com",
		Params:      p,
		Credentials: googleCreds("amy@x.com", validCred()),
	})

	assert.Equal(t, schema.OutcomeError, res.Outcome.Status)
	assert.Equal(t, "attachment not found: missing.xlsx", res.Outcome.Error)
	assert.Zero(t, m.calls)
}

func TestEmail_AttachesPriorInvoiceAndLinks(t *testing.T) {
	files := newMemFiles()
	p, err := files.Write(context.Background(), "invoice_INV-1_John.xlsx", []byte("sheet-bytes"))
	require.NoError(t, err)

	m := &fakeMail{}
	e := NewEmailExecutor(EmailConfig{Mail: m, Files: files, Now: fixedNow})
	prior := []schema.Outcome{
		schema.Succeeded(schema.KindGenerateInvoice, map[string]any{"invoiceNumber": "INV-1", "file": p}),
		schema.Succeeded(schema.KindCreatePayment, map[string]any{"checkoutUrl": "https://checkout.example.com/c/1"}),
	}
	res := e.Execute(context.Background(), Input{
		UserID:      "amy@x.com",
		Params:      emailParams(),
		Credentials: googleCreds("amy@x.com", validCred()),
		Prior:       prior,
	})

	require.Equal(t, schema.OutcomeSuccess, res.Outcome.Status, res.Outcome.Error)
	assert.Equal(t, "invoice_INV-1_John.xlsx", res.Outcome.Result["attachment"])

	msg := decodeRaw(t, m.raw)
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	text, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(text)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Pay online: https://checkout.example.com/c/1")

	att, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "invoice_INV-1_John.xlsx", att.FileName())
	encoded, err := io.ReadAll(att)
	require.NoError(t, err)
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, "sheet-bytes", string(data))
}

func TestEmail_ProviderUnauthenticated_AuthRequired(t *testing.T) {
	m := &fakeMail{err: schema.NewError(schema.ErrCodeUnauthenticated, "401")}
	e := NewEmailExecutor(EmailConfig{Mail: m, Authorizer: fakeAuthorizer{}, Now: fixedNow})
	res := e.Execute(context.Background(), Input{
		UserID:      "amy@x.com",
		Params:      emailParams(),
		Credentials: googleCreds("amy@x.com", validCred()),
	})
	assert.Equal(t, schema.OutcomeAuthRequired, res.Outcome.Status)
}

func TestWithPriorLinks(t *testing.T) {
	prior := []schema.Outcome{
		schema.Succeeded(schema.KindSchedule, map[string]any{"link": "https://cal/1"}),
	}
	assert.Equal(t, "See you\n\nCalendar invite: https://cal/1", withPriorLinks("See you", prior))
	assert.Equal(t, "Join at https://cal/1", withPriorLinks("Join at https://cal/1", prior))

	failed := []schema.Outcome{{Kind: schema.KindSchedule, Status: schema.OutcomeError}}
	assert.Equal(t, "See you", withPriorLinks("See you", failed))
}

func TestBuildMIME_EncodesNonASCIISubject(t *testing.T) {
	raw, err := BuildMIME(EmailMessage{To: "a@b.co", Subject: "Café meeting", Body: "hello"})
	require.NoError(t, err)
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Café meeting", subject)
}
