package google

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/pkg/schema"
)

// APIConfig points the Calendar and Gmail clients at their endpoints.
type APIConfig struct {
	// Endpoint overrides the API base URL.
	Endpoint string
	// HTTPClient is the transport under the per-call bearer token.
	HTTPClient *http.Client
}

func (c APIConfig) options(ctx context.Context, cred schema.Credential) []option.ClientOption {
	base := c.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	// The executor already refreshed the token; no implicit refresh here.
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: tokenType(cred)})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	return opts
}

// Calendar inserts events into a user's Google Calendar.
type Calendar struct {
	api        APIConfig
	calendarID string
}

// NewCalendar creates a Calendar backend. An empty calendarID means "primary".
func NewCalendar(api APIConfig, calendarID string) *Calendar {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Calendar{api: api, calendarID: calendarID}
}

// CreateEvent inserts ev and returns the created event.
func (c *Calendar) CreateEvent(ctx context.Context, cred schema.Credential, ev actions.CalendarEvent) (*actions.CreatedEvent, error) {
	svc, err := calendar.NewService(ctx, c.api.options(ctx, cred)...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "could not create calendar client").WithCause(err)
	}

	created, err := svc.Events.Insert(c.calendarID, &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &calendar.EventDateTime{DateTime: ev.StartISO, TimeZone: ev.Timezone},
		End:         &calendar.EventDateTime{DateTime: ev.EndISO, TimeZone: ev.Timezone},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError("calendar insert", err)
	}

	out := &actions.CreatedEvent{
		ID:       created.Id,
		Summary:  created.Summary,
		HTMLLink: created.HtmlLink,
	}
	if created.Start != nil {
		out.Start = created.Start.DateTime
	}
	if created.End != nil {
		out.End = created.End.DateTime
	}
	return out, nil
}

// classifyAPIError maps 401 and insufficient-scope 403 responses to
// Unauthenticated; other failures keep the provider message.
func classifyAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "%s failed: %s", op, err.Error()).WithCause(err)
	}
	if gerr.Code == http.StatusUnauthorized || (gerr.Code == http.StatusForbidden && insufficientScope(gerr)) {
		return schema.NewErrorf(schema.ErrCodeUnauthenticated, "%s rejected the credential", op).WithCause(err)
	}
	msg := gerr.Message
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}
	return schema.NewErrorf(schema.ErrCodeExternalCall, "%s failed: %s", op, msg).
		WithCause(err).
		WithDetails(map[string]any{"status": gerr.Code})
}

func insufficientScope(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if item.Reason == "insufficientPermissions" {
			return true
		}
	}
	return strings.Contains(gerr.Message, "insufficient authentication scopes")
}

func tokenType(cred schema.Credential) string {
	if cred.TokenType == "" {
		return "Bearer"
	}
	return cred.TokenType
}

var _ actions.CalendarBackend = (*Calendar)(nil)
