package actions

import (
	"context"
	"time"

	"github.com/rendis/actiondesk/internal/expressions"
	"github.com/rendis/actiondesk/internal/validation"
	"github.com/rendis/actiondesk/pkg/schema"
)

// CalendarEvent is the event resource the Schedule executor submits.
type CalendarEvent struct {
	Summary     string
	Description string
	StartISO    string
	EndISO      string
	Timezone    string
}

// CreatedEvent is the calendar backend's view of an inserted event.
type CreatedEvent struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	HTMLLink string `json:"html_link"`
}

// CalendarBackend inserts events into the user's calendar.
// Rejected credentials are reported with an Unauthenticated error.
type CalendarBackend interface {
	CreateEvent(ctx context.Context, cred schema.Credential, ev CalendarEvent) (*CreatedEvent, error)
}

// Projector shapes a provider response into an outcome payload.
type Projector interface {
	Project(ctx context.Context, expression string, v any) (map[string]any, error)
}

// DefaultScheduleProjection is the jq program applied to CreatedEvent.
const DefaultScheduleProjection = `{eventId: .id, summary: .summary, start: .start, end: .end, link: .html_link}`

const scheduleInputSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "start_iso": {"type": "string", "minLength": 1},
    "end_iso": {"type": "string", "minLength": 1},
    "timezone": {"type": "string"}
  },
  "required": ["summary", "start_iso", "end_iso"]
}`

// ScheduleConfig holds the Schedule executor's collaborators.
type ScheduleConfig struct {
	Calendar   CalendarBackend
	Authorizer Authorizer
	Refresher  TokenRefresher
	Validator  validation.Validator
	Projector  Projector
	// Projection overrides DefaultScheduleProjection.
	Projection string
	Now        func() time.Time
}

// ScheduleExecutor creates calendar events.
type ScheduleExecutor struct {
	calendar   CalendarBackend
	access     accountAccess
	validator  validation.Validator
	projector  Projector
	projection string
}

// NewScheduleExecutor creates a ScheduleExecutor.
func NewScheduleExecutor(cfg ScheduleConfig) *ScheduleExecutor {
	e := &ScheduleExecutor{
		calendar: cfg.Calendar,
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
		e.projection = DefaultScheduleProjection
	}
	return e
}

func (e *ScheduleExecutor) Kind() schema.ActionKind { return schema.KindSchedule }

func (e *ScheduleExecutor) Schema() ExecutorSchema {
	return ExecutorSchema{
		Description: "Create an event in the user's Google Calendar",
		InputSchema: []byte(scheduleInputSchema),
		Projection:  e.projection,
	}
}

func (e *ScheduleExecutor) Execute(ctx context.Context, in Input) Result {
	kind := e.Kind()

	// No credential means no network call.
	cred, refreshed, err := e.access.credential(ctx, kind, in)
	if err != nil {
		return Result{Outcome: e.access.outcome(kind, in.UserID, err)}
	}
	res := Result{Refreshed: refreshed}

	if err := e.validator.ValidateInput(in.Params, []byte(scheduleInputSchema)); err != nil {
		res.Outcome = schema.Failed(kind, err)
		return res
	}
	if e.calendar == nil {
		res.Outcome = schema.Failed(kind, schema.NewError(schema.ErrCodeActionUnavailable, "calendar backend not configured"))
		return res
	}

	ev := CalendarEvent{
		Summary:     stringParam(in.Params, "summary", ""),
		Description: stringParam(in.Params, "description", ""),
		StartISO:    stringParam(in.Params, "start_iso", ""),
		EndISO:      stringParam(in.Params, "end_iso", ""),
		Timezone:    stringParam(in.Params, "timezone", ""),
	}
	created, err := e.calendar.CreateEvent(ctx, *cred, ev)
	if err != nil {
		res.Outcome = e.access.outcome(kind, in.UserID, err)
		return res
	}

	payload, err := e.projector.Project(ctx, e.projection, created)
	if err != nil {
		res.Outcome = schema.Failed(kind, err)
		return res
	}
	res.Outcome = schema.Succeeded(kind, payload)
	return res
}

var _ Executor = (*ScheduleExecutor)(nil)
