package automation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gympulse/dispatch"
	"gympulse/models"
)

// Env carries what an action needs besides its own config.
type Env struct {
	Rule     models.AutomationRule
	Dispatch dispatch.Dispatchers
	Now      time.Time
}

// Action performs a rule's effect for one member. The returned result only
// carries status, reason and entity IDs; the engine fills in rule and subject.
// A non-nil error means the store failed and the member's transaction rolls back.
type Action interface {
	Type() models.ActionType
	Execute(ctx context.Context, tx *gorm.DB, env Env, m *models.Member) (ExecutionResult, error)
}

// actionOptions are settings shared by every action type.
type actionOptions struct {
	OncePerMember bool `json:"once_per_member"`
}

// ParseAction builds the action for a rule from its type and JSON config.
func ParseAction(t models.ActionType, raw datatypes.JSONMap) (Action, error) {
	var act Action
	switch t {
	case models.ActionCreateTask:
		act = &createTaskAction{}
	case models.ActionSendMessage:
		act = &sendMessageAction{}
	case models.ActionSendEmail:
		act = &sendEmailAction{}
	case models.ActionNotify:
		act = &notifyAction{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, t)
	}
	if err := decodeConfig(raw, act); err != nil {
		return nil, err
	}
	if err := validateConfig(act); err != nil {
		return nil, err
	}
	if msg, ok := act.(*sendMessageAction); ok && msg.Template != "" {
		if _, known := WhatsAppTemplates[msg.Template]; !known {
			return nil, fmt.Errorf("%w: unknown message template %q", ErrInvalidConfig, msg.Template)
		}
	}
	return act, nil
}

func parseActionOptions(raw datatypes.JSONMap) (actionOptions, error) {
	var opts actionOptions
	err := decodeConfig(raw, &opts)
	return opts, err
}

type createTaskAction struct {
	Title            string `json:"title" validate:"max=200"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	SuggestedMessage string `json:"suggested_message"`
}

func (a *createTaskAction) Type() models.ActionType { return models.ActionCreateTask }

func (a *createTaskAction) Execute(ctx context.Context, tx *gorm.DB, env Env, m *models.Member) (ExecutionResult, error) {
	vars := MemberVars(*m, env.Now)
	title := a.Title
	if title == "" {
		title = "Follow up with {name}"
	}
	memberID := m.ID
	task, created, err := env.Dispatch.Tasks.EnsureTask(ctx, tx, dispatch.TaskSpec{
		GymID:            m.GymID,
		MemberID:         &memberID,
		AssignedToUserID: m.AssignedUserID,
		Title:            Render(title, vars),
		Description:      Render(a.Description, vars),
		Priority:         models.ParseTaskPriority(a.Priority),
		SuggestedMessage: Render(a.SuggestedMessage, vars),
	})
	if err != nil {
		return ExecutionResult{}, err
	}
	res := ExecutionResult{Status: StatusCreated, TaskID: &task.ID}
	if !created {
		res.Status = StatusSkipped
		res.Reason = "open_task_exists"
	}
	return res, nil
}

// sendMessageAction sends a WhatsApp message from a named template or a free
// body. With a template, the rendered body is available as {message}.
type sendMessageAction struct {
	Template  string            `json:"template" validate:"required_without=Body"`
	Body      string            `json:"body"`
	ExtraVars map[string]string `json:"extra_vars"`
}

func (a *sendMessageAction) Type() models.ActionType { return models.ActionSendMessage }

func (a *sendMessageAction) Execute(ctx context.Context, tx *gorm.DB, env Env, m *models.Member) (ExecutionResult, error) {
	if m.Phone == "" {
		return ExecutionResult{Status: StatusSkipped, Reason: "no_phone"}, nil
	}
	vars := MemberVars(*m, env.Now)
	for k, v := range a.ExtraVars {
		vars[k] = v
	}
	body := Render(a.Body, vars)
	templateName := "custom"
	if a.Template != "" {
		templateName = a.Template
		vars["message"] = body
		body = Render(WhatsAppTemplates[a.Template], vars)
	}
	return send(ctx, tx, env, m, dispatch.Message{
		Channel:      models.ChannelWhatsApp,
		Recipient:    m.Phone,
		Body:         body,
		TemplateName: templateName,
	})
}

type sendEmailAction struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

func (a *sendEmailAction) Type() models.ActionType { return models.ActionSendEmail }

func (a *sendEmailAction) Execute(ctx context.Context, tx *gorm.DB, env Env, m *models.Member) (ExecutionResult, error) {
	if m.Email == "" {
		return ExecutionResult{Status: StatusSkipped, Reason: "no_email"}, nil
	}
	vars := MemberVars(*m, env.Now)
	return send(ctx, tx, env, m, dispatch.Message{
		Channel:      models.ChannelEmail,
		Recipient:    m.Email,
		Subject:      Render(a.Subject, vars),
		Body:         Render(a.Body, vars),
		TemplateName: "rule_email",
	})
}

func send(ctx context.Context, tx *gorm.DB, env Env, m *models.Member, msg dispatch.Message) (ExecutionResult, error) {
	memberID := m.ID
	ruleID := env.Rule.ID
	msg.GymID = m.GymID
	msg.MemberID = &memberID
	msg.RuleID = &ruleID

	entry, err := env.Dispatch.Messages.Send(ctx, tx, msg)
	if err != nil {
		return ExecutionResult{}, err
	}
	res := ExecutionResult{MessageLogID: &entry.ID, Reason: entry.ErrorDetail}
	switch entry.Status {
	case models.MessageSent:
		res.Status = StatusSent
	case models.MessageBlocked:
		res.Status = StatusBlocked
	case models.MessageFailed:
		res.Status = StatusFailed
	default:
		res.Status = StatusSkipped
	}
	return res, nil
}

type notifyAction struct {
	Title    string `json:"title" validate:"max=200"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

func (a *notifyAction) Type() models.ActionType { return models.ActionNotify }

func (a *notifyAction) Execute(ctx context.Context, tx *gorm.DB, env Env, m *models.Member) (ExecutionResult, error) {
	vars := MemberVars(*m, env.Now)
	title := a.Title
	if title == "" {
		title = env.Rule.Name
	}
	memberID := m.ID
	n, err := env.Dispatch.Notifications.Create(ctx, tx, dispatch.NotificationSpec{
		GymID:    m.GymID,
		MemberID: &memberID,
		UserID:   m.AssignedUserID,
		Title:    Render(title, vars),
		Message:  Render(a.Message, vars),
		Category: a.Category,
		ExtraData: map[string]interface{}{
			"rule_id":    env.Rule.ID,
			"risk_level": string(m.RiskLevel),
		},
	})
	if err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{Status: StatusNotified, NotificationID: &n.ID}, nil
}
