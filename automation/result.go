// Package automation evaluates gym-defined trigger -> action rules against
// members and leads and dispatches the resulting actions.
package automation

import (
	"errors"

	"gympulse/models"
)

var (
	ErrUnknownTrigger = errors.New("unknown trigger type")
	ErrUnknownAction  = errors.New("unknown action type")
	ErrInvalidConfig  = errors.New("invalid rule configuration")
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusSent     Status = "sent"
	StatusNotified Status = "notified"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
	StatusBlocked  Status = "blocked"
	StatusFailed   Status = "failed"
)

const (
	SubjectMember = "member"
	SubjectLead   = "lead"
	SubjectRule   = "rule"
)

// ExecutionResult is the outcome of one rule for one subject. Rule-level
// failures use SubjectType "rule" and the rule ID as subject.
type ExecutionResult struct {
	RuleID         uint              `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	SubjectID      uint              `json:"subject_id"`
	SubjectType    string            `json:"subject_type"`
	Action         models.ActionType `json:"action"`
	Status         Status            `json:"status"`
	Reason         string            `json:"reason,omitempty"`
	TaskID         *uint             `json:"task_id,omitempty"`
	NotificationID *uint             `json:"notification_id,omitempty"`
	MessageLogID   *uint             `json:"message_log_id,omitempty"`
}

// Triggered reports whether the action took effect.
func (r ExecutionResult) Triggered() bool {
	switch r.Status {
	case StatusCreated, StatusSent, StatusNotified:
		return true
	}
	return false
}
