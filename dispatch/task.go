package dispatch

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gympulse/models"
)

// TaskSpec describes a task to create for a member or a lead.
type TaskSpec struct {
	GymID            uint
	MemberID         *uint
	LeadID           *uint
	AssignedToUserID *uint
	Title            string
	Description      string
	Priority         models.TaskPriority
	SuggestedMessage string
}

type TaskDispatcher struct{}

func NewTaskDispatcher() *TaskDispatcher {
	return &TaskDispatcher{}
}

// EnsureTask creates the task unless an open task with the same title already
// exists for the same subject. It returns the existing or new task and
// whether it was created.
func (d *TaskDispatcher) EnsureTask(ctx context.Context, tx *gorm.DB, spec TaskSpec) (*models.Task, bool, error) {
	q := tx.WithContext(ctx).
		Scopes(models.ForGym(spec.GymID)).
		Where("title = ? AND status IN ?", spec.Title, models.OpenTaskStatuses)
	switch {
	case spec.MemberID != nil:
		q = q.Where("member_id = ?", *spec.MemberID)
	case spec.LeadID != nil:
		q = q.Where("lead_id = ?", *spec.LeadID)
	default:
		return nil, false, errors.New("task needs a member or a lead")
	}

	var existing models.Task
	err := q.First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup open task %q: %w", spec.Title, err)
	}

	priority := spec.Priority
	if priority == "" {
		priority = models.PriorityHigh
	}
	task := models.Task{
		GymID:            spec.GymID,
		MemberID:         spec.MemberID,
		LeadID:           spec.LeadID,
		AssignedToUserID: spec.AssignedToUserID,
		Title:            spec.Title,
		Description:      spec.Description,
		Priority:         priority,
		Status:           models.TaskTodo,
		SuggestedMessage: spec.SuggestedMessage,
	}
	if err := tx.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, false, fmt.Errorf("create task %q: %w", spec.Title, err)
	}
	return &task, true, nil
}
