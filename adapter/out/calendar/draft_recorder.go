// Package calendar implements out.CalendarPort as a draft recorder rather
// than a live Google/Microsoft Calendar client (§4.N "Calendar draft
// (supplemented)": no concrete calendar provider is wired, mirroring the
// Mail Client's own OAuth-scope note in §6). A drafted event becomes a
// user_tasks row the user reviews and creates by hand.
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
)

type DraftRecorder struct {
	store out.DocumentStore
}

func NewDraftRecorder(store out.DocumentStore) *DraftRecorder {
	return &DraftRecorder{store: store}
}

var _ out.CalendarPort = (*DraftRecorder)(nil)

func (r *DraftRecorder) CreateDraftEvent(ctx context.Context, userID string, event out.CalendarEvent) (string, error) {
	taskID := "calendar_draft:" + uuid.New().String()

	desc := event.Title
	if event.StartTime != "" {
		desc += " at " + event.StartTime
	}
	if event.Notes != "" {
		desc += ": " + event.Notes
	}

	task := domain.Task{
		TaskID:          taskID,
		UserID:          userID,
		TaskType:        domain.TaskTypeCalendarDraft,
		TaskDescription: desc,
		Stakeholders:    event.Attendees,
		CreationMethod:  domain.CreationMethodAutonomous,
		Status:          domain.TaskStatusOpen,
		CreatedAt:       time.Now().UTC(),
	}

	if err := r.store.Set(ctx, out.CollectionUserTasks, taskID, task); err != nil {
		return "", err
	}
	return taskID, nil
}
