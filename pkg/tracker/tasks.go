package tracker

import (
	"context"
	"strings"

	"agency-tracker/pkg/changefeed"
	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/model"
)

// TransitionResult is the committed task and the sync pass that followed it.
type TransitionResult struct {
	Task model.Task `json:"task"`
	Sync SyncResult `json:"sync"`
}

// TransitionTask moves a task to next. BLOCKED needs a non-blank reason;
// any other status clears the reason. Every committed transition stamps
// last_update_at and then syncs the owning project. Nothing is written when
// validation fails.
func (t *Tracker) TransitionTask(ctx context.Context, taskID string, next model.TaskStatus, reason string) (TransitionResult, error) {
	var res TransitionResult

	status, err := model.ParseTaskStatus(string(next))
	if err != nil {
		return res, invalid("status", err.Error())
	}
	reason = strings.TrimSpace(reason)
	if status == model.StatusBlocked && reason == "" {
		return res, invalid("blocked_reason", "a reason is required to block a task")
	}

	task, err := t.repo.task(ctx, taskID)
	if err != nil {
		return res, err
	}

	now := stamp(t.now())
	task.Status = status
	task.LastUpdateAt = now
	task.BlockedReason = nil
	if status == model.StatusBlocked {
		task.BlockedReason = &reason
	}
	patch := datastore.Row{
		"status":         string(status),
		"blocked_reason": task.BlockedReason,
		"last_update_at": now,
	}
	if err := t.repo.updateTask(ctx, taskID, patch); err != nil {
		return res, err
	}
	res.Task = task
	t.log.Info().Str("task_id", taskID).Str("project_id", task.ProjectID).
		Str("status", string(status)).Msg("task transitioned")
	t.feed.Publish(changefeed.Change{
		Kind:      changefeed.TaskStatus,
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		Content:   map[string]any{"status": status, "blocked_reason": task.BlockedReason},
	})

	// The transition is committed; a failed sync is repaired by the next one.
	res.Sync, err = t.SyncProjectStatus(ctx, task.ProjectID)
	if err != nil {
		t.log.Warn().Err(err).Str("project_id", task.ProjectID).Msg("project sync after transition failed")
		res.Sync = SyncResult{ProjectID: task.ProjectID, Failed: true}
	}
	return res, nil
}

// BlockDraft is the pending edit opened when a user picks BLOCKED. It is
// committed with ConfirmBlock; dropping it leaves the task untouched.
type BlockDraft struct {
	TaskID     string           `json:"task_id"`
	PrevStatus model.TaskStatus `json:"prev_status"`
	Reason     string           `json:"reason"`
}

// BeginBlock opens a draft for task, prefilled with any existing reason.
func BeginBlock(task model.Task) BlockDraft {
	return BlockDraft{
		TaskID:     task.ID,
		PrevStatus: task.Status,
		Reason:     model.Deref(task.BlockedReason),
	}
}

// ConfirmBlock commits a draft as a BLOCKED transition.
func (t *Tracker) ConfirmBlock(ctx context.Context, d BlockDraft) (TransitionResult, error) {
	return t.TransitionTask(ctx, d.TaskID, model.StatusBlocked, d.Reason)
}

// ReassignTask hands a task to another team member. Admin only.
func (t *Tracker) ReassignTask(ctx context.Context, actorID, taskID, userID string) (model.Task, error) {
	if _, err := t.requireAdmin(ctx, actorID, "reassign task"); err != nil {
		return model.Task{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Task{}, invalid("assignee_user_id", "an assignee is required")
	}
	if _, err := t.repo.user(ctx, userID); err != nil {
		return model.Task{}, invalid("assignee_user_id", "unknown team member "+userID)
	}

	task, err := t.repo.task(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	now := stamp(t.now())
	if err := t.repo.updateTask(ctx, taskID, datastore.Row{
		"assignee_user_id": userID,
		"last_update_at":   now,
	}); err != nil {
		return model.Task{}, err
	}
	task.AssigneeUserID = userID
	task.LastUpdateAt = now
	t.feed.Publish(changefeed.Change{
		Kind:      changefeed.TaskAssignee,
		ProjectID: task.ProjectID,
		TaskID:    taskID,
		ActorID:   actorID,
		Content:   map[string]any{"assignee_user_id": userID},
	})
	return task, nil
}

// MarkReminded records that a follow-up was sent. The cooldown only gates
// sending, so this always succeeds for an existing task.
func (t *Tracker) MarkReminded(ctx context.Context, taskID string) (model.Task, error) {
	task, err := t.repo.task(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	now := stamp(t.now())
	if err := t.repo.updateTask(ctx, taskID, datastore.Row{"last_reminded_at": now}); err != nil {
		return model.Task{}, err
	}
	task.LastRemindedAt = &now
	t.feed.Publish(changefeed.Change{Kind: changefeed.TaskReminded, ProjectID: task.ProjectID, TaskID: taskID})
	return task, nil
}
