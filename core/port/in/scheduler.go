package in

import "context"

// AutonomousTask names one of the five scheduler task kinds (§4.N).
type AutonomousTask string

const (
	TaskAutoArchive         AutonomousTask = "auto_archive"
	TaskDailySummary        AutonomousTask = "daily_summary"
	TaskFollowUpDetection   AutonomousTask = "follow_up"
	TaskReEvaluateUnknowns  AutonomousTask = "re_evaluate_unknowns"
	TaskMeetingPrep         AutonomousTask = "meeting_prep"
)

// SchedulerService runs one autonomous task for one user (§4.N). RunTask
// owns its own cadence gate (last_run_utc vs configured interval) and is
// safe to call on a tight ticker.
type SchedulerService interface {
	RunTask(ctx context.Context, userID string, task AutonomousTask) error
}
