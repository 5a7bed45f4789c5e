package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
)

const taskExtractionSystemPrompt = `Extract any concrete action items the recipient must perform from this email. Output strict JSON: {"tasks":[{"description":"...","deadline":"RFC3339 or empty","stakeholders":["..."]}]}. If there are none, output {"tasks":[]}. Output JSON only.`

type extractedTasksJSON struct {
	Tasks []struct {
		Description  string   `json:"description"`
		Deadline     string   `json:"deadline"`
		Stakeholders []string `json:"stakeholders"`
	} `json:"tasks"`
}

// extractTasks implements §4.L step 10's LLM-backed task extraction,
// failing open to no tasks on any LLM or parse error (§4.L "fail-open").
func extractTasks(ctx context.Context, llm out.LLMPort, msg *domain.Message) []domain.Task {
	userPrompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", msg.Subject, msg.BodyText)

	raw, err := llm.Complete(ctx, taskExtractionSystemPrompt, userPrompt, 300, 0.0)
	if err != nil {
		return nil
	}

	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var parsed extractedTasksJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &parsed); err != nil {
		return nil
	}

	tasks := make([]domain.Task, 0, len(parsed.Tasks))
	for _, t := range parsed.Tasks {
		if strings.TrimSpace(t.Description) == "" {
			continue
		}
		task := domain.Task{
			TaskID:           msg.MessageID + ":" + fmt.Sprint(len(tasks)),
			UserID:           msg.UserID,
			TaskType:         domain.TaskTypeExtracted,
			TaskDescription:  t.Description,
			Stakeholders:     t.Stakeholders,
			RelatedMessageID: msg.MessageID,
			CreationMethod:   domain.CreationMethodAutonomous,
			Status:           domain.TaskStatusOpen,
			CreatedAt:        time.Now().UTC(),
		}
		if deadline, err := time.Parse(time.RFC3339, t.Deadline); err == nil {
			task.Deadline = &deadline
		}
		tasks = append(tasks, task)
	}
	return tasks
}
