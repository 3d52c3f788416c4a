package chatnotify

import (
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func TestBuildTaskStartedMessage(t *testing.T) {
	blocks := BuildTaskStartedMessage("issue-1", "task-1", "https://triage.example.com")
	require.Len(t, blocks, 1)

	section := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, section.Text.Text, ":arrows_counterclockwise:")
	assert.Contains(t, section.Text.Text, "issue-1")
	assert.Contains(t, section.Text.Text, "https://triage.example.com/issues/issue-1")
}

func TestBuildTaskTerminalMessage_Done(t *testing.T) {
	task := &models.Task{TaskID: "task-1", State: models.StateDone}
	result := &models.AnalysisResult{RootCause: "firmware deadlock", UserReply: "please update firmware"}
	blocks := BuildTaskTerminalMessage("issue-1", task, result, "https://triage.example.com")

	require.GreaterOrEqual(t, len(blocks), 3)
	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":white_check_mark:")
	assert.Contains(t, header.Text.Text, "Analysis Complete")

	body := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, body.Text.Text, "firmware deadlock")
	assert.Contains(t, body.Text.Text, "please update firmware")

	action := blocks[2].(*goslack.ActionBlock)
	require.Len(t, action.Elements.ElementSet, 1)
	btn := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	assert.Contains(t, btn.URL, "https://triage.example.com/issues/issue-1")
}

func TestBuildTaskTerminalMessage_Failed(t *testing.T) {
	task := &models.Task{
		TaskID: "task-2",
		State:  models.StateFailed,
		Error:  &models.TaskError{Kind: models.ErrAgentTimeout, Message: "agent exceeded 20m budget"},
	}
	blocks := BuildTaskTerminalMessage("issue-2", task, nil, "")

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":x:")
	assert.Contains(t, header.Text.Text, "Analysis Failed")
	assert.Contains(t, header.Text.Text, "AgentTimeout")
	assert.Contains(t, header.Text.Text, "agent exceeded 20m budget")
}

func TestBuildEscalationMessage(t *testing.T) {
	blocks := BuildEscalationMessage("issue-3", "customer is VIP, needs priority review", "https://triage.example.com")
	require.GreaterOrEqual(t, len(blocks), 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":rotating_light:")
	assert.Contains(t, header.Text.Text, "issue-3")
	assert.Contains(t, header.Text.Text, "customer is VIP")
}
