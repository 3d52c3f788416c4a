package chatnotify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

const maxBlockTextLength = 2900

var stateEmoji = map[models.TaskState]string{
	models.StateDone:      ":white_check_mark:",
	models.StateFailed:    ":x:",
	models.StateCancelled: ":no_entry_sign:",
}

var stateLabel = map[models.TaskState]string{
	models.StateDone:      "Analysis Complete",
	models.StateFailed:    "Analysis Failed",
	models.StateCancelled: "Analysis Cancelled",
}

func issueURL(dashboardURL, issueID string) string {
	if dashboardURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/issues/%s", dashboardURL, issueID)
}

// BuildTaskStartedMessage builds the blocks for a "processing started"
// notification.
func BuildTaskStartedMessage(issueID, taskID, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":arrows_counterclockwise: *Triage started* for issue `%s` (task `%s`)", issueID, taskID)
	if url := issueURL(dashboardURL, issueID); url != "" {
		text += fmt.Sprintf("\n<%s|View issue>", url)
	}
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

// BuildTaskTerminalMessage builds the blocks for a terminal task
// notification: the root cause and customer reply on success, the
// classified error on failure or cancellation.
func BuildTaskTerminalMessage(issueID string, task *models.Task, result *models.AnalysisResult, dashboardURL string) []goslack.Block {
	emoji := stateEmoji[task.State]
	if emoji == "" {
		emoji = ":question:"
	}
	label := stateLabel[task.State]
	if label == "" {
		label = "Analysis " + string(task.State)
	}

	var blocks []goslack.Block
	header := fmt.Sprintf("%s *%s*", emoji, label)

	if task.State == models.StateDone && result != nil {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false), nil, nil))
		body := fmt.Sprintf("*Root cause:* %s\n\n*Customer reply:*\n%s", result.RootCause, result.UserReply)
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForChat(body), false, false), nil, nil))
	} else {
		if task.Error != nil {
			header += fmt.Sprintf("\n\n*Error (%s):*\n%s", task.Error.Kind, truncateForChat(task.Error.Message))
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false), nil, nil))
	}

	if url := issueURL(dashboardURL, issueID); url != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Issue", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

// BuildEscalationMessage builds the blocks for a manual escalation
// request raised against an Issue.
func BuildEscalationMessage(issueID, reason, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":rotating_light: *Escalation requested* for issue `%s`", issueID)
	if reason != "" {
		text += fmt.Sprintf("\n\n*Reason:*\n%s", truncateForChat(reason))
	}
	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil))
	if url := issueURL(dashboardURL, issueID); url != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Issue", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}
	return blocks
}

func truncateForChat(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
