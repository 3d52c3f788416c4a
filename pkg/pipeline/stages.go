package pipeline

import (
	"errors"
	"strings"

	"github.com/hwvendor/triage-orchestrator/pkg/agentrunner"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/rules"
)

// stageState maps a Materializer onStage callback's stage name to the
// Task state it corresponds to.
func stageState(stage string) models.TaskState {
	switch stage {
	case "decrypting":
		return models.StateDecrypting
	case "extracting":
		return models.StateExtracting
	default:
		return models.StateDownloading
	}
}

// stagePercent maps a Materializer stage to a point within its table row
// (resolving artifacts 5-20, decrypt+extract 20-40).
func stagePercent(stage string) int {
	switch stage {
	case "downloading":
		return 12
	case "decrypting":
		return 25
	case "extracting":
		return 35
	default:
		return 20
	}
}

// materializeErrorKind classifies a Materialize failure by which step its
// wrapped error message came from (fetch, decrypt, or extract).
func materializeErrorKind(err error) models.TaskErrorKind {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "fetching artifact"):
		return models.ErrArtifactFetch
	case strings.HasPrefix(msg, "decrypting artifact"):
		return models.ErrDecryptFailure
	case strings.HasPrefix(msg, "extracting artifact"):
		return models.ErrExtractFailure
	default:
		return models.ErrArtifactFetch
	}
}

// runErrorKind recovers the classified TaskErrorKind from an
// agentrunner.RunError, defaulting to AgentCrash for any other error
// shape (e.g. a Select failure already classified as AgentUnavailable by
// the caller).
func runErrorKind(err error) models.TaskErrorKind {
	var runErr *agentrunner.RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	return models.ErrAgentCrash
}

// agentOptions derives per-run agent options from the matched rule. No
// rule-level override exists beyond routing (provider selection), so
// every field defers to the selected provider's own configuration.
func agentOptions(rule *models.Rule) agentrunner.Options {
	return agentrunner.Options{}
}

// buildPrompt concatenates the rule chain's bodies (dependencies first,
// primary last, per rules.Select's ordering contract), the pre-extracted
// log snippets, and a note when the code tree could not be mounted.
func buildPrompt(selection *rules.Selection, snippets string, codeUnavailable bool) string {
	var b strings.Builder
	for _, r := range selection.Chain {
		b.WriteString("## ")
		b.WriteString(r.Name)
		b.WriteString("\n\n")
		b.WriteString(r.Body)
		b.WriteString("\n\n")
	}
	if snippets != "" {
		b.WriteString("## Log excerpts\n\n")
		b.WriteString(snippets)
		b.WriteString("\n\n")
	}
	if codeUnavailable {
		b.WriteString("Note: the associated source code tree could not be mounted; analyze from logs alone.\n\n")
	}
	b.WriteString("Respond with a fenced ```json block containing problem_type, root_cause, confidence, key_evidence, next_steps, and needs_engineer.\n")
	return b.String()
}
