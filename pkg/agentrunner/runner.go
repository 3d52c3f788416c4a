// Package agentrunner invokes an external LLM agent CLI as a subprocess
// confined to a task's workspace, enforcing timeout, cancellation, and
// bounded-output contracts uniformly across provider variants.
package agentrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// Options are the per-run knobs passed down from the matched rule and any
// task-level override.
type Options struct {
	Timeout       time.Duration
	MaxTurns      int
	ModelOverride string
}

// Result carries the raw agent transcript plus the effective provider
// name, so callers can record which agent actually ran after any fallback.
type Result struct {
	Transcript string
	Stderr     string
	AgentName  string
}

// RunError reports a closed failure kind for agent invocation, surfaced
// directly as the Task's terminal error category.
type RunError struct {
	Kind    models.TaskErrorKind
	Message string
}

func (e *RunError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Runner is the uniform capability every provider variant implements.
type Runner interface {
	Name() string
	Run(ctx context.Context, prompt, workspaceDir string, opts Options) (*Result, error)
	Available(ctx context.Context) (bool, string, error)
}

// ArgBuilder renders a provider's fixed args plus this run's options into
// the final CLI argument list. Each provider variant supplies its own.
type ArgBuilder func(cfg *config.AgentProviderConfig, opts Options) []string

// CLIRunner is the shared os/exec-based implementation used by every
// provider variant; only the ArgBuilder differs between them.
type CLIRunner struct {
	cfg       *config.AgentProviderConfig
	buildArgs ArgBuilder
	routing   *config.AgentRoutingConfig
}

func NewCLIRunner(cfg *config.AgentProviderConfig, routing *config.AgentRoutingConfig, buildArgs ArgBuilder) *CLIRunner {
	return &CLIRunner{cfg: cfg, buildArgs: buildArgs, routing: routing}
}

func (r *CLIRunner) Name() string { return r.cfg.Name }

// Available probes the provider binary with a version flag; a disabled
// provider is reported unavailable without ever shelling out.
func (r *CLIRunner) Available(ctx context.Context) (bool, string, error) {
	if !r.cfg.Enabled {
		return false, "", nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(probeCtx, r.cfg.Command, "--version")
	out, err := cmd.Output()
	if err != nil {
		return false, "", fmt.Errorf("probing %s: %w", r.cfg.Name, err)
	}
	return true, strings.TrimSpace(string(out)), nil
}

// Run spawns the provider's CLI subprocess with workspaceDir as its
// current directory, feeds prompt on stdin, and enforces timeout and
// cancellation by terminating the whole process group.
func (r *CLIRunner) Run(ctx context.Context, prompt, workspaceDir string, opts Options) (*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	args := append(append([]string{}, r.cfg.Args...), r.buildArgs(r.cfg, opts)...)
	cmd := exec.Command(r.cfg.Command, args...)
	cmd.Dir = workspaceDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = strings.NewReader(prompt)

	stdoutLimit := r.routing.StdoutLimitBytes
	stderrLimit := r.routing.StderrLimitBytes
	if stdoutLimit <= 0 {
		stdoutLimit = 16 << 20
	}
	if stderrLimit <= 0 {
		stderrLimit = 1 << 20
	}
	stdout := newBoundedBuffer(stdoutLimit)
	stderr := newBoundedBuffer(stderrLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, &RunError{Kind: models.ErrAgentCrash, Message: fmt.Sprintf("starting %s: %v", r.cfg.Name, err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return nil, &RunError{
				Kind:    models.ErrAgentCrash,
				Message: fmt.Sprintf("%s exited with error: %v; stderr: %s", r.cfg.Name, err, lastLines(stderr.String(), 20)),
			}
		}
		return &Result{Transcript: stdout.String(), Stderr: stderr.String(), AgentName: r.cfg.Name}, nil

	case <-timer.C:
		terminateGroup(cmd, r.routing.KillGrace)
		<-done
		return nil, &RunError{Kind: models.ErrAgentTimeout, Message: fmt.Sprintf("%s exceeded %s timeout", r.cfg.Name, timeout)}

	case <-ctx.Done():
		terminateGroup(cmd, r.routing.KillGrace)
		<-done
		return nil, &RunError{Kind: models.ErrCancelled, Message: "task cancelled"}
	}
}

// terminateGroup signals the whole process group: SIGTERM, then SIGKILL
// after grace if it has not exited. Signalling a group that has already
// exited returns ESRCH, which is expected and ignored.
func terminateGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	if grace <= 0 {
		grace = 5 * time.Second
	}
	time.Sleep(grace)
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// boundedBuffer truncates writes past limit, appending an explicit marker
// exactly once rather than silently dropping overflow.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newBoundedBuffer(limit int64) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.truncated {
		return len(p), nil
	}
	remaining := b.limit - int64(b.buf.Len())
	if remaining <= 0 {
		b.buf.WriteString("\n...[truncated: output exceeded buffer limit]...\n")
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.buf.WriteString("\n...[truncated: output exceeded buffer limit]...\n")
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string { return b.buf.String() }
