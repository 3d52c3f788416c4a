// Package workspace implements the Log Materializer: resolving an Issue's
// log artifacts, decrypting and unarchiving them into a per-task filesystem
// tree the agent subprocess operates on.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// ArtifactResolver fetches the raw bytes behind a LogArtifact's opaque
// fetch token. Producers that embed the payload directly never reach this
// interface — Materialize short-circuits on a non-empty Payload.
type ArtifactResolver interface {
	Resolve(ctx context.Context, artifact models.LogArtifact) ([]byte, error)
}

// DecryptFunc is the external decryption codec: an opaque pure function,
// bytes in, bytes out. A real deployment wires this to the vendor's
// proprietary codec binary or library; it is never implemented here.
type DecryptFunc func(payload []byte) ([]byte, error)

// CodeMounter advisorially mounts a matched rule's associated source tree
// into the workspace's code/ directory when the rule declares needs_code.
// Failure is recorded, never fatal.
type CodeMounter interface {
	Mount(ctx context.Context, codeDir string, rule *models.Rule) error
}

// Workspace is the materialized result: a directory tree exclusive to one
// Task for its lifetime.
type Workspace struct {
	Root    string
	LogsDir string
	CodeDir string // empty unless a code tree was mounted

	// CodeUnavailable records that needs_code was requested but the code
	// tree could not be mounted; analysis proceeds without it regardless.
	CodeUnavailable bool
}

// EncryptedSuffix is the proprietary suffix identifying an artifact payload
// that must be run through DecryptFunc before it can be inspected.
const EncryptedSuffix = ".enc"

// Materializer resolves, decrypts, and extracts one Issue's log artifacts
// into a fresh workspace directory.
type Materializer struct {
	cfg      *config.WorkspaceConfig
	resolver ArtifactResolver
	decrypt  DecryptFunc
	mounter  CodeMounter
	log      *slog.Logger
}

// New constructs a Materializer. mounter may be nil when no code-mounting
// capability is configured; NeedsCode rules then always record
// CodeUnavailable.
func New(cfg *config.WorkspaceConfig, resolver ArtifactResolver, decrypt DecryptFunc, mounter CodeMounter, log *slog.Logger) *Materializer {
	if log == nil {
		log = slog.Default()
	}
	return &Materializer{cfg: cfg, resolver: resolver, decrypt: decrypt, mounter: mounter, log: log.With("component", "materializer")}
}

// Materialize builds a workspace for taskID from issue's log artifacts,
// sequentially.
// onStage is called before each artifact's fetch/decrypt step so callers
// can emit progress without the materializer knowing about Tasks at all.
func (m *Materializer) Materialize(ctx context.Context, taskID string, issue *models.Issue, rule *models.Rule, onStage func(artifactName, stage string)) (*Workspace, error) {
	root := filepath.Join(m.cfg.Root, taskID)
	logsDir := filepath.Join(root, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	ws := &Workspace{Root: root, LogsDir: logsDir}

	var totalExtracted int64
	for _, artifact := range issue.LogArtifacts {
		if onStage != nil {
			onStage(artifact.Name, "downloading")
		}
		payload, err := m.fetch(ctx, artifact)
		if err != nil {
			return nil, fmt.Errorf("fetching artifact %s: %w", artifact.Name, err)
		}

		if hasEncryptedSuffix(artifact.Name) {
			if onStage != nil {
				onStage(artifact.Name, "decrypting")
			}
			decryptCtx, cancel := context.WithTimeout(ctx, m.cfg.DecryptExtractTimeout)
			payload, err = m.decryptWithTimeout(decryptCtx, payload)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("decrypting artifact %s: %w", artifact.Name, err)
			}
		}

		if onStage != nil {
			onStage(artifact.Name, "extracting")
		}
		extractCtx, cancel := context.WithTimeout(ctx, m.cfg.DecryptExtractTimeout)
		n, err := extractInto(extractCtx, logsDir, strippedName(artifact.Name), payload, m.cfg.MaxEntrySizeBytes, m.cfg.MaxTotalSizeBytes-totalExtracted)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("extracting artifact %s: %w", artifact.Name, err)
		}
		totalExtracted += n
		m.log.Info("materialized artifact", "task_id", taskID, "artifact", artifact.Name, "bytes", humanize.Bytes(uint64(n)))
	}

	if rule != nil && rule.NeedsCode {
		codeDir := filepath.Join(root, "code")
		if m.mounter == nil {
			ws.CodeUnavailable = true
			m.log.Warn("rule needs_code but no code mounter configured", "task_id", taskID, "rule_id", rule.ID)
		} else if err := os.MkdirAll(codeDir, 0o755); err != nil {
			ws.CodeUnavailable = true
			m.log.Warn("failed to create code directory", "task_id", taskID, "error", err)
		} else if err := m.mounter.Mount(ctx, codeDir, rule); err != nil {
			ws.CodeUnavailable = true
			m.log.Warn("code mount failed, proceeding without code tree", "task_id", taskID, "rule_id", rule.ID, "error", err)
		} else {
			ws.CodeDir = codeDir
		}
	}

	return ws, nil
}

// fetch resolves an artifact's bytes: embedded payload takes priority over
// the opaque token so producers may use either mechanism interchangeably.
func (m *Materializer) fetch(ctx context.Context, artifact models.LogArtifact) ([]byte, error) {
	if len(artifact.Payload) > 0 {
		return artifact.Payload, nil
	}
	if artifact.OpaqueToken == "" {
		return nil, fmt.Errorf("artifact %s has neither an embedded payload nor an opaque token", artifact.Name)
	}
	if m.resolver == nil {
		return nil, fmt.Errorf("artifact %s requires a resolver but none is configured", artifact.Name)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.ArtifactFetchTimeout)
	defer cancel()
	return m.resolver.Resolve(fetchCtx, artifact)
}

func (m *Materializer) decryptWithTimeout(ctx context.Context, payload []byte) ([]byte, error) {
	if m.decrypt == nil {
		return nil, fmt.Errorf("artifact is encrypted but no decryption codec is configured")
	}
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := m.decrypt(payload)
		done <- result{out, err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("decryption timed out: %w", ctx.Err())
	case r := <-done:
		return r.out, r.err
	}
}

func hasEncryptedSuffix(name string) bool {
	return len(name) > len(EncryptedSuffix) && name[len(name)-len(EncryptedSuffix):] == EncryptedSuffix
}

func strippedName(name string) string {
	if hasEncryptedSuffix(name) {
		return name[:len(name)-len(EncryptedSuffix)]
	}
	return name
}

// sniffFormat peeks at the first bytes of payload to identify an archive
// format by magic number, independent of file extension (an .enc suffix
// tells us nothing about what's underneath it).
func sniffFormat(payload []byte) string {
	switch {
	case bytes.HasPrefix(payload, []byte{0x50, 0x4B, 0x03, 0x04}), bytes.HasPrefix(payload, []byte{0x50, 0x4B, 0x05, 0x06}):
		return "zip"
	case bytes.HasPrefix(payload, []byte{0x1F, 0x8B}):
		return "gzip"
	case isTar(payload):
		return "tar"
	default:
		return ""
	}
}

// isTar checks for the USTAR magic at its fixed offset.
func isTar(payload []byte) bool {
	const magicOffset = 257
	if len(payload) < magicOffset+5 {
		return false
	}
	return bytes.HasPrefix(payload[magicOffset:], []byte("ustar"))
}
