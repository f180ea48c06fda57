// Package exporter drives the DiscordChatExporter CLI: one bounded
// subprocess per channel, failures classified so forbidden channels can be
// denylisted instead of retried forever.
package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/madofuller/discordscraper/internal/checkpoint"
	"github.com/madofuller/discordscraper/internal/logging"
)

type FailureKind string

const (
	FailForbidden FailureKind = "forbidden"
	FailNotFound  FailureKind = "not_found"
	FailTimeout   FailureKind = "timeout"
	FailUnknown   FailureKind = "unknown"
)

// ExportError is a classified export tool failure. Forbidden and
// not-found are denylist-worthy; the rest are retryable on the next run.
type ExportError struct {
	Kind     FailureKind
	ExitCode int
	Stderr   string
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed (%s, exit %d)", e.Kind, e.ExitCode)
}

// Retryable reports whether the failure should be retried on a later run.
func (e *ExportError) Retryable() bool {
	return e.Kind != FailForbidden && e.Kind != FailNotFound
}

// classify maps the tool's exit state to a failure kind. The CLI exits 1
// with diagnostic text on stderr for access problems.
func classify(exitCode int, stderr string, timedOut bool) FailureKind {
	if timedOut {
		return FailTimeout
	}
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "forbidden"):
		return FailForbidden
	case strings.Contains(low, "not found"):
		return FailNotFound
	default:
		return FailUnknown
	}
}

type Runner struct {
	log       *slog.Logger
	bin       string
	token     string
	outputDir string
	timeout   time.Duration
}

func NewRunner(log *slog.Logger, bin, token, outputDir string, timeout time.Duration) *Runner {
	return &Runner{log: log, bin: bin, token: token, outputDir: outputDir, timeout: timeout}
}

// buildArgs assembles the CLI invocation. Exports partition into 1000-
// message files so the checkpoint tracker can read just the last one.
func (r *Runner) buildArgs(channelID, outputPath, after string) []string {
	args := []string{
		"export",
		"--channel", channelID,
		"--token", r.token,
		"--format", "Json",
		"--output", outputPath,
		"--partition", "1000",
	}
	if after != "" {
		args = append(args, "--after", after)
	}
	return args
}

// OutputPath is where a channel's export files land.
func (r *Runner) OutputPath(channelName string) string {
	folder := checkpoint.SanitizeChannelName(channelName)
	return filepath.Join(r.outputDir, folder, folder+".json")
}

// ExportChannel runs one bounded export. A timeout is a failure, never a
// partial success; retrying with an "after" checkpoint is the retry path.
func (r *Runner) ExportChannel(ctx context.Context, channelID, channelName, after string) error {
	outputPath := r.OutputPath(channelName)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, r.buildArgs(channelID, outputPath, after)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	r.log.Info("export_started",
		"channel_id", channelID,
		"channel", channelName,
		"after", after,
		"token", logging.MaskToken(r.token),
	)

	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		r.log.Info("export_done", "channel", channelName, "elapsed", elapsed.String())
		return nil
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	ee := &ExportError{
		Kind:     classify(exitCode, stderr.String(), timedOut),
		ExitCode: exitCode,
		Stderr:   stderr.String(),
	}
	r.log.Warn("export_failed",
		"channel", channelName,
		"kind", string(ee.Kind),
		"exit_code", exitCode,
		"elapsed", elapsed.String(),
	)
	return ee
}
