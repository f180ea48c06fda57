package exporter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/madofuller/discordscraper/internal/checkpoint"
	"github.com/madofuller/discordscraper/internal/subnets"
)

// Policy selects which channels a cycle touches.
type Policy string

const (
	// PolicyNewOnly skips channels that already have an export on disk.
	PolicyNewOnly Policy = "new-only"
	// PolicyResume re-exports known channels from their checkpoint.
	PolicyResume Policy = "resume"
)

// CycleSummary aggregates one export cycle.
type CycleSummary struct {
	Exported        int
	Failed          int
	SkippedDenied   int
	SkippedExported int
	Aborted         int // channels not attempted because the breaker opened
}

// ChannelExporter is what the scheduler needs from the runner.
type ChannelExporter interface {
	ExportChannel(ctx context.Context, channelID, channelName, after string) error
}

// Scheduler walks the configured channel list through the export runner,
// pacing invocations so the source platform is not hammered.
type Scheduler struct {
	log       *slog.Logger
	runner    ChannelExporter
	tracker   *checkpoint.Tracker
	denylist  *Denylist
	limiter   *rate.Limiter
	breaker   *Breaker
	exportDir string
}

func NewScheduler(log *slog.Logger, runner ChannelExporter, tracker *checkpoint.Tracker, denylist *Denylist, limiter *rate.Limiter, exportDir string) *Scheduler {
	return &Scheduler{
		log:       log,
		runner:    runner,
		tracker:   tracker,
		denylist:  denylist,
		limiter:   limiter,
		breaker:   NewBreaker(3, time.Minute),
		exportDir: exportDir,
	}
}

// RunCycle exports every eligible channel once. Forbidden and not-found
// channels go on the denylist; other failures stay eligible for the next
// cycle. The summary is always logged, nothing fails silently.
func (s *Scheduler) RunCycle(ctx context.Context, channels []subnets.Entry, policy Policy) (CycleSummary, error) {
	var sum CycleSummary

	for i, ch := range channels {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		if s.denylist.Contains(ch.ChannelID) {
			sum.SkippedDenied++
			continue
		}

		exported := s.hasExport(ch.Name)
		if policy == PolicyNewOnly && exported {
			sum.SkippedExported++
			continue
		}

		// checked only once a real export attempt is due, so a probe
		// slot is never spent on a skipped channel
		if !s.breaker.Allow() {
			sum.Aborted = len(channels) - i
			s.log.Warn("export_cycle_aborted", "breaker", s.breaker.State(), "remaining", sum.Aborted)
			break
		}

		var after string
		if policy == PolicyResume {
			if id, ok := s.tracker.LastMessageID(ch.Name); ok {
				after = id
				s.log.Info("export_resuming", "channel", ch.Name, "after", after)
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return sum, err
		}

		err := s.runner.ExportChannel(ctx, ch.ChannelID, ch.Name, after)
		if err == nil {
			sum.Exported++
			s.breaker.RecordSuccess()
			continue
		}
		sum.Failed++

		var ee *ExportError
		if errors.As(err, &ee) && !ee.Retryable() {
			// channel-level failure: the service answered, so the
			// breaker counts it as a success; the channel is denylisted
			s.breaker.RecordSuccess()
			s.denylist.Add(ch.ChannelID)
			if err := s.denylist.Save(); err != nil {
				s.log.Warn("denylist_save_failed", "error", err)
			}
			s.log.Info("channel_denylisted", "channel_id", ch.ChannelID, "kind", string(ee.Kind))
			continue
		}
		s.breaker.RecordFailure()
	}

	s.log.Info("export_cycle_done",
		"exported", sum.Exported,
		"failed", sum.Failed,
		"skipped_denied", sum.SkippedDenied,
		"skipped_exported", sum.SkippedExported,
		"aborted", sum.Aborted,
	)
	return sum, nil
}

// hasExport reports whether any export file exists for the channel.
func (s *Scheduler) hasExport(channelName string) bool {
	dir := filepath.Join(s.exportDir, checkpoint.SanitizeChannelName(channelName))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			return true
		}
	}
	return false
}
