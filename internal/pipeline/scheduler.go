package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/LiamFearon/LocalAINews/internal/logger"
)

// Scheduler triggers ingestion cycles and the daily topic reset from cron
// expressions (five fields, local time).
type Scheduler struct {
	cron *cron.Cron
	orch *Orchestrator
	log  logger.Logger
}

// NewScheduler registers the cycle schedule and, when non-empty, the topic reset
// schedule. Jobs run with ctx once Start is called.
func NewScheduler(ctx context.Context, orch *Orchestrator, cycleSpec, resetSpec string, log logger.Logger) (*Scheduler, error) {
	if orch == nil {
		return nil, errors.New("scheduler: orchestrator is nil")
	}
	log = logger.Ensure(log)
	cl := cronLogger{log: log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	s := &Scheduler{cron: c, orch: orch, log: log}
	if _, err := c.AddFunc(strings.TrimSpace(cycleSpec), func() { s.runCycle(ctx) }); err != nil {
		return nil, fmt.Errorf("parse cycle schedule %q: %w", cycleSpec, err)
	}
	if spec := strings.TrimSpace(resetSpec); spec != "" {
		if _, err := c.AddFunc(spec, orch.ResetTopics); err != nil {
			return nil, fmt.Errorf("parse topic reset schedule %q: %w", resetSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.orch.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleRunning) {
			s.log.InfoObj("scheduled cycle skipped, previous cycle still running", "scheduler_cycle_skipped", nil)
			return
		}
		s.log.ErrorObj("scheduled cycle aborted", "scheduler_cycle_aborted", map[string]any{"error": err.Error()})
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context that is done when running jobs finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.DebugObj(msg, "scheduler_cron", kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := kvFields(keysAndValues)
	if err != nil {
		fields["error"] = err.Error()
	}
	l.log.ErrorObj(msg, "scheduler_cron_error", fields)
}

func kvFields(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
