package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"candlekeeper/internal/model"
)

// Collector runs collection batches.
type Collector interface {
	CollectForward(ctx context.Context, symbols []string, to time.Time) []model.CollectionOutcome
	CollectBackward(ctx context.Context, symbols []string, from, to time.Time) []model.CollectionOutcome
	DetectAndFillGaps(ctx context.Context, symbols []string, from time.Time) []model.CollectionOutcome
}

// State of the scheduler lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"   // last run failed unexpectedly; next tick still fires
	StateStopped State = "stopped" // terminal
)

// Mode selects which batch operation a manual trigger runs.
type Mode string

const (
	ModeBackward Mode = "backward"
	ModeForward  Mode = "forward"
	ModeGapfill  Mode = "gapfill"
)

// TriggerRequest asks for a manual collection run.
type TriggerRequest struct {
	Mode    Mode
	From    time.Time
	To      time.Time
	Symbols []string // empty means the configured universe
}

// TriggerResult reports whether a manual run was accepted.
type TriggerResult struct {
	Accepted bool      `json:"accepted"`
	Message  string    `json:"message"`
	RunID    uuid.UUID `json:"run_id,omitempty"`
}

// Status is a snapshot of the scheduler lifecycle.
type Status struct {
	State          State         `json:"state"`
	Interval       time.Duration `json:"interval"`
	RunCount       int64         `json:"run_count"`
	MissedTicks    int64         `json:"missed_ticks"`
	LastRunTime    time.Time     `json:"last_run_time"`
	LastRunSuccess bool          `json:"last_run_success"`
	LastError      string        `json:"last_error,omitempty"`
	NextRunTime    time.Time     `json:"next_run_time"`
}

// CollectionStatus reports what collection work is or was running.
type CollectionStatus struct {
	Running          bool                      `json:"running"`
	CurrentOperation string                    `json:"current_operation,omitempty"`
	LastRunID        uuid.UUID                 `json:"last_run_id,omitempty"`
	LastResults      []model.CollectionOutcome `json:"-"`
}

// Config holds scheduler configuration.
type Config struct {
	Interval     time.Duration // Forward-collection cadence (default: 1h)
	MisfireGrace time.Duration // Allowed tick lateness before skipping (default: 5m)
	Symbols      []string      // Universe for scheduled runs
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		MisfireGrace: 5 * time.Minute,
	}
}

// Scheduler drives periodic forward collection and serializes it with
// manual triggers: at most one run is in flight at any time.
type Scheduler struct {
	cfg       Config
	collector Collector
	logger    *slog.Logger

	cron *gocron.Scheduler
	job  *gocron.Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is injectable for tests.
	now func() time.Time

	mu           sync.Mutex
	state        State
	currentOp    string
	runCount     int64
	missedTicks  int64
	lastRunID    uuid.UUID
	lastRunTime  time.Time
	lastRunOK    bool
	lastErr      error
	lastResults  []model.CollectionOutcome
	expectedFire time.Time
}

// New creates a new Scheduler.
func New(cfg Config, collector Collector, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:       cfg,
		collector: collector,
		logger:    logger,
		state:     StateIdle,
		now:       time.Now,
	}
}

// Start begins the periodic schedule. The first forward run fires
// immediately, then every Interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = gocron.NewScheduler(time.UTC)
	job, err := s.cron.Every(s.cfg.Interval).SingletonMode().StartImmediately().Do(s.scheduledRun)
	if err != nil {
		return fmt.Errorf("schedule forward collection: %w", err)
	}
	s.job = job
	s.cron.StartAsync()

	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"misfire_grace", s.cfg.MisfireGrace,
		"symbols", len(s.cfg.Symbols),
	)
	return nil
}

// Stop halts the schedule, cancels any in-flight run, and waits for it
// to wind down or for ctx to expire. The scheduler cannot be restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		s.cron.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerManual starts a manual run if no other run is in flight.
// An accepted run executes on its own goroutine bound to the scheduler
// lifecycle, not to the request context; rejection names the operation
// currently holding the slot.
func (s *Scheduler) TriggerManual(ctx context.Context, req TriggerRequest) TriggerResult {
	run, err := s.buildRun(req)
	if err != nil {
		return TriggerResult{Accepted: false, Message: err.Error()}
	}

	op := string(req.Mode)
	id, ok := s.tryBegin(op)
	if !ok {
		return TriggerResult{Accepted: false, Message: s.busyMessage()}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCollection(s.runCtx(), id, op, run)
	}()

	return TriggerResult{Accepted: true, Message: "collection started", RunID: id}
}

// Status returns a snapshot of the scheduler lifecycle.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:          s.state,
		Interval:       s.cfg.Interval,
		RunCount:       s.runCount,
		MissedTicks:    s.missedTicks,
		LastRunTime:    s.lastRunTime,
		LastRunSuccess: s.lastRunOK,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.job != nil {
		st.NextRunTime = s.job.NextRun()
	}
	return st
}

// CollectionStatus returns what is running now and the last run's
// per-asset outcomes.
func (s *Scheduler) CollectionStatus() CollectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CollectionStatus{
		Running:          s.state == StateRunning,
		CurrentOperation: s.currentOp,
		LastRunID:        s.lastRunID,
		LastResults:      append([]model.CollectionOutcome(nil), s.lastResults...),
	}
}

// scheduledRun is the cron tick: a forward catch-up over the configured
// universe. Ticks firing past the misfire grace are skipped with a
// warning; ticks landing while another run holds the slot are skipped
// too.
func (s *Scheduler) scheduledRun() {
	s.wg.Add(1)
	defer s.wg.Done()

	now := s.now()
	if late := s.tickLateness(now); late > s.cfg.MisfireGrace {
		s.mu.Lock()
		s.missedTicks++
		s.mu.Unlock()
		s.logger.Warn("scheduled tick fired past its grace window, skipping",
			"late", late,
			"grace", s.cfg.MisfireGrace,
		)
		return
	}

	id, ok := s.tryBegin(string(ModeForward))
	if !ok {
		s.logger.Warn("scheduled tick skipped, collection already in progress")
		return
	}

	s.runCollection(s.runCtx(), id, string(ModeForward), func(ctx context.Context) []model.CollectionOutcome {
		return s.collector.CollectForward(ctx, s.cfg.Symbols, time.Time{})
	})
}

// runCollection executes one batch under the in-flight slot and records
// the result. Recovering a panic here is the only place unexpected
// failures are caught; per-asset failures travel inside the outcomes.
func (s *Scheduler) runCollection(ctx context.Context, id uuid.UUID, op string, run func(context.Context) []model.CollectionOutcome) {
	started := s.now()
	s.logger.Info("collection run started", "run_id", id, "op", op)

	var outcomes []model.CollectionOutcome
	var runErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("collection run panicked: %v", r)
			}
		}()
		outcomes = run(ctx)
	}()

	s.finish(id, outcomes, runErr)

	if runErr != nil {
		s.logger.Error("collection run failed",
			"run_id", id,
			"op", op,
			"error", runErr,
		)
		return
	}

	s.logger.Info("collection run complete",
		"run_id", id,
		"op", op,
		"assets", len(outcomes),
		"duration", s.now().Sub(started),
	)
}

// tryBegin claims the single run slot. It fails while another run is in
// flight or after Stop.
func (s *Scheduler) tryBegin(op string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateStopped {
		return uuid.Nil, false
	}

	id := uuid.New()
	s.state = StateRunning
	s.currentOp = op
	return id, true
}

// finish records a run's result and releases the slot. A Stop that
// landed mid-run keeps the scheduler stopped.
func (s *Scheduler) finish(id uuid.UUID, outcomes []model.CollectionOutcome, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runCount++
	s.lastRunID = id
	s.lastRunTime = s.now()
	s.lastResults = outcomes
	s.lastErr = runErr
	s.lastRunOK = runErr == nil
	s.currentOp = ""

	if s.state != StateStopped {
		if runErr != nil {
			s.state = StateError
		} else {
			s.state = StateIdle
		}
	}
}

// tickLateness reports how far past its expected slot this tick fired
// and re-anchors the expectation on the actual fire time, matching how
// the cron spaces subsequent ticks.
func (s *Scheduler) tickLateness(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var late time.Duration
	if !s.expectedFire.IsZero() {
		late = now.Sub(s.expectedFire)
	}
	s.expectedFire = now.Add(s.cfg.Interval)
	return late
}

func (s *Scheduler) busyMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return "scheduler is stopped"
	}
	if s.currentOp != "" {
		return fmt.Sprintf("collection already in progress (%s)", s.currentOp)
	}
	return "collection already in progress"
}

// runCtx is the lifecycle context for runs; Background when the
// scheduler was never started (one-shot callers).
func (s *Scheduler) runCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// buildRun validates a trigger request and binds it to a batch op.
func (s *Scheduler) buildRun(req TriggerRequest) (func(context.Context) []model.CollectionOutcome, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.cfg.Symbols
	}
	if len(symbols) == 0 {
		return nil, errors.New("no symbols requested or configured")
	}

	switch req.Mode {
	case ModeBackward:
		if req.From.IsZero() {
			return nil, errors.New("backward collection requires a from time")
		}
		return func(ctx context.Context) []model.CollectionOutcome {
			return s.collector.CollectBackward(ctx, symbols, req.From, req.To)
		}, nil
	case ModeForward:
		return func(ctx context.Context) []model.CollectionOutcome {
			return s.collector.CollectForward(ctx, symbols, req.To)
		}, nil
	case ModeGapfill:
		if req.From.IsZero() {
			return nil, errors.New("gap fill requires a from time")
		}
		return func(ctx context.Context) []model.CollectionOutcome {
			return s.collector.DetectAndFillGaps(ctx, symbols, req.From)
		}, nil
	default:
		return nil, fmt.Errorf("unknown collection mode %q", req.Mode)
	}
}
