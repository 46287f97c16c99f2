package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/mailclean/internal/logging"
)

var (
	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotFinished is returned when a finished result is asked of a
	// run still in flight.
	ErrRunNotFinished = errors.New("run not finished")
)

// Defaults for ServiceConfig fields left at zero.
const (
	DefaultRunTimeout = 10 * time.Minute
	DefaultRetention  = 15 * time.Minute
)

// ServiceConfig bounds asynchronous runs.
type ServiceConfig struct {
	// RunTimeout caps one run; hitting it cancels the run.
	RunTimeout time.Duration
	// Retention is how long a finished run stays queryable.
	Retention time.Duration
}

// Service owns the run registry. Runs execute in the background; callers
// poll progress, subscribe to it, cancel, or block on the result.
type Service struct {
	proc    *Processor
	limiter *RunLimiter
	cfg     ServiceConfig

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Result   *RunResult
	Done     chan struct{}

	mu        sync.Mutex
	progress  RunProgress
	listeners []*listener
}

type listener struct {
	ch chan RunProgress
	// missed is set when the latest snapshot was dropped.
	missed bool
}

// NewService creates a service running files through proc.
func NewService(proc *Processor, limiter *RunLimiter, cfg ServiceConfig) *Service {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Service{
		proc:    proc,
		limiter: limiter,
		cfg:     cfg,
		runs:    make(map[string]*activeRun),
	}
}

// Processor returns the processor runs execute on.
func (s *Service) Processor() *Processor { return s.proc }

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus { return s.limiter.Status() }

// StartRun begins an asynchronous run and returns its ID immediately.
// Returns ErrTooManyRuns if no run slot frees up in time.
func (s *Service) StartRun(ctx context.Context, in Input) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()

	// Request values such as the request id survive; its cancellation does not.
	base := logging.WithRunID(context.WithoutCancel(ctx), runID)
	runCtx, cancel := context.WithTimeout(base, s.cfg.RunTimeout)

	run := &activeRun{
		ID:       runID,
		FileName: in.FileName,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		progress: RunProgress{RunID: runID, Phase: PhaseStarting, FileName: in.FileName},
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	logging.FromContext(runCtx).Info("run started", "file", in.FileName, "bytes", len(in.Data))

	go func() {
		// The slot is free before waiters on Done wake up.
		defer s.finish(run)
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logging.FromContext(runCtx).Error("panic in run", "file", in.FileName, "panic", r)
				msg := fmt.Sprintf("internal error: %v", r)
				run.Result = &RunResult{RunID: runID, FileName: in.FileName, Phase: PhaseFailed, Error: msg}
				run.setProgress(RunProgress{RunID: runID, Phase: PhaseFailed, FileName: in.FileName, Error: msg})
			}
		}()

		result, err := s.proc.Run(runCtx, in, run.setProgress)
		if err != nil && !errors.Is(err, ErrRunCancelled) {
			logging.FromContext(runCtx).Warn("run failed", "file", in.FileName, "error", err)
		}
		result.RunID = runID
		run.Result = result
	}()

	return runID, nil
}

// Clean runs a file synchronously under the same slot limit and timeout as
// asynchronous runs. The run is not registered.
func (s *Service) Clean(ctx context.Context, in Input) (*RunResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(logging.WithRunID(ctx, runID), s.cfg.RunTimeout)
	defer cancel()

	result, err := s.proc.Run(runCtx, in, nil)
	if result != nil {
		result.RunID = runID
	}
	return result, err
}

func (s *Service) get(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// SubscribeProgress returns a channel of progress updates. It receives the
// current snapshot first and is closed when the run finishes. Slow readers
// may miss intermediate updates but never the final one.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan RunProgress, 10)

	run.mu.Lock()
	defer run.mu.Unlock()
	ch <- run.progress
	select {
	case <-run.Done:
		close(ch)
	default:
		run.listeners = append(run.listeners, &listener{ch: ch})
	}
	return ch, nil
}

// CancelRun stops a run. Entries already routed keep their decisions.
func (s *Service) CancelRun(runID string) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// GetRunResult blocks until the run finishes or ctx ends.
func (s *Service) GetRunResult(ctx context.Context, runID string) (*RunResult, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done:
		return run.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FinishedResult returns the result of a finished run without blocking.
func (s *Service) FinishedResult(runID string) (*RunResult, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done:
		return run.Result, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFinished, runID)
	}
}

// GetRunProgress returns the current progress without blocking.
func (s *Service) GetRunProgress(runID string) (RunProgress, error) {
	run, err := s.get(runID)
	if err != nil {
		return RunProgress{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.progress, nil
}

// Shutdown waits for active runs to finish. When ctx ends first, the
// remaining runs are cancelled and ctx.Err() is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.limiter.WaitForDrain(ctx)
	if err != nil {
		s.mu.RLock()
		for _, run := range s.runs {
			run.Cancel()
		}
		s.mu.RUnlock()
	}
	return err
}

// setProgress records p and fans it out to listeners.
func (run *activeRun) setProgress(p RunProgress) {
	run.mu.Lock()
	defer run.mu.Unlock()

	p.RunID = run.ID
	run.progress = p
	for _, l := range run.listeners {
		select {
		case l.ch <- p:
			l.missed = false
		default:
			// slow listener, skip this update
			l.missed = true
		}
	}
}

// finish delivers the final snapshot, closes listeners and schedules the run
// for removal.
func (s *Service) finish(run *activeRun) {
	run.mu.Lock()
	final := run.progress
	for _, l := range run.listeners {
		if l.missed {
			// Make room for the final snapshot.
			select {
			case <-l.ch:
			default:
			}
			select {
			case l.ch <- final:
			default:
			}
		}
		close(l.ch)
	}
	run.listeners = nil
	close(run.Done)
	run.mu.Unlock()

	s.cleanup(run.ID, s.cfg.Retention)
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}
