// Package scheduler runs download tasks on a bounded worker pool and folds
// their results into a RunSummary.
package scheduler

import (
	"context"
	"errors"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/downloader"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/planner"
	"github.com/dl-alexandre/icdl/internal/progress"
	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Executor runs one task; *downloader.Downloader implements it
type Executor interface {
	Execute(ctx context.Context, task types.DownloadTask, sink downloader.ProgressSink) types.TransferResult
}

// Recorder persists results; the journal implements it
type Recorder interface {
	RecordResult(ctx context.Context, runID string, result types.TransferResult) error
}

// Scheduler dispatches tasks lazily: the next task is pulled from the
// sequence only when a worker slot is free.
type Scheduler struct {
	executor Executor
	reporter progress.Reporter
	recorder Recorder
	logger   logging.Logger
	runID    string
}

// Options wires the optional collaborators
type Options struct {
	RunID    string
	Reporter progress.Reporter
	Recorder Recorder
	Logger   logging.Logger
}

func New(executor Executor, opts Options) *Scheduler {
	s := &Scheduler{
		executor: executor,
		reporter: opts.Reporter,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		runID:    opts.RunID,
	}
	if s.reporter == nil {
		s.reporter = progress.Disabled()
	}
	if s.logger == nil {
		s.logger = logging.NewNoOpLogger()
	}
	return s
}

type aggregator struct {
	mu      sync.Mutex
	summary types.RunSummary
}

func (a *aggregator) add(res types.TransferResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch res.Status {
	case types.StatusCompleted:
		a.summary.Completed++
	case types.StatusSkipped:
		a.summary.Skipped++
	case types.StatusResumed:
		a.summary.Resumed++
	case types.StatusFailed:
		a.summary.Failed++
		a.summary.Failures = append(a.summary.Failures, types.Failure{
			Path:  res.Task.RelPath,
			Code:  utils.ErrorCode(res.Err),
			Error: errString(res.Err),
		})
	case types.StatusCancelled:
		return
	}
	a.summary.BytesTransferred += res.BytesWritten
}

func (a *aggregator) addPlanFailure(path string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Failed++
	a.summary.Failures = append(a.summary.Failures, types.Failure{
		Path:  path,
		Code:  utils.ErrorCode(err),
		Error: errString(err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Run executes every task of the sequence with at most concurrency
// transfers in flight. Failed tasks never stop the run. An expired session,
// met while planning or reported by a task, stops dispatch; the summary of
// what finished is returned together with the AUTH_EXPIRED error. A
// cancelled ctx stops dispatch and marks the summary Interrupted.
func (s *Scheduler) Run(ctx context.Context, tasks iter.Seq2[types.DownloadTask, error], concurrency int) (types.RunSummary, error) {
	if concurrency <= 0 {
		concurrency = utils.DefaultConcurrency
	}
	start := time.Now()
	logger := s.logger.WithContext(ctx)
	agg := &aggregator{}
	agg.summary.RunID = s.runID
	agg.summary.StartedAt = start.UTC()

	var authErr atomic.Pointer[error]
	var g errgroup.Group
	g.SetLimit(concurrency)

	for task, err := range tasks {
		if ctx.Err() != nil || authErr.Load() != nil {
			break
		}
		if err != nil {
			if errors.Is(err, session.ErrAuthExpired) {
				classified := apperrors.Classify(err, nil)
				authErr.CompareAndSwap(nil, &classified)
				break
			}
			path := ""
			var planErr *planner.PlanError
			if errors.As(err, &planErr) {
				path = planErr.RelPath
			}
			logger.Warn("Planning error recorded", logging.F("path", path), logging.F("error", err.Error()))
			agg.addPlanFailure(path, err)
			continue
		}

		s.reporter.TaskPlanned(task)
		g.Go(func() error {
			res := s.executor.Execute(ctx, task, s.reporter)
			s.finish(ctx, logger, agg, res)
			if res.Status == types.StatusFailed && errors.Is(res.Err, session.ErrAuthExpired) {
				authErr.CompareAndSwap(nil, &res.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := agg.summary
	sort.SliceStable(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Path < summary.Failures[j].Path
	})
	summary.Interrupted = ctx.Err() != nil
	summary.Duration = time.Since(start)

	logger.Info("Run finished",
		logging.F("completed", summary.Completed),
		logging.F("skipped", summary.Skipped),
		logging.F("resumed", summary.Resumed),
		logging.F("failed", summary.Failed),
		logging.F("bytes", summary.BytesTransferred),
		logging.F("interrupted", summary.Interrupted),
		logging.F("duration_ms", summary.Duration.Milliseconds()),
	)

	if p := authErr.Load(); p != nil {
		return summary, *p
	}
	return summary, nil
}

func (s *Scheduler) finish(ctx context.Context, logger logging.Logger, agg *aggregator, res types.TransferResult) {
	agg.add(res)
	s.reporter.TaskFinished(res)
	logResult(logger, res)

	if s.recorder == nil || res.Status == types.StatusCancelled {
		return
	}
	// the journal write must survive run cancellation
	if err := s.recorder.RecordResult(context.WithoutCancel(ctx), s.runID, res); err != nil {
		logger.Warn("Journal write failed", logging.F("path", res.Task.RelPath), logging.F("error", err.Error()))
	}
}

func logResult(logger logging.Logger, res types.TransferResult) {
	path := logging.F("path", res.Task.RelPath)
	switch res.Status {
	case types.StatusSkipped:
		logger.Info("[skip] size matches", path, logging.F("size", res.Task.ExpectedSize))
	case types.StatusResumed:
		logger.Info("[resume] transfer finished", path,
			logging.F("bytes", res.BytesWritten),
			logging.F("size", res.Task.ExpectedSize),
			logging.F("replaced", res.Replaced),
			logging.F("rangeFallback", res.RangeFallback),
		)
	case types.StatusCompleted:
		logger.Info("[get] transfer finished", path, logging.F("bytes", res.BytesWritten))
	case types.StatusFailed:
		logger.Error("[fail] transfer failed", path,
			logging.F("code", utils.ErrorCode(res.Err)),
			logging.F("error", errString(res.Err)),
		)
	case types.StatusCancelled:
		logger.Debug("[cancel] transfer aborted", path)
	}
}
