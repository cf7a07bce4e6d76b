// Package batch drives the per-item pipeline across a full record list
// with bounded concurrency. One item's failure never stops the batch;
// results stream to the sink as they complete so a partial run is still a
// valid, resumable prefix.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-transcribe-go/internal/logger"
	"call-transcribe-go/internal/types"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

var ErrNoRecords = errors.New("no records to process")

// ItemProcessor is the isolation boundary: it must return a ResultRecord
// for every input, never panic or error.
type ItemProcessor interface {
	Process(ctx context.Context, rec types.CallRecord) types.ResultRecord
}

// Sink accepts completed results one at a time. The orchestrator calls it
// from a single goroutine; implementations need no locking on its behalf.
type Sink interface {
	Append(rec types.ResultRecord) error
}

// Summary is the end-of-run report.
type Summary struct {
	Total         int                 `json:"total"`
	Succeeded     int                 `json:"succeeded"`
	Failed        int                 `json:"failed"`
	Skipped       int                 `json:"skipped"`
	Canceled      bool                `json:"canceled,omitempty"`
	FailedByStage map[types.Stage]int `json:"failed_by_stage,omitempty"`
}

// Options tune one orchestrator instance. Skip holds recording URLs whose
// results already exist in the output; reconciliation against a previous
// partial run happens outside the orchestrator, which stays stateless
// across runs.
type Options struct {
	Concurrency int
	Skip        map[string]struct{}
}

type Orchestrator struct {
	proc ItemProcessor
	sink Sink
	opts Options

	mu    sync.Mutex
	state State

	log *logrus.Entry
}

func New(proc ItemProcessor, sink Sink, opts Options) (*Orchestrator, error) {
	if proc == nil {
		return nil, errors.New("batch: nil processor")
	}
	if sink == nil {
		return nil, errors.New("batch: nil sink")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Orchestrator{
		proc:  proc,
		sink:  sink,
		opts:  opts,
		state: StateIdle,
		log:   logger.New().WithComponent("batch"),
	}, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run processes every record and streams results to the sink. Per-item
// failures are tallied, not fatal; only a sink write failure aborts the
// run. Cancellation through ctx stops feeding new items while letting
// in-flight calls finish.
func (o *Orchestrator) Run(ctx context.Context, records []types.CallRecord) (Summary, error) {
	summary := Summary{FailedByStage: map[types.Stage]int{}}
	if len(records) == 0 {
		return summary, ErrNoRecords
	}

	runID := uuid.New().String()
	log := o.log.WithFields(logrus.Fields{
		"run_id":      runID,
		"records":     len(records),
		"concurrency": o.opts.Concurrency,
	})
	log.Info("batch started")
	o.setState(StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan types.CallRecord)
	results := make(chan types.ResultRecord)

	var wg sync.WaitGroup
	for i := 0; i < o.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				results <- o.proc.Process(runCtx, rec)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(jobs)
		for _, rec := range records {
			if _, done := o.opts.Skip[rec.RecordingURL]; done {
				summary.Skipped++
				continue
			}
			select {
			case jobs <- rec:
			case <-runCtx.Done():
				return
			}
		}
	}()

	// single writer: the sink sees results from exactly one goroutine
	var sinkErr error
	for res := range results {
		if sinkErr == nil {
			if err := o.sink.Append(res); err != nil {
				sinkErr = fmt.Errorf("append result: %w", err)
				log.WithError(sinkErr).Error("sink failure, aborting batch")
				cancel()
			}
		}
		summary.Total++
		if res.Outcome.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.FailedByStage[res.Outcome.Stage]++
		}
	}

	if sinkErr != nil {
		o.setState(StateAborted)
		return summary, sinkErr
	}
	if ctx.Err() != nil {
		summary.Canceled = true
		log.WithFields(logrus.Fields{
			"processed": summary.Total,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
		}).Warn("batch canceled before completion")
	} else {
		log.WithFields(logrus.Fields{
			"processed": summary.Total,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"skipped":   summary.Skipped,
		}).Info("batch completed")
	}
	o.setState(StateCompleted)
	return summary, nil
}
