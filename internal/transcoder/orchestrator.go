package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// OutcomeStatus is the terminal state of one rendition within a run.
type OutcomeStatus string

const (
	OutcomeSuccess   OutcomeStatus = "success"
	OutcomeFailure   OutcomeStatus = "failure"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the result of encoding one planned rendition.
type Outcome struct {
	Rendition       Rendition
	Status          OutcomeStatus
	PlaylistPath    string
	SegmentPattern  string
	InitSegmentPath string
	Segments        []string
	Elapsed         time.Duration
	// Err is an *EncodeError for failures and the context error for cancellations.
	Err error
}

// OrchestratorConfig bounds how a run uses the encoder.
type OrchestratorConfig struct {
	// PoolSize caps concurrent encodes. Zero or negative starts every rendition at once.
	PoolSize int
	// EncodeTimeout bounds a single rendition encode. Zero disables the limit.
	EncodeTimeout time.Duration
}

// RunInput describes one packaging run.
type RunInput struct {
	InputPath  string
	OutputDir  string
	Renditions []Rendition
	Mode       ContainerMode
	Duration   time.Duration
}

// Orchestrator fans a plan out to the encoder and gathers one outcome per rendition.
type Orchestrator struct {
	encoder Encoder
	config  OrchestratorConfig
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator driving the given encoder.
func NewOrchestrator(encoder Encoder, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		encoder: encoder,
		config:  cfg,
		logger:  logger,
	}
}

// Run encodes every rendition in in.Renditions into in.OutputDir.
//
// The returned outcomes are in plan order and always cover every rendition,
// even when an error is returned. A failed rendition does not stop the others.
// The error is a *PipelineError when any rendition failed, or wraps
// ErrCancelled when ctx was cancelled. Partially written files are left in place.
func (o *Orchestrator) Run(ctx context.Context, in RunInput, sink EventSink) ([]Outcome, error) {
	if len(in.Renditions) == 0 {
		return nil, ErrEmptyLadder
	}
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}
	if err := os.MkdirAll(in.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	outcomes := make([]Outcome, len(in.Renditions))

	// A plain Group: one failed rendition must not cancel its siblings.
	var g errgroup.Group
	if o.config.PoolSize > 0 {
		g.SetLimit(o.config.PoolSize)
	}

	for i, r := range in.Renditions {
		outcomes[i].Rendition = r
		if ctx.Err() != nil {
			outcomes[i].Status = OutcomeCancelled
			outcomes[i].Err = ctx.Err()
			continue
		}
		// Go blocks while the pool is saturated.
		g.Go(func() error {
			outcomes[i] = o.encodeOne(ctx, in, r, sink)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	var failures []*EncodeError
	for _, oc := range outcomes {
		var encErr *EncodeError
		if oc.Status == OutcomeFailure && errors.As(oc.Err, &encErr) {
			failures = append(failures, encErr)
		}
	}
	if len(failures) > 0 {
		return outcomes, &PipelineError{Failures: failures}
	}

	return outcomes, nil
}

func (o *Orchestrator) encodeOne(ctx context.Context, in RunInput, r Rendition, sink EventSink) Outcome {
	outcome := Outcome{Rendition: r}
	if ctx.Err() != nil {
		outcome.Status = OutcomeCancelled
		outcome.Err = ctx.Err()
		return outcome
	}

	encCtx := ctx
	if o.config.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		encCtx, cancel = context.WithTimeout(ctx, o.config.EncodeTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := o.encoder.Encode(encCtx, EncodeJob{
		InputPath: in.InputPath,
		OutputDir: in.OutputDir,
		Rendition: r,
		Mode:      in.Mode,
		Duration:  in.Duration,
	}, sink)
	outcome.Elapsed = time.Since(start)

	switch {
	case err != nil && ctx.Err() != nil:
		outcome.Status = OutcomeCancelled
		outcome.Err = ctx.Err()
		o.logger.Info("rendition cancelled", "rendition", r.Label)
	case err != nil:
		outcome.Status = OutcomeFailure
		outcome.Err = &EncodeError{Label: r.Label, Err: err}
		o.logger.Error("rendition failed", "rendition", r.Label, "error", err)
	default:
		outcome.Status = OutcomeSuccess
		outcome.PlaylistPath = res.PlaylistPath
		outcome.SegmentPattern = res.SegmentPattern
		outcome.InitSegmentPath = res.InitSegmentPath
		outcome.Segments = res.Segments
		o.logger.Info("rendition encoded",
			"rendition", r.Label,
			"segments", len(res.Segments),
			"elapsed", outcome.Elapsed,
		)
	}

	return outcome
}
