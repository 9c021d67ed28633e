package transcoder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyLadder is returned when no ladder entry fits the source resolution.
	ErrEmptyLadder = errors.New("no rendition fits the source resolution")
	// ErrProbe is returned when the source cannot be inspected.
	ErrProbe = errors.New("probe source")
	// ErrEncode marks a failed rendition encode.
	ErrEncode = errors.New("encode rendition")
	// ErrCancelled is returned when the caller cancelled a run.
	ErrCancelled = errors.New("transcoding cancelled")
	// ErrManifestWrite is returned when the master playlist cannot be produced.
	ErrManifestWrite = errors.New("write master playlist")
	// ErrInvalidMode is returned for an unknown container mode.
	ErrInvalidMode = errors.New("invalid container mode")
)

// EncodeError reports the failure of a single rendition.
type EncodeError struct {
	Label string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Label, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncode, e.Err}
}

// PipelineError aggregates every rendition failure of a run.
type PipelineError struct {
	Failures []*EncodeError
}

func (e *PipelineError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("pipeline failed (%d renditions): %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *PipelineError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Labels returns the labels of the failed renditions in plan order.
func (e *PipelineError) Labels() []string {
	labels := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		labels = append(labels, f.Label)
	}
	return labels
}
