package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockEncoder struct {
	encodeFn func(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error)
}

func (m *mockEncoder) Encode(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
	if m.encodeFn != nil {
		return m.encodeFn(ctx, job, sink)
	}
	return fakeResult(job), nil
}

func fakeResult(job EncodeJob) *EncodeResult {
	return &EncodeResult{
		PlaylistPath:   filepath.Join(job.OutputDir, PlaylistName(job.Rendition.Label)),
		SegmentPattern: filepath.Join(job.OutputDir, SegmentPattern(job.Rendition.Label, job.Mode)),
		Segments:       []string{filepath.Join(job.OutputDir, "output_"+job.Rendition.Label+"_000."+job.Mode.SegmentExtension())},
	}
}

func newTestRunInput(t *testing.T, mode ContainerMode) RunInput {
	t.Helper()
	return RunInput{
		InputPath:  "/in.mp4",
		OutputDir:  filepath.Join(t.TempDir(), "pkg"),
		Renditions: DefaultLadder(),
		Mode:       mode,
	}
}

func TestOrchestrator_Run_AllSucceed(t *testing.T) {
	o := NewOrchestrator(&mockEncoder{}, OrchestratorConfig{PoolSize: 2}, nil)
	in := newTestRunInput(t, ContainerTS)

	outcomes, err := o.Run(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outcomes) != len(in.Renditions) {
		t.Fatalf("expected %d outcomes, got %d", len(in.Renditions), len(outcomes))
	}
	for i, oc := range outcomes {
		if oc.Rendition.Label != in.Renditions[i].Label {
			t.Errorf("outcome %d: got %s, expected plan order %s", i, oc.Rendition.Label, in.Renditions[i].Label)
		}
		if oc.Status != OutcomeSuccess {
			t.Errorf("outcome %s: status %s", oc.Rendition.Label, oc.Status)
		}
		if oc.PlaylistPath == "" {
			t.Errorf("outcome %s: empty playlist path", oc.Rendition.Label)
		}
	}

	if info, err := os.Stat(in.OutputDir); err != nil || !info.IsDir() {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestOrchestrator_Run_FailureIsolation(t *testing.T) {
	var calls atomic.Int32
	enc := &mockEncoder{
		encodeFn: func(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
			calls.Add(1)
			if job.Rendition.Label == "480p" {
				return nil, errors.New("exit status 1")
			}
			return fakeResult(job), nil
		},
	}
	o := NewOrchestrator(enc, OrchestratorConfig{PoolSize: 1}, nil)
	in := newTestRunInput(t, ContainerTS)

	outcomes, err := o.Run(context.Background(), in, nil)

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected *PipelineError, got %v", err)
	}
	if !slices.Equal(pipeErr.Labels(), []string{"480p"}) {
		t.Errorf("failed labels: got %v, expected [480p]", pipeErr.Labels())
	}
	if !errors.Is(err, ErrEncode) {
		t.Error("expected errors.Is(err, ErrEncode)")
	}

	var encErr *EncodeError
	if !errors.As(err, &encErr) || encErr.Label != "480p" {
		t.Errorf("expected EncodeError for 480p, got %v", encErr)
	}

	if got := calls.Load(); got != 4 {
		t.Errorf("expected every rendition to be attempted, got %d calls", got)
	}

	statuses := map[string]OutcomeStatus{}
	for _, oc := range outcomes {
		statuses[oc.Rendition.Label] = oc.Status
	}
	if statuses["480p"] != OutcomeFailure {
		t.Errorf("480p status: got %s", statuses["480p"])
	}
	for _, l := range []string{"1080p", "720p", "360p"} {
		if statuses[l] != OutcomeSuccess {
			t.Errorf("%s status: got %s", l, statuses[l])
		}
	}

	if _, err := BuildMasterPlaylist(outcomes, ContainerTS); !errors.Is(err, ErrManifestWrite) {
		t.Errorf("expected manifest refusal after failure, got %v", err)
	}
}

func TestOrchestrator_Run_RespectsPoolSize(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	enc := &mockEncoder{
		encodeFn: func(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return fakeResult(job), nil
		},
	}

	tests := []struct {
		name     string
		poolSize int
		maxPeak  int
	}{
		{"pool of one runs sequentially", 1, 1},
		{"pool of two", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peak = 0
			o := NewOrchestrator(enc, OrchestratorConfig{PoolSize: tt.poolSize}, nil)
			if _, err := o.Run(context.Background(), newTestRunInput(t, ContainerTS), nil); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if peak > tt.maxPeak {
				t.Errorf("peak concurrency %d exceeds pool size %d", peak, tt.maxPeak)
			}
		})
	}
}

func TestOrchestrator_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 4)

	enc := &mockEncoder{
		encodeFn: func(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := NewOrchestrator(enc, OrchestratorConfig{PoolSize: 2}, nil)

	go func() {
		<-started
		cancel()
	}()

	outcomes, err := o.Run(ctx, newTestRunInput(t, ContainerFMP4), nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}

	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}
	for _, oc := range outcomes {
		if oc.Status != OutcomeCancelled {
			t.Errorf("%s: expected cancelled, got %s", oc.Rendition.Label, oc.Status)
		}
	}
}

func TestOrchestrator_Run_EncodeTimeoutIsFailure(t *testing.T) {
	enc := &mockEncoder{
		encodeFn: func(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
			if job.Rendition.Label == "1080p" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return fakeResult(job), nil
		},
	}
	o := NewOrchestrator(enc, OrchestratorConfig{PoolSize: 4, EncodeTimeout: 10 * time.Millisecond}, nil)

	_, err := o.Run(context.Background(), newTestRunInput(t, ContainerTS), nil)

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected *PipelineError, got %v", err)
	}
	if !slices.Equal(pipeErr.Labels(), []string{"1080p"}) {
		t.Errorf("failed labels: got %v", pipeErr.Labels())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in chain, got %v", err)
	}
}

func TestOrchestrator_Run_FFmpegTimeoutIsFailure(t *testing.T) {
	o := NewOrchestrator(newSleepingEncoder(t), OrchestratorConfig{PoolSize: 1, EncodeTimeout: 100 * time.Millisecond}, nil)
	in := newTestRunInput(t, ContainerTS)
	in.InputPath = writeDummyInput(t)
	in.Renditions = DefaultLadder()[3:]

	outcomes, err := o.Run(context.Background(), in, nil)

	var pipeErr *PipelineError
	if !errors.As(err, &pipeErr) {
		t.Fatalf("expected *PipelineError, got %v", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Errorf("encode timeout must not surface as ErrCancelled: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != OutcomeFailure {
		t.Errorf("expected a single failed outcome, got %+v", outcomes)
	}
}

func TestOrchestrator_Run_ForwardsEvents(t *testing.T) {
	enc := &mockEncoder{
		encodeFn: func(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
			sink.emit(Event{Type: EventStart, Label: job.Rendition.Label})
			sink.emit(Event{Type: EventEnd, Label: job.Rendition.Label})
			return fakeResult(job), nil
		},
	}
	o := NewOrchestrator(enc, OrchestratorConfig{}, nil)

	var (
		mu     sync.Mutex
		events []Event
	)
	sink := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	if _, err := o.Run(context.Background(), newTestRunInput(t, ContainerTS), sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 8 {
		t.Errorf("expected 8 events, got %d", len(events))
	}
}

func TestOrchestrator_Run_InvalidInput(t *testing.T) {
	o := NewOrchestrator(&mockEncoder{}, OrchestratorConfig{}, nil)

	t.Run("empty plan", func(t *testing.T) {
		in := newTestRunInput(t, ContainerTS)
		in.Renditions = nil
		if _, err := o.Run(context.Background(), in, nil); !errors.Is(err, ErrEmptyLadder) {
			t.Errorf("expected ErrEmptyLadder, got %v", err)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		in := newTestRunInput(t, "webm")
		if _, err := o.Run(context.Background(), in, nil); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("expected ErrInvalidMode, got %v", err)
		}
	})
}
