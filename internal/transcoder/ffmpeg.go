package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const stderrTailSize = 4096

// FFmpegConfig holds the encode profile shared by every rendition.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// VideoCodec is the video codec to use.
	// Default: libx264
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Default: fast
	VideoPreset string

	// CRF is the constant rate factor passed to the video encoder.
	// Default: 23
	CRF int

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// AudioBitrate is the target audio bitrate.
	// Default: 128k
	AudioBitrate string

	// HLSSegmentDuration is the target duration of each HLS segment in seconds.
	// Default: 10
	HLSSegmentDuration int

	// HLSPlaylistType sets the playlist type.
	// Use "vod" for Video on Demand (adds EXT-X-ENDLIST tag).
	// Default: vod
	HLSPlaylistType string

	// KillGrace is how long ffmpeg may take to finalise after an interrupt
	// before it is killed.
	// Default: 5s
	KillGrace time.Duration
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:         "ffmpeg",
		VideoCodec:         "libx264",
		VideoPreset:        "fast",
		CRF:                23,
		AudioCodec:         "aac",
		AudioBitrate:       "128k",
		HLSSegmentDuration: 10,
		HLSPlaylistType:    "vod",
		KillGrace:          5 * time.Second,
	}
}

// FFmpegEncoder implements Encoder by running one ffmpeg process per rendition.
type FFmpegEncoder struct {
	config FFmpegConfig
	logger *slog.Logger
}

// Compile-time verification that FFmpegEncoder implements Encoder.
var _ Encoder = (*FFmpegEncoder)(nil)

// NewFFmpegEncoder creates a new FFmpeg-based encoder.
func NewFFmpegEncoder(cfg FFmpegConfig, logger *slog.Logger) *FFmpegEncoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{
		config: cfg,
		logger: logger,
	}
}

// Encode runs ffmpeg for a single rendition and waits for it to exit.
// Cancelling ctx interrupts ffmpeg and kills it once KillGrace has elapsed.
func (e *FFmpegEncoder) Encode(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error) {
	if err := validateInput(job.InputPath); err != nil {
		return nil, err
	}
	if err := validateOutputDir(job.OutputDir); err != nil {
		return nil, err
	}
	if !job.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, job.Mode)
	}

	label := job.Rendition.Label
	args := e.buildFFmpegArgs(job)

	cmd := exec.CommandContext(ctx, e.config.FFmpegPath, args...)
	cmd.Cancel = func() error {
		// SIGINT lets ffmpeg close the playlist it is writing.
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.config.KillGrace

	stderr := newTailBuffer(stderrTailSize)
	cmd.Stderr = stderr
	cmd.Stdout = newProgressWriter(job.Duration, func(percent, fps, speed float64) {
		sink.emit(Event{Type: EventProgress, Label: label, Percent: percent, FPS: fps, Speed: speed})
	})

	e.logger.Debug("starting ffmpeg", "rendition", label, "args", strings.Join(args, " "))
	sink.emit(Event{Type: EventStart, Label: label})

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// A deadline bounds this encode; it is a failure, not a cancellation.
			err = fmt.Errorf("ffmpeg timed out: %w", ctx.Err())
		} else if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		} else if tail := stderr.String(); tail != "" {
			err = fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail)
		} else {
			err = fmt.Errorf("ffmpeg execution failed: %w", err)
		}
		sink.emit(Event{Type: EventError, Label: label, Err: err})
		return nil, err
	}

	result, err := collectOutput(job)
	if err != nil {
		err = fmt.Errorf("collect output: %w", err)
		sink.emit(Event{Type: EventError, Label: label, Err: err})
		return nil, err
	}

	sink.emit(Event{Type: EventEnd, Label: label})
	return result, nil
}

// validateInput checks if the input file exists and is readable.
func validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", outputDir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

// buildFFmpegArgs constructs the FFmpeg command arguments for one rendition.
func (e *FFmpegEncoder) buildFFmpegArgs(job EncodeJob) []string {
	r := job.Rendition

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-progress", "pipe:1",
		"-y", // Overwrite output files without asking
		"-i", job.InputPath,
		"-vf", fmt.Sprintf("scale=%d:%d", r.Width, r.Height),
		"-c:v", e.config.VideoCodec,
		"-preset", e.config.VideoPreset,
		"-crf", strconv.Itoa(e.config.CRF),
		"-c:a", e.config.AudioCodec,
		"-b:a", e.config.AudioBitrate,
		"-map", "0:v:0",
		"-map", "0:a:0?", // Sources without audio still encode
		"-f", "hls",
		"-hls_time", strconv.Itoa(e.config.HLSSegmentDuration),
		"-hls_list_size", "0", // Include all segments in playlist
		"-hls_playlist_type", e.config.HLSPlaylistType,
		"-hls_segment_filename", filepath.Join(job.OutputDir, SegmentPattern(r.Label, job.Mode)),
	}

	if job.Mode == ContainerFMP4 {
		args = append(args,
			"-hls_segment_type", "fmp4",
			"-hls_fmp4_init_filename", InitSegmentName(r.Label),
			"-movflags", "+faststart",
		)
	}

	return append(args, filepath.Join(job.OutputDir, PlaylistName(r.Label)))
}

// collectOutput verifies the playlist exists and gathers the rendition's segments.
func collectOutput(job EncodeJob) (*EncodeResult, error) {
	label := job.Rendition.Label
	playlistPath := filepath.Join(job.OutputDir, PlaylistName(label))
	if _, err := os.Stat(playlistPath); err != nil {
		return nil, fmt.Errorf("media playlist missing: %w", err)
	}

	result := &EncodeResult{
		PlaylistPath:   playlistPath,
		SegmentPattern: filepath.Join(job.OutputDir, SegmentPattern(label, job.Mode)),
	}

	if job.Mode == ContainerFMP4 {
		initPath := filepath.Join(job.OutputDir, InitSegmentName(label))
		if _, err := os.Stat(initPath); err != nil {
			return nil, fmt.Errorf("init segment missing: %w", err)
		}
		result.InitSegmentPath = initPath
	}

	segments, err := collectSegments(job.OutputDir, label, job.Mode)
	if err != nil {
		return nil, err
	}
	result.Segments = segments

	return result, nil
}

// collectSegments finds the media segments belonging to one rendition.
func collectSegments(outputDir, label string, mode ContainerMode) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	prefix := "output_" + label + "_"
	suffix := "." + mode.SegmentExtension()

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			segments = append(segments, filepath.Join(outputDir, name))
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments generated for %s", label)
	}

	return segments, nil
}
