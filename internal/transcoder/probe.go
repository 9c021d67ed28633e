package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFprobe implements Prober using the ffprobe CLI.
type FFprobe struct {
	path string
}

var _ Prober = (*FFprobe)(nil)

// NewFFprobe creates a prober. An empty path falls back to "ffprobe" in PATH.
func NewFFprobe(path string) *FFprobe {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{path: path}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe runs ffprobe against path and returns the first video stream's dimensions.
func (p *FFprobe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrProbe, err, strings.TrimSpace(stderr.String()))
	}

	return parseProbeOutput(out)
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse output: %w", ErrProbe, err)
	}

	for _, s := range out.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, fmt.Errorf("%w: video stream has no dimensions", ErrProbe)
		}

		duration := parseSeconds(out.Format.Duration)
		if duration == 0 {
			duration = parseSeconds(s.Duration)
		}
		bitrate, _ := strconv.ParseInt(strings.TrimSpace(out.Format.BitRate), 10, 64)

		return &ProbeResult{
			Width:    s.Width,
			Height:   s.Height,
			Duration: duration,
			Bitrate:  bitrate,
		}, nil
	}

	return nil, fmt.Errorf("%w: no video stream", ErrProbe)
}

func parseSeconds(value string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
