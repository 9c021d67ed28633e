package transcoder

import (
	"context"
	"fmt"
	"time"
)

// ContainerMode selects the HLS segment container.
type ContainerMode string

const (
	// ContainerTS produces MPEG-TS segments (.ts).
	ContainerTS ContainerMode = "ts"
	// ContainerFMP4 produces fragmented MP4 segments (.m4s) with a per-rendition init segment.
	ContainerFMP4 ContainerMode = "fmp4"
)

// Valid reports whether m is a supported container mode.
func (m ContainerMode) Valid() bool {
	return m == ContainerTS || m == ContainerFMP4
}

// SegmentExtension returns the file extension used for media segments.
func (m ContainerMode) SegmentExtension() string {
	if m == ContainerFMP4 {
		return "m4s"
	}
	return "ts"
}

// Rendition describes one rung of the ABR ladder.
type Rendition struct {
	// Label identifies the rendition in file names and logs (e.g., "720p").
	Label string
	// Width and Height are the target output dimensions in pixels.
	Width  int
	Height int
	// Bandwidth is the peak bitrate advertised in the master playlist, in bits per second.
	Bandwidth int
	// AverageBandwidth is advertised only in fMP4 master playlists.
	AverageBandwidth int
	// Codecs is the RFC 6381 codec string advertised in fMP4 master playlists.
	Codecs string
	// FrameRate is advertised only in fMP4 master playlists.
	FrameRate int
}

// Resolution returns the WxH form used by RESOLUTION attributes.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// PlaylistName returns the media playlist file name for a rendition label.
func PlaylistName(label string) string {
	return "output_" + label + ".m3u8"
}

// SegmentPattern returns the printf-style segment file name template for a rendition label.
func SegmentPattern(label string, mode ContainerMode) string {
	return "output_" + label + "_%03d." + mode.SegmentExtension()
}

// InitSegmentName returns the fMP4 initialization segment file name for a rendition label.
func InitSegmentName(label string) string {
	return "init_" + label + ".mp4"
}

// EncodeJob is the input for a single rendition encode.
type EncodeJob struct {
	InputPath string
	OutputDir string
	Rendition Rendition
	Mode      ContainerMode
	// Duration is the probed source duration, used to compute progress percentages.
	// Zero disables percentage reporting.
	Duration time.Duration
}

// EncodeResult describes the files produced by a successful encode.
type EncodeResult struct {
	PlaylistPath    string
	SegmentPattern  string
	InitSegmentPath string
	Segments        []string
}

// Encoder produces one HLS media playlist and its segments for a single rendition.
// Implementations must honour ctx cancellation by stopping the underlying work.
type Encoder interface {
	Encode(ctx context.Context, job EncodeJob, sink EventSink) (*EncodeResult, error)
}

// EventType is the kind of encoder lifecycle event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventEnd      EventType = "end"
	EventError    EventType = "error"
)

// Event is a lifecycle or progress notification for one rendition.
type Event struct {
	Type  EventType
	Label string
	// Percent is 0-100 and only meaningful for EventProgress.
	Percent float64
	FPS     float64
	Speed   float64
	Err     error
}

// EventSink receives encoder events. It may be called from several goroutines at once.
type EventSink func(Event)

func (s EventSink) emit(ev Event) {
	if s != nil {
		s(ev)
	}
}

// ProbeResult holds the source properties the pipeline needs.
type ProbeResult struct {
	Width    int
	Height   int
	Duration time.Duration
	Bitrate  int64
}

// Prober inspects a source file before planning.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}
