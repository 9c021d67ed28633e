package transcoder

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"
)

// progressWriter parses the key=value stream written by `ffmpeg -progress pipe:1`.
// Each block ends with a "progress=continue|end" line, at which point one update is emitted.
type progressWriter struct {
	duration time.Duration
	onUpdate func(percent, fps, speed float64)

	buf     []byte
	outTime time.Duration
	fps     float64
	speed   float64
}

func newProgressWriter(duration time.Duration, onUpdate func(percent, fps, speed float64)) *progressWriter {
	return &progressWriter{duration: duration, onUpdate: onUpdate}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.handleLine(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *progressWriter) handleLine(line string) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(val, 10, 64); err == nil && us >= 0 {
			w.outTime = time.Duration(us) * time.Microsecond
		}
	case "fps":
		if fps, err := strconv.ParseFloat(val, 64); err == nil {
			w.fps = fps
		}
	case "speed":
		if speed, err := strconv.ParseFloat(strings.TrimSuffix(val, "x"), 64); err == nil {
			w.speed = speed
		}
	case "progress":
		percent := w.percent()
		if val == "end" {
			percent = 100
		}
		if w.onUpdate != nil {
			w.onUpdate(percent, w.fps, w.speed)
		}
	}
}

func (w *progressWriter) percent() float64 {
	if w.duration <= 0 {
		return 0
	}
	p := float64(w.outTime) / float64(w.duration) * 100
	if p > 100 {
		return 100
	}
	return p
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
