package transcoder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func successOutcomes(rs []Rendition) []Outcome {
	out := make([]Outcome, 0, len(rs))
	for _, r := range rs {
		out = append(out, Outcome{Rendition: r, Status: OutcomeSuccess})
	}
	return out
}

func TestBuildMasterPlaylist_TS(t *testing.T) {
	planned, err := Plan(1280, 720, DefaultLadder())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	got, err := BuildMasterPlaylist(successOutcomes(planned), ContainerTS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
		"output_720p.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=854x480\n" +
		"output_480p.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=500000,RESOLUTION=640x360\n" +
		"output_360p.m3u8\n"

	if string(got) != expected {
		t.Errorf("master playlist mismatch:\ngot:\n%s\nexpected:\n%s", got, expected)
	}
}

func TestBuildMasterPlaylist_FMP4(t *testing.T) {
	got, err := BuildMasterPlaylist(successOutcomes(DefaultLadder()[:1]), ContainerFMP4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "#EXTM3U\n" +
		"#EXT-X-VERSION:6\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=4000000,AVERAGE-BANDWIDTH=3700000,CODECS=\"mp4a.40.2,avc1.640029\",RESOLUTION=1920x1080,FRAME-RATE=30,CLOSED-CAPTIONS=NONE\n" +
		"output_1080p.m3u8\n"

	if string(got) != expected {
		t.Errorf("master playlist mismatch:\ngot:\n%s\nexpected:\n%s", got, expected)
	}
}

func TestBuildMasterPlaylist_Rejects(t *testing.T) {
	ladder := DefaultLadder()

	tests := []struct {
		name     string
		outcomes []Outcome
		mode     ContainerMode
	}{
		{"empty set", nil, ContainerTS},
		{"failed rendition", []Outcome{
			{Rendition: ladder[0], Status: OutcomeSuccess},
			{Rendition: ladder[1], Status: OutcomeFailure},
		}, ContainerTS},
		{"cancelled rendition", []Outcome{{Rendition: ladder[0], Status: OutcomeCancelled}}, ContainerFMP4},
		{"unknown mode", successOutcomes(ladder), "webm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildMasterPlaylist(tt.outcomes, tt.mode); !errors.Is(err, ErrManifestWrite) {
				t.Errorf("expected ErrManifestWrite, got %v", err)
			}
		})
	}
}

func TestWriteMasterPlaylist_Idempotent(t *testing.T) {
	dir := t.TempDir()
	outcomes := successOutcomes(DefaultLadder())

	path, err := WriteMasterPlaylist(dir, outcomes, ContainerFMP4)
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if path != filepath.Join(dir, MasterPlaylistName) {
		t.Errorf("unexpected path %q", path)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if _, err := WriteMasterPlaylist(dir, outcomes, ContainerFMP4); err != nil {
		t.Fatalf("second write: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("master playlist differs between runs")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only master.m3u8 in dir, found %d entries", len(entries))
	}
}

func TestWriteMasterPlaylist_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	_, err := WriteMasterPlaylist(dir, successOutcomes(DefaultLadder()), ContainerTS)
	if !errors.Is(err, ErrManifestWrite) {
		t.Errorf("expected ErrManifestWrite, got %v", err)
	}
}
