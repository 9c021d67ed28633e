package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MasterPlaylistName is the file name of the master playlist inside a package directory.
const MasterPlaylistName = "master.m3u8"

// BuildMasterPlaylist renders the master playlist for a fully successful run.
// Variants appear in outcome order; the output is byte-identical for identical input.
func BuildMasterPlaylist(outcomes []Outcome, mode ContainerMode) ([]byte, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", ErrManifestWrite, ErrInvalidMode, mode)
	}
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("%w: no renditions", ErrManifestWrite)
	}
	for _, oc := range outcomes {
		if oc.Status != OutcomeSuccess {
			return nil, fmt.Errorf("%w: rendition %s is %s", ErrManifestWrite, oc.Rendition.Label, oc.Status)
		}
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	if mode == ContainerFMP4 {
		sb.WriteString("#EXT-X-VERSION:6\n")
	}

	for _, oc := range outcomes {
		r := oc.Rendition
		if mode == ContainerFMP4 {
			fmt.Fprintf(&sb,
				"#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d,CODECS=\"%s\",RESOLUTION=%s,FRAME-RATE=%d,CLOSED-CAPTIONS=NONE\n",
				r.Bandwidth, r.AverageBandwidth, r.Codecs, r.Resolution(), r.FrameRate,
			)
		} else {
			fmt.Fprintf(&sb, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.Bandwidth, r.Resolution())
		}
		sb.WriteString(PlaylistName(r.Label))
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}

// WriteMasterPlaylist writes master.m3u8 into outputDir and returns its path.
// The file is written to a temporary name and renamed, so readers never see a partial playlist.
func WriteMasterPlaylist(outputDir string, outcomes []Outcome, mode ContainerMode) (string, error) {
	data, err := BuildMasterPlaylist(outcomes, mode)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, MasterPlaylistName)

	tmp, err := os.CreateTemp(outputDir, MasterPlaylistName+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}

	return path, nil
}
