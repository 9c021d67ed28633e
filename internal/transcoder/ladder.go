package transcoder

// DefaultLadder returns the standard ABR ladder, highest rendition first.
// Bandwidth figures are fixed per rung and are not measured from the encoded output.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Label: "1080p", Width: 1920, Height: 1080, Bandwidth: 4000000, AverageBandwidth: 3700000, Codecs: "mp4a.40.2,avc1.640029", FrameRate: 30},
		{Label: "720p", Width: 1280, Height: 720, Bandwidth: 2500000, AverageBandwidth: 2200000, Codecs: "mp4a.40.2,avc1.64001F", FrameRate: 30},
		{Label: "480p", Width: 854, Height: 480, Bandwidth: 1000000, AverageBandwidth: 900000, Codecs: "mp4a.40.2,avc1.4d401e", FrameRate: 30},
		{Label: "360p", Width: 640, Height: 360, Bandwidth: 500000, AverageBandwidth: 400000, Codecs: "mp4a.40.2,avc1.4d4015", FrameRate: 30},
	}
}

// Plan selects the ladder entries that do not upscale the source in either dimension.
// Ladder order is preserved. ErrEmptyLadder is returned when nothing fits.
func Plan(srcWidth, srcHeight int, ladder []Rendition) ([]Rendition, error) {
	var planned []Rendition
	for _, r := range ladder {
		if r.Width <= srcWidth && r.Height <= srcHeight {
			planned = append(planned, r)
		}
	}
	if len(planned) == 0 {
		return nil, ErrEmptyLadder
	}
	return planned, nil
}
