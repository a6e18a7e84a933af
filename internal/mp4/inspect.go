package mp4

import (
	"fmt"
	"os"
)

// TrackSummary describes the timing of one track.
type TrackSummary struct {
	TrackID        uint32 `json:"track_id"`
	Handler        string `json:"handler"`
	Audio          bool   `json:"audio"`
	Samples        int    `json:"samples"`
	TimeScale      uint32 `json:"timescale"`
	HeaderDuration uint64 `json:"header_duration"`
	MediaDuration  uint64 `json:"media_duration"`
	FirstDelta     uint32 `json:"first_delta"`
	SecondDelta    uint32 `json:"second_delta"`
}

// Summary describes the timing of a recording.
type Summary struct {
	TimeScale uint32         `json:"timescale"`
	Duration  uint64         `json:"duration"`
	Tracks    []TrackSummary `json:"tracks"`
}

// Anomalous reports whether the track's first delta exceeds the second by
// more than slack, the same test Repair applies.
func (s TrackSummary) Anomalous(slack uint32) bool {
	return firstDeltaExceeds(s.FirstDelta, s.SecondDelta, slack)
}

// Inspect decodes the recording at path and summarizes its tracks.
func Inspect(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Summary{}, err
	}
	m, err := Decode(f, info.Size())
	if err != nil {
		return Summary{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Summarize(m), nil
}

// Summarize describes a decoded movie.
func Summarize(m *Movie) Summary {
	s := Summary{TimeScale: m.Header.TimeScale, Duration: m.Header.Duration}
	for _, t := range m.Tracks {
		ts := TrackSummary{
			TrackID:        t.Header.TrackID,
			Handler:        t.HandlerType,
			Audio:          t.IsAudio(),
			Samples:        len(t.Samples),
			TimeScale:      t.Media.TimeScale,
			HeaderDuration: t.Header.Duration,
			MediaDuration:  t.MediaDuration(),
		}
		ts.FirstDelta, ts.SecondDelta, _ = t.FirstDelta()
		s.Tracks = append(s.Tracks, ts)
	}
	return s
}
