package mp4

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/renameio/v2"
)

// DefaultSlack is how far the first sample delta may exceed the second
// before it is treated as corrupt.
const DefaultSlack = 10000

// Report describes what a repair pass found and changed.
type Report struct {
	Path string `json:"path"`
	// Anomalous lists the ids of tracks whose first sample delta was reset.
	Anomalous []uint32 `json:"anomalous_tracks,omitempty"`
	// Repaired is true when the file was rewritten.
	Repaired bool `json:"repaired"`
	// RemovedSamples counts leading audio samples that were dropped.
	RemovedSamples int    `json:"removed_samples"`
	AudioDuration  uint64 `json:"audio_duration"`
	VideoDuration  uint64 `json:"video_duration"`
	// Skipped explains why a file with an anomaly was left alone.
	Skipped string `json:"skipped,omitempty"`
}

// Repairer rewrites recordings whose first sample carries a corrupt
// timestamp, trimming leading audio that then overhangs the video.
type Repairer struct {
	Slack  uint32
	Logger *slog.Logger
}

// LeadingSamplesToDrop returns how many leading audio samples to drop so the
// remaining audio lasts at least the video duration and overhangs it by less
// than one audio sample. It returns 0 when no trim is needed.
func LeadingSamplesToDrop(audioSamples int, audioDuration, videoDuration uint64) int {
	if audioSamples <= 0 || audioDuration <= videoDuration {
		return 0
	}
	sampleLength := audioDuration / uint64(audioSamples)
	if sampleLength == 0 || audioDuration-videoDuration < sampleLength {
		return 0
	}
	for i := 1; i < audioSamples; i++ {
		remaining := uint64(audioSamples-i) * sampleLength
		if remaining >= videoDuration && remaining-videoDuration < sampleLength {
			return i
		}
	}
	return 0
}

func (r Repairer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r Repairer) slack() uint32 {
	if r.Slack == 0 {
		return DefaultSlack
	}
	return r.Slack
}

// Repair inspects the recording at path and rewrites it in place when a
// track's first sample delta is corrupt. A file without the defect is not
// touched. The rewrite replaces path atomically.
func (r Repairer) Repair(ctx context.Context, path string) (Report, error) {
	report := Report{Path: path}
	logger := r.logger().With("path", path)

	f, err := os.Open(path)
	if err != nil {
		return report, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return report, fmt.Errorf("stat recording: %w", err)
	}

	movie, err := Decode(f, info.Size())
	if err != nil {
		return report, fmt.Errorf("decode recording: %w", err)
	}

	for _, t := range movie.Tracks {
		if t.FixFirstDelta(r.slack()) {
			report.Anomalous = append(report.Anomalous, t.Header.TrackID)
		}
	}
	if len(report.Anomalous) == 0 {
		logger.Debug("No timestamp anomaly found")
		return report, nil
	}

	audio, video, ok := movie.AudioVideoPair()
	if !ok {
		report.Skipped = "recording does not have exactly one audio and one video track"
		logger.Warn("Timestamp anomaly found but tracks cannot be paired", "tracks", len(movie.Tracks))
		return report, nil
	}

	report.AudioDuration = audio.Header.Duration
	report.VideoDuration = video.Header.Duration
	report.RemovedSamples = LeadingSamplesToDrop(len(audio.Samples), audio.Header.Duration, video.Header.Duration)
	audio.CropLeading(report.RemovedSamples)
	movie.UpdateDurations()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if err := r.replace(path, movie, f); err != nil {
		return report, err
	}
	report.Repaired = true

	logger.Info("Recording repaired",
		"anomalous_tracks", report.Anomalous,
		"removed_audio_samples", report.RemovedSamples,
		"audio_duration", report.AudioDuration,
		"video_duration", report.VideoDuration)
	return report, nil
}

func (r Repairer) replace(path string, movie *Movie, src *os.File) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithExistingPermissions())
	if err != nil {
		return fmt.Errorf("create pending recording: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			r.logger().Debug("Cleanup pending recording", "error", err)
		}
	}()

	if err := Encode(pending, movie, src); err != nil {
		return fmt.Errorf("write repaired recording: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace recording: %w", err)
	}
	return nil
}
