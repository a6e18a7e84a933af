package mp4

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	videoSamples    int
	videoDelta      uint32
	videoFirstDelta uint32
	audioSamples    int
	audioDelta      uint32
	audioFirstDelta uint32
	videoDuration   uint64
	audioDuration   uint64
	extraAudio      bool
	matrix          [9]uint32
}

func sampleBytes(track, i int) []byte {
	b := make([]byte, 8+i%5)
	for j := range b {
		b[j] = byte(track*64 + i)
	}
	return b
}

// buildFixture returns a movie and the payload its sample offsets refer to.
func buildFixture(fx fixture) (*Movie, []byte) {
	m := NewMovie(1000, fx.matrix)
	var payload bytes.Buffer

	add := func(t *Track, track, n int, delta, first uint32) {
		for i := range n {
			d := delta
			if i == 0 && first != 0 {
				d = first
			}
			b := sampleBytes(track, i)
			t.AppendSample(int64(payload.Len()), uint32(len(b)), d, i%10 == 0)
			payload.Write(b)
		}
	}

	video := m.AddVideoTrack(1000, 640, 480)
	add(video, 0, fx.videoSamples, fx.videoDelta, fx.videoFirstDelta)
	audio := m.AddAudioTrack(1000, 1)
	add(audio, 1, fx.audioSamples, fx.audioDelta, fx.audioFirstDelta)
	if fx.extraAudio {
		extra := m.AddAudioTrack(1000, 1)
		add(extra, 2, fx.audioSamples, fx.audioDelta, 0)
	}

	m.UpdateDurations()
	if fx.videoDuration != 0 {
		video.Header.Duration = fx.videoDuration
	}
	if fx.audioDuration != 0 {
		audio.Header.Duration = fx.audioDuration
	}
	return m, payload.Bytes()
}

func writeFixture(t *testing.T, fx fixture) (string, *Movie, []byte) {
	t.Helper()
	m, payload := buildFixture(fx)
	path := filepath.Join(t.TempDir(), "recording.mp4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Encode(f, m, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path, m, payload
}

func decodeFile(t *testing.T, path string) (*Movie, *os.File) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	info, _ := f.Stat()
	m, err := Decode(f, info.Size())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return m, f
}

func readSample(t *testing.T, r io.ReaderAt, s Sample) []byte {
	t.Helper()
	b := make([]byte, s.Size)
	if _, err := r.ReadAt(b, s.Offset); err != nil {
		t.Fatalf("read sample: %v", err)
	}
	return b
}

func defectiveFixture() fixture {
	return fixture{
		videoSamples:    50,
		videoDelta:      30,
		audioSamples:    100,
		audioDelta:      20,
		audioFirstDelta: 20 + 15000,
		videoDuration:   1500,
		audioDuration:   2000,
		matrix:          RotationMatrix(90),
	}
}

func TestRepairCropsLeadingAudio(t *testing.T) {
	path, _, _ := writeFixture(t, defectiveFixture())

	report, err := Repairer{}.Repair(context.Background(), path)
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if !report.Repaired {
		t.Fatalf("Repair() did not rewrite the file: %+v", report)
	}
	if report.RemovedSamples != 25 {
		t.Errorf("RemovedSamples = %d, want 25", report.RemovedSamples)
	}
	if diff := cmp.Diff([]uint32{2}, report.Anomalous); diff != "" {
		t.Errorf("Anomalous mismatch (-want +got):\n%s", diff)
	}

	m, f := decodeFile(t, path)
	audio, video, ok := m.AudioVideoPair()
	if !ok {
		t.Fatal("repaired file lost its audio/video pair")
	}
	if len(audio.Samples) != 75 {
		t.Errorf("audio samples = %d, want 75", len(audio.Samples))
	}
	if len(video.Samples) != 50 {
		t.Errorf("video samples = %d, want 50", len(video.Samples))
	}

	sampleLength := uint64(20)
	ad, vd := audio.Header.Duration, video.Header.Duration
	if ad < vd || ad-vd >= sampleLength {
		t.Errorf("audio duration %d not within one sample of video %d", ad, vd)
	}
	if first, _, _ := audio.FirstDelta(); first > 20 {
		t.Errorf("first audio delta = %d, want <= 20", first)
	}
	if m.Header.Matrix != RotationMatrix(90) {
		t.Errorf("movie matrix = %v, want 90 degree rotation", m.Header.Matrix)
	}

	// the first kept audio sample is original sample 26
	if got, want := readSample(t, f, audio.Samples[0]), sampleBytes(1, 25); !bytes.Equal(got, want) {
		t.Errorf("first audio payload = %v, want %v", got, want)
	}
	if got, want := readSample(t, f, video.Samples[49]), sampleBytes(0, 49); !bytes.Equal(got, want) {
		t.Errorf("last video payload = %v, want %v", got, want)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	path, _, _ := writeFixture(t, defectiveFixture())

	if _, err := (Repairer{}).Repair(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	report, err := Repairer{}.Repair(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if report.Repaired {
		t.Error("second pass rewrote an already repaired file")
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("second pass changed the file")
	}
}

func TestRepairLeavesCleanFileUntouched(t *testing.T) {
	tests := []struct {
		name string
		fx   fixture
	}{
		{
			name: "no anomaly",
			fx:   fixture{videoSamples: 30, videoDelta: 33, audioSamples: 40, audioDelta: 23},
		},
		{
			name: "difference equal to slack",
			fx:   fixture{videoSamples: 30, videoDelta: 33, audioSamples: 40, audioDelta: 23, audioFirstDelta: 23 + DefaultSlack},
		},
		{
			name: "anomaly with unpaired tracks",
			fx: fixture{videoSamples: 30, videoDelta: 33, audioSamples: 40, audioDelta: 23,
				audioFirstDelta: 23 + 50000, extraAudio: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, _, _ := writeFixture(t, tt.fx)
			before, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}

			report, err := Repairer{}.Repair(context.Background(), path)
			if err != nil {
				t.Fatalf("Repair() error = %v", err)
			}
			if report.Repaired {
				t.Errorf("Repair() rewrote the file: %+v", report)
			}

			after, _ := os.ReadFile(path)
			if !bytes.Equal(before, after) {
				t.Error("file changed")
			}
		})
	}
}

func TestRepairVideoAnomalyWithoutOverhang(t *testing.T) {
	path, _, _ := writeFixture(t, fixture{
		videoSamples: 30, videoDelta: 33, videoFirstDelta: 33 + 20000,
		audioSamples: 40, audioDelta: 23,
	})

	report, err := Repairer{}.Repair(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Repaired || report.RemovedSamples != 0 {
		t.Errorf("report = %+v, want rewrite without cropping", report)
	}

	m, _ := decodeFile(t, path)
	_, video, _ := m.AudioVideoPair()
	if video.MediaDuration() != 30*33 {
		t.Errorf("video media duration = %d, want %d", video.MediaDuration(), 30*33)
	}
}

func TestRepairCustomSlack(t *testing.T) {
	path, _, _ := writeFixture(t, fixture{
		videoSamples: 30, videoDelta: 33,
		audioSamples: 40, audioDelta: 23, audioFirstDelta: 23 + 500,
	})

	report, err := Repairer{Slack: 100}.Repair(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Anomalous) != 1 {
		t.Errorf("Anomalous = %v, want one track", report.Anomalous)
	}
}

func TestRepairErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := (Repairer{}).Repair(context.Background(), filepath.Join(dir, "missing.mp4")); err == nil {
		t.Error("expected error for missing file")
	}

	garbage := filepath.Join(dir, "garbage.mp4")
	if err := os.WriteFile(garbage, []byte("\x00\x00\x00\x20moov-truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Repairer{}.Repair(context.Background(), garbage)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Repair(garbage) error = %v, want ErrMalformed", err)
	}
}

func TestLeadingSamplesToDrop(t *testing.T) {
	tests := []struct {
		name         string
		samples      int
		audio, video uint64
		want         int
	}{
		{"audio shorter", 100, 1000, 2000, 0},
		{"equal", 100, 2000, 2000, 0},
		{"overhang below one sample", 100, 2000, 1990, 0},
		{"exact multiple", 100, 2000, 1500, 25},
		{"partial sample", 100, 2000, 1510, 24},
		{"no samples", 0, 2000, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LeadingSamplesToDrop(tt.samples, tt.audio, tt.video); got != tt.want {
				t.Errorf("LeadingSamplesToDrop(%d, %d, %d) = %d, want %d", tt.samples, tt.audio, tt.video, got, tt.want)
			}
		})
	}
}

func TestCropLeadingAdjustsTables(t *testing.T) {
	tr := &Track{
		TimeToSample:       []TimeToSampleEntry{{Count: 1, Delta: 900}, {Count: 9, Delta: 30}},
		CompositionOffsets: []CompositionOffsetEntry{{Count: 2, Offset: 60}, {Count: 8, Offset: 30}},
		SyncSamples:        []uint32{1, 4, 8},
	}
	for i := range 10 {
		tr.Samples = append(tr.Samples, Sample{Offset: int64(i * 10), Size: 10, DescriptionIndex: 1})
	}

	tr.CropLeading(4)

	if len(tr.Samples) != 6 || tr.Samples[0].Offset != 40 {
		t.Errorf("samples = %+v", tr.Samples)
	}
	if diff := cmp.Diff([]TimeToSampleEntry{{Count: 6, Delta: 30}}, tr.TimeToSample); diff != "" {
		t.Errorf("stts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]CompositionOffsetEntry{{Count: 6, Offset: 30}}, tr.CompositionOffsets); diff != "" {
		t.Errorf("ctts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{4}, tr.SyncSamples); diff != "" {
		t.Errorf("stss mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDecodePreservesStructure(t *testing.T) {
	fx := fixture{videoSamples: 12, videoDelta: 3000, audioSamples: 20, audioDelta: 1024, matrix: RotationMatrix(270)}
	path, want, payload := writeFixture(t, fx)

	got, f := decodeFile(t, path)
	if diff := cmp.Diff(Summarize(want), Summarize(got)); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if got.Header.Matrix != RotationMatrix(270) {
		t.Errorf("matrix = %v", got.Header.Matrix)
	}
	for ti, tr := range got.Tracks {
		for i, s := range tr.Samples {
			orig := want.Tracks[ti].Samples[i]
			if !bytes.Equal(readSample(t, f, s), payload[orig.Offset:orig.Offset+int64(orig.Size)]) {
				t.Fatalf("track %d sample %d payload mismatch", ti, i)
			}
		}
	}
	if diff := cmp.Diff(want.Tracks[0].SyncSamples, got.Tracks[0].SyncSamples); diff != "" {
		t.Errorf("sync samples mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect(t *testing.T) {
	path, _, _ := writeFixture(t, defectiveFixture())

	s, err := Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Tracks) != 2 {
		t.Fatalf("tracks = %d", len(s.Tracks))
	}
	if s.Tracks[0].Audio || !s.Tracks[1].Audio {
		t.Errorf("audio flags = %v, %v", s.Tracks[0].Audio, s.Tracks[1].Audio)
	}
	if !s.Tracks[1].Anomalous(DefaultSlack) || s.Tracks[0].Anomalous(DefaultSlack) {
		t.Errorf("anomaly flags wrong: %+v", s.Tracks)
	}
	if s.Tracks[1].Handler != "soun" || s.Tracks[0].Handler != "vide" {
		t.Errorf("handlers = %q, %q", s.Tracks[0].Handler, s.Tracks[1].Handler)
	}
}

func TestAnomalousAgreesWithRepair(t *testing.T) {
	tests := []struct {
		name  string
		stts  []TimeToSampleEntry
		fixed bool
	}{
		{"within slack", []TimeToSampleEntry{{Count: 1, Delta: 23 + DefaultSlack}, {Count: 9, Delta: 23}}, false},
		{"beyond slack", []TimeToSampleEntry{{Count: 1, Delta: 24 + DefaultSlack}, {Count: 9, Delta: 23}}, true},
		{"zero second delta", []TimeToSampleEntry{{Count: 1, Delta: 20000}, {Count: 9, Delta: 0}}, true},
		{"single run", []TimeToSampleEntry{{Count: 10, Delta: 20000}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := &Track{TimeToSample: tt.stts}
			var summary TrackSummary
			summary.FirstDelta, summary.SecondDelta, _ = track.FirstDelta()

			if got := summary.Anomalous(DefaultSlack); got != tt.fixed {
				t.Errorf("Anomalous() = %v, want %v", got, tt.fixed)
			}
			if got := track.FixFirstDelta(DefaultSlack); got != tt.fixed {
				t.Errorf("FixFirstDelta() = %v, want %v", got, tt.fixed)
			}
		})
	}
}
