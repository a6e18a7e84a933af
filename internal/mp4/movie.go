// Package mp4 reads and rewrites the sample tables of progressive MPEG-4
// recordings and repairs the first-sample timestamp defect some encoders
// produce.
//
// Only the boxes needed to rebuild the sample tables are decoded. Handler,
// media-info and sample-description boxes are carried through as raw bytes.
package mp4

import "errors"

var (
	// ErrMalformed is returned for truncated or inconsistent boxes.
	ErrMalformed = errors.New("malformed mp4")
	// ErrUnsupported is returned for layouts the rebuilder cannot handle,
	// such as fragmented files.
	ErrUnsupported = errors.New("unsupported mp4 layout")
)

// MovieHeader is the decoded mvhd box.
type MovieHeader struct {
	Version          uint8
	CreationTime     uint64
	ModificationTime uint64
	TimeScale        uint32
	Duration         uint64
	Rate             uint32
	Volume           uint16
	Matrix           [9]uint32
	NextTrackID      uint32
}

// TrackHeader is the decoded tkhd box.
type TrackHeader struct {
	Version          uint8
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Layer            uint16
	AlternateGroup   uint16
	Volume           uint16
	Matrix           [9]uint32
	Width            uint32 // 16.16 fixed point
	Height           uint32 // 16.16 fixed point
}

// MediaHeader is the decoded mdhd box.
type MediaHeader struct {
	Version          uint8
	CreationTime     uint64
	ModificationTime uint64
	TimeScale        uint32
	Duration         uint64
	Language         uint16
}

// TimeToSampleEntry is one stts run.
type TimeToSampleEntry struct {
	Count uint32
	Delta uint32
}

// CompositionOffsetEntry is one ctts run. Offset keeps the raw 32 bits; it is
// signed when the ctts version is 1.
type CompositionOffsetEntry struct {
	Count  uint32
	Offset uint32
}

// Sample locates one sample payload in the source file.
type Sample struct {
	Offset           int64
	Size             uint32
	DescriptionIndex uint32
}

// Track is a decoded trak box.
type Track struct {
	Header      TrackHeader
	Media       MediaHeader
	HandlerType string

	Handler           []byte   // raw hdlr box
	MediaInfo         [][]byte // raw minf children other than stbl
	SampleDescription []byte   // raw stsd box
	Extra             [][]byte // raw trak children other than tkhd, mdia and edts
	MediaExtra        [][]byte // raw mdia children other than mdhd, hdlr and minf

	TimeToSample       []TimeToSampleEntry
	CompositionVersion uint8
	CompositionOffsets []CompositionOffsetEntry
	// SyncSamples holds 1-based sample numbers. Nil means every sample is a
	// sync sample.
	SyncSamples []uint32
	Samples     []Sample
}

// Movie is a decoded progressive MPEG-4 file.
type Movie struct {
	FileType []byte // raw ftyp box
	Header   MovieHeader
	Tracks   []*Track
	Extra    [][]byte // raw moov children other than mvhd and trak
}

// IsAudio reports whether the track plays sound. Recorders set a non-zero
// volume only on audio tracks.
func (t *Track) IsAudio() bool {
	return t.Header.Volume != 0
}

// MediaDuration sums the time-to-sample table in media timescale units.
func (t *Track) MediaDuration() uint64 {
	var d uint64
	for _, e := range t.TimeToSample {
		d += uint64(e.Count) * uint64(e.Delta)
	}
	return d
}

// FirstDelta returns the delta of the first stts run and of the run after
// it. ok is false when the table has fewer than two runs.
func (t *Track) FirstDelta() (first, second uint32, ok bool) {
	if len(t.TimeToSample) < 2 {
		return 0, 0, false
	}
	return t.TimeToSample[0].Delta, t.TimeToSample[1].Delta, true
}

func firstDeltaExceeds(first, second, slack uint32) bool {
	return uint64(first) > uint64(second)+uint64(slack)
}

// FixFirstDelta replaces a first delta that exceeds the second by more than
// slack with the second delta. It reports whether the table changed.
func (t *Track) FixFirstDelta(slack uint32) bool {
	first, second, ok := t.FirstDelta()
	if !ok {
		return false
	}
	if !firstDeltaExceeds(first, second, slack) {
		return false
	}
	t.TimeToSample[0].Delta = second
	t.TimeToSample = mergeTimeToSample(t.TimeToSample)
	return true
}

// CropLeading drops the first n samples and every table entry that refers
// to them.
func (t *Track) CropLeading(n int) {
	if n <= 0 {
		return
	}
	n = min(n, len(t.Samples))
	t.Samples = t.Samples[n:]
	t.TimeToSample = dropTimeToSample(t.TimeToSample, n)
	t.CompositionOffsets = dropCompositionOffsets(t.CompositionOffsets, n)

	if t.SyncSamples != nil {
		kept := make([]uint32, 0, len(t.SyncSamples))
		for _, s := range t.SyncSamples {
			if s > uint32(n) {
				kept = append(kept, s-uint32(n))
			}
		}
		t.SyncSamples = kept
	}
}

// UpdateDurations recomputes the media, track and movie durations from the
// time-to-sample tables.
func (m *Movie) UpdateDurations() {
	var longest uint64
	for _, t := range m.Tracks {
		md := t.MediaDuration()
		t.Media.Duration = md
		if t.Media.TimeScale > 0 {
			t.Header.Duration = md * uint64(m.Header.TimeScale) / uint64(t.Media.TimeScale)
		}
		longest = max(longest, t.Header.Duration)
	}
	m.Header.Duration = longest
}

// AudioVideoPair returns the single audio and single video track. ok is
// false unless the movie has exactly one of each.
func (m *Movie) AudioVideoPair() (audio, video *Track, ok bool) {
	for _, t := range m.Tracks {
		if t.IsAudio() {
			if audio != nil {
				return nil, nil, false
			}
			audio = t
			continue
		}
		if video != nil {
			return nil, nil, false
		}
		video = t
	}
	return audio, video, audio != nil && video != nil
}

func mergeTimeToSample(entries []TimeToSampleEntry) []TimeToSampleEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Count == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Delta == e.Delta {
			out[n-1].Count += e.Count
			continue
		}
		out = append(out, e)
	}
	return out
}

func dropTimeToSample(entries []TimeToSampleEntry, n int) []TimeToSampleEntry {
	out := make([]TimeToSampleEntry, 0, len(entries))
	remaining := uint32(n)
	for _, e := range entries {
		if remaining >= e.Count {
			remaining -= e.Count
			continue
		}
		e.Count -= remaining
		remaining = 0
		out = append(out, e)
	}
	return out
}

func dropCompositionOffsets(entries []CompositionOffsetEntry, n int) []CompositionOffsetEntry {
	if entries == nil {
		return nil
	}
	out := make([]CompositionOffsetEntry, 0, len(entries))
	remaining := uint32(n)
	for _, e := range entries {
		if remaining >= e.Count {
			remaining -= e.Count
			continue
		}
		e.Count -= remaining
		remaining = 0
		out = append(out, e)
	}
	return out
}
