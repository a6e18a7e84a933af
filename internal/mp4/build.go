package mp4

import (
	"github.com/AlexxIT/go2rtc/pkg/iso"
)

// Track flags: enabled, in movie, in preview.
const defaultTrackFlags = 0x7

var identityMatrix = [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

// RotationMatrix returns the display matrix for a clockwise rotation of 0,
// 90, 180 or 270 degrees.
func RotationMatrix(degrees int) [9]uint32 {
	const one = 0x00010000
	const minusOne = 0xFFFF0000
	switch degrees {
	case 90:
		return [9]uint32{0, one, 0, minusOne, 0, 0, 0, 0, 0x40000000}
	case 180:
		return [9]uint32{minusOne, 0, 0, 0, minusOne, 0, 0, 0, 0x40000000}
	case 270:
		return [9]uint32{0, minusOne, 0, one, 0, 0, 0, 0, 0x40000000}
	default:
		return identityMatrix
	}
}

// NewMovie returns an empty movie with the given timescale.
func NewMovie(timescale uint32, matrix [9]uint32) *Movie {
	return &Movie{
		Header: MovieHeader{
			TimeScale:   timescale,
			Rate:        0x00010000,
			Volume:      0x0100,
			Matrix:      matrix,
			NextTrackID: 1,
		},
	}
}

// AddVideoTrack appends an H.264 track without samples.
func (m *Movie) AddVideoTrack(timescale uint32, width, height uint16) *Track {
	t := &Track{
		Header: TrackHeader{
			Flags:   defaultTrackFlags,
			TrackID: m.Header.NextTrackID,
			Matrix:  identityMatrix,
			Width:   uint32(width) << 16,
			Height:  uint32(height) << 16,
		},
		Media:       MediaHeader{TimeScale: timescale, Language: 0x55C4},
		HandlerType: "vide",
		Handler:     handlerBox("vide", "VideoHandle"),
		MediaInfo:   [][]byte{videoMediaHeaderBox(), dataInformationBox()},
		SampleDescription: sampleDescriptionBox(func(mv *iso.Movie) {
			mv.StartAtom("avc1")
			mv.Skip(6)
			mv.WriteUint16(1) // data reference index
			mv.Skip(16)
			mv.WriteUint16(width)
			mv.WriteUint16(height)
			mv.WriteUint32(0x00480000)
			mv.WriteUint32(0x00480000)
			mv.Skip(4)
			mv.WriteUint16(1) // frame count
			mv.Skip(32)       // compressor name
			mv.WriteUint16(0x0018)
			mv.WriteUint16(0xFFFF)
			mv.EndAtom()
		}),
		SyncSamples: []uint32{},
	}
	m.Tracks = append(m.Tracks, t)
	m.Header.NextTrackID++
	return t
}

// AddAudioTrack appends an AAC track without samples.
func (m *Movie) AddAudioTrack(sampleRate uint32, channels uint16) *Track {
	t := &Track{
		Header: TrackHeader{
			Flags:          defaultTrackFlags,
			TrackID:        m.Header.NextTrackID,
			AlternateGroup: 1,
			Volume:         0x0100,
			Matrix:         identityMatrix,
		},
		Media:       MediaHeader{TimeScale: sampleRate, Language: 0x55C4},
		HandlerType: "soun",
		Handler:     handlerBox("soun", "SoundHandle"),
		MediaInfo:   [][]byte{soundMediaHeaderBox(), dataInformationBox()},
		SampleDescription: sampleDescriptionBox(func(mv *iso.Movie) {
			mv.StartAtom("mp4a")
			mv.Skip(6)
			mv.WriteUint16(1) // data reference index
			mv.Skip(8)
			mv.WriteUint16(channels)
			mv.WriteUint16(16)
			mv.Skip(4)
			mv.WriteUint32(sampleRate << 16)
			mv.EndAtom()
		}),
	}
	m.Tracks = append(m.Tracks, t)
	m.Header.NextTrackID++
	return t
}

// AppendSample adds one sample stored at offset in the payload source.
func (t *Track) AppendSample(offset int64, size, delta uint32, sync bool) {
	t.Samples = append(t.Samples, Sample{Offset: offset, Size: size, DescriptionIndex: 1})
	if n := len(t.TimeToSample); n > 0 && t.TimeToSample[n-1].Delta == delta {
		t.TimeToSample[n-1].Count++
	} else {
		t.TimeToSample = append(t.TimeToSample, TimeToSampleEntry{Count: 1, Delta: delta})
	}
	if sync && t.SyncSamples != nil {
		t.SyncSamples = append(t.SyncSamples, uint32(len(t.Samples)))
	}
}

func handlerBox(handler, name string) []byte {
	mv := iso.NewMovie(64)
	mv.StartAtom(iso.MoovTrakMdiaHdlr)
	mv.Skip(4) // version, flags
	mv.Skip(4) // pre-defined
	mv.Write([]byte(handler))
	mv.Skip(12)
	mv.Write([]byte(name))
	mv.WriteBytes(0)
	mv.EndAtom()
	return mv.Bytes()
}

func videoMediaHeaderBox() []byte {
	mv := iso.NewMovie(24)
	mv.StartAtom(iso.MoovTrakMdiaMinfVmhd)
	mv.WriteBytes(0, 0, 0, 1)
	mv.Skip(8)
	mv.EndAtom()
	return mv.Bytes()
}

func soundMediaHeaderBox() []byte {
	mv := iso.NewMovie(16)
	mv.StartAtom(iso.MoovTrakMdiaMinfSmhd)
	mv.Skip(8)
	mv.EndAtom()
	return mv.Bytes()
}

func dataInformationBox() []byte {
	mv := iso.NewMovie(40)
	mv.StartAtom(iso.MoovTrakMdiaMinfDinf)
	mv.StartAtom(iso.MoovTrakMdiaMinfDinfDref)
	mv.Skip(4)
	mv.WriteUint32(1)
	mv.StartAtom(iso.MoovTrakMdiaMinfDinfDrefUrl)
	mv.WriteBytes(0, 0, 0, 1) // self-contained
	mv.EndAtom()
	mv.EndAtom()
	mv.EndAtom()
	return mv.Bytes()
}

func sampleDescriptionBox(entry func(mv *iso.Movie)) []byte {
	mv := iso.NewMovie(128)
	mv.StartAtom(iso.MoovTrakMdiaMinfStblStsd)
	mv.Skip(4)
	mv.WriteUint32(1)
	entry(mv)
	mv.EndAtom()
	return mv.Bytes()
}
