package mp4

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/AlexxIT/go2rtc/pkg/iso"
)

// chunk is a run of consecutive samples of one track sharing a sample
// description.
type chunk struct {
	first int
	count int
	desc  uint32
}

func planChunks(t *Track) []chunk {
	var chunks []chunk
	for i, s := range t.Samples {
		if n := len(chunks); n > 0 && chunks[n-1].desc == s.DescriptionIndex {
			chunks[n-1].count++
			continue
		}
		chunks = append(chunks, chunk{first: i, count: 1, desc: s.DescriptionIndex})
	}
	return chunks
}

// Encode writes m as ftyp, moov and a single mdat. Each track's samples are
// copied from src in order as one contiguous run.
func Encode(w io.Writer, m *Movie, src io.ReaderAt) error {
	ftyp := m.FileType
	if ftyp == nil {
		ftyp = defaultFileType()
	}

	layouts := make([][]chunk, len(m.Tracks))
	var payload int64
	for i, t := range m.Tracks {
		layouts[i] = planChunks(t)
		for _, s := range t.Samples {
			payload += int64(s.Size)
		}
	}

	mdatHdr := int64(8)
	if payload+8 > math.MaxUint32 {
		mdatHdr = 16
	}

	moovLen := int64(len(encodeMoov(m, layouts, 0, false)))
	co64 := int64(len(ftyp))+moovLen+mdatHdr+payload > math.MaxUint32
	if co64 {
		moovLen = int64(len(encodeMoov(m, layouts, 0, true)))
	}
	base := int64(len(ftyp)) + moovLen + mdatHdr
	moov := encodeMoov(m, layouts, base, co64)

	bw := bufio.NewWriterSize(w, 1<<20)
	if _, err := bw.Write(ftyp); err != nil {
		return err
	}
	if _, err := bw.Write(moov); err != nil {
		return err
	}
	if err := writeMdatHeader(bw, payload, mdatHdr); err != nil {
		return err
	}
	for _, t := range m.Tracks {
		for i, s := range t.Samples {
			if _, err := io.CopyN(bw, io.NewSectionReader(src, s.Offset, int64(s.Size)), int64(s.Size)); err != nil {
				return fmt.Errorf("copy sample %d of track %d: %w", i+1, t.Header.TrackID, err)
			}
		}
	}
	return bw.Flush()
}

func writeMdatHeader(w io.Writer, payload, hdr int64) error {
	mv := iso.NewMovie(16)
	if hdr == 16 {
		mv.WriteUint32(1)
		mv.Write([]byte(iso.Mdat))
		mv.WriteUint64(uint64(payload + 16))
	} else {
		mv.WriteUint32(uint32(payload + 8))
		mv.Write([]byte(iso.Mdat))
	}
	_, err := w.Write(mv.Bytes())
	return err
}

func defaultFileType() []byte {
	mv := iso.NewMovie(32)
	mv.StartAtom(iso.Ftyp)
	mv.Write([]byte("isom"))
	mv.WriteUint32(0x200)
	for _, brand := range []string{"isom", "iso2", "avc1", "mp41"} {
		mv.Write([]byte(brand))
	}
	mv.EndAtom()
	return mv.Bytes()
}

func encodeMoov(m *Movie, layouts [][]chunk, base int64, co64 bool) []byte {
	mv := iso.NewMovie(64 << 10)
	mv.StartAtom(iso.Moov)
	writeMovieHeader(mv, m.Header)

	offset := base
	for i, t := range m.Tracks {
		offset = writeTrack(mv, t, layouts[i], offset, co64)
	}
	for _, raw := range m.Extra {
		mv.Write(raw)
	}
	mv.EndAtom()
	return mv.Bytes()
}

func needsVersion1(values ...uint64) bool {
	for _, v := range values {
		if v > math.MaxUint32 {
			return true
		}
	}
	return false
}

func writeTimes(mv *iso.Movie, version uint8, created, modified uint64) {
	if version == 1 {
		mv.WriteUint64(created)
		mv.WriteUint64(modified)
		return
	}
	mv.WriteUint32(uint32(created))
	mv.WriteUint32(uint32(modified))
}

func writeDuration(mv *iso.Movie, version uint8, d uint64) {
	if version == 1 {
		mv.WriteUint64(d)
		return
	}
	mv.WriteUint32(uint32(d))
}

func writeMovieHeader(mv *iso.Movie, h MovieHeader) {
	version := h.Version
	if needsVersion1(h.CreationTime, h.ModificationTime, h.Duration) {
		version = 1
	}

	mv.StartAtom(iso.MoovMvhd)
	mv.WriteBytes(version, 0, 0, 0)
	writeTimes(mv, version, h.CreationTime, h.ModificationTime)
	mv.WriteUint32(h.TimeScale)
	writeDuration(mv, version, h.Duration)
	mv.WriteUint32(h.Rate)
	mv.WriteUint16(h.Volume)
	mv.Skip(10)
	for _, v := range h.Matrix {
		mv.WriteUint32(v)
	}
	mv.Skip(24)
	mv.WriteUint32(h.NextTrackID)
	mv.EndAtom()
}

func writeTrackHeader(mv *iso.Movie, h TrackHeader) {
	version := h.Version
	if needsVersion1(h.CreationTime, h.ModificationTime, h.Duration) {
		version = 1
	}

	mv.StartAtom(iso.MoovTrakTkhd)
	mv.WriteBytes(version)
	mv.WriteUint24(h.Flags)
	writeTimes(mv, version, h.CreationTime, h.ModificationTime)
	mv.WriteUint32(h.TrackID)
	mv.Skip(4)
	writeDuration(mv, version, h.Duration)
	mv.Skip(8)
	mv.WriteUint16(h.Layer)
	mv.WriteUint16(h.AlternateGroup)
	mv.WriteUint16(h.Volume)
	mv.Skip(2)
	for _, v := range h.Matrix {
		mv.WriteUint32(v)
	}
	mv.WriteUint32(h.Width)
	mv.WriteUint32(h.Height)
	mv.EndAtom()
}

func writeMediaHeader(mv *iso.Movie, h MediaHeader) {
	version := h.Version
	if needsVersion1(h.CreationTime, h.ModificationTime, h.Duration) {
		version = 1
	}

	mv.StartAtom(iso.MoovTrakMdiaMdhd)
	mv.WriteBytes(version, 0, 0, 0)
	writeTimes(mv, version, h.CreationTime, h.ModificationTime)
	mv.WriteUint32(h.TimeScale)
	writeDuration(mv, version, h.Duration)
	mv.WriteUint16(h.Language)
	mv.Skip(2)
	mv.EndAtom()
}

// writeTrack writes one trak box and returns the file offset following the
// track's samples.
func writeTrack(mv *iso.Movie, t *Track, chunks []chunk, offset int64, co64 bool) int64 {
	mv.StartAtom(iso.MoovTrak)
	writeTrackHeader(mv, t.Header)
	for _, raw := range t.Extra {
		mv.Write(raw)
	}

	mv.StartAtom(iso.MoovTrakMdia)
	writeMediaHeader(mv, t.Media)
	mv.Write(t.Handler)
	for _, raw := range t.MediaExtra {
		mv.Write(raw)
	}

	mv.StartAtom(iso.MoovTrakMdiaMinf)
	for _, raw := range t.MediaInfo {
		mv.Write(raw)
	}

	mv.StartAtom(iso.MoovTrakMdiaMinfStbl)
	mv.Write(t.SampleDescription)

	mv.StartAtom(iso.MoovTrakMdiaMinfStblStts)
	mv.Skip(4)
	mv.WriteUint32(uint32(len(t.TimeToSample)))
	for _, e := range t.TimeToSample {
		mv.WriteUint32(e.Count)
		mv.WriteUint32(e.Delta)
	}
	mv.EndAtom()

	if t.CompositionOffsets != nil {
		mv.StartAtom(boxCtts)
		mv.WriteBytes(t.CompositionVersion, 0, 0, 0)
		mv.WriteUint32(uint32(len(t.CompositionOffsets)))
		for _, e := range t.CompositionOffsets {
			mv.WriteUint32(e.Count)
			mv.WriteUint32(e.Offset)
		}
		mv.EndAtom()
	}

	if t.SyncSamples != nil {
		mv.StartAtom(boxStss)
		mv.Skip(4)
		mv.WriteUint32(uint32(len(t.SyncSamples)))
		for _, s := range t.SyncSamples {
			mv.WriteUint32(s)
		}
		mv.EndAtom()
	}

	mv.StartAtom(iso.MoovTrakMdiaMinfStblStsz)
	mv.Skip(4)
	mv.WriteUint32(0)
	mv.WriteUint32(uint32(len(t.Samples)))
	for _, s := range t.Samples {
		mv.WriteUint32(s.Size)
	}
	mv.EndAtom()

	mv.StartAtom(iso.MoovTrakMdiaMinfStblStsc)
	mv.Skip(4)
	var runs []chunkRun
	for i, c := range chunks {
		if n := len(runs); n > 0 && runs[n-1].samplesPerChunk == uint32(c.count) && runs[n-1].descIndex == c.desc {
			continue
		}
		runs = append(runs, chunkRun{firstChunk: uint32(i + 1), samplesPerChunk: uint32(c.count), descIndex: c.desc})
	}
	mv.WriteUint32(uint32(len(runs)))
	for _, r := range runs {
		mv.WriteUint32(r.firstChunk)
		mv.WriteUint32(r.samplesPerChunk)
		mv.WriteUint32(r.descIndex)
	}
	mv.EndAtom()

	if co64 {
		mv.StartAtom(boxCo64)
	} else {
		mv.StartAtom(iso.MoovTrakMdiaMinfStblStco)
	}
	mv.Skip(4)
	mv.WriteUint32(uint32(len(chunks)))
	for _, c := range chunks {
		if co64 {
			mv.WriteUint64(uint64(offset))
		} else {
			mv.WriteUint32(uint32(offset))
		}
		for _, s := range t.Samples[c.first : c.first+c.count] {
			offset += int64(s.Size)
		}
	}
	mv.EndAtom()

	mv.EndAtom() // stbl
	mv.EndAtom() // minf
	mv.EndAtom() // mdia
	mv.EndAtom() // trak
	return offset
}
