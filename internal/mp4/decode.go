package mp4

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/AlexxIT/go2rtc/pkg/bits"
	"github.com/AlexxIT/go2rtc/pkg/iso"
)

const (
	boxEdts = "edts"
	boxCtts = "ctts"
	boxStss = "stss"
	boxStz2 = "stz2"
	boxCo64 = "co64"
	boxFree = "free"
	boxSkip = "skip"
	boxMoof = "moof"
)

// maxMoovSize bounds the in-memory moov read.
const maxMoovSize = 256 << 20

type box struct {
	typ     string
	payload []byte
	raw     []byte
}

// parseBoxes splits b into consecutive boxes.
func parseBoxes(b []byte) ([]box, error) {
	var boxes []box
	for len(b) > 0 {
		if len(b) < 8 {
			return nil, fmt.Errorf("%w: truncated box header", ErrMalformed)
		}
		r := bits.NewReader(b)
		size := uint64(r.ReadUint32())
		typ := string(r.ReadBytes(4))
		hdr := uint64(8)
		switch size {
		case 0:
			size = uint64(len(b))
		case 1:
			if len(b) < 16 {
				return nil, fmt.Errorf("%w: truncated %s header", ErrMalformed, typ)
			}
			size = readUint64(r)
			hdr = 16
		}
		if size < hdr || size > uint64(len(b)) {
			return nil, fmt.Errorf("%w: %s box size %d", ErrMalformed, typ, size)
		}
		boxes = append(boxes, box{typ: typ, payload: b[hdr:size], raw: b[:size]})
		b = b[size:]
	}
	return boxes, nil
}

type topBox struct {
	typ    string
	offset int64
	hdr    int64
	size   int64
}

// scanTopLevel walks the top-level box headers of a file.
func scanTopLevel(r io.ReaderAt, fileSize int64) ([]topBox, error) {
	var boxes []topBox
	var hdr [16]byte
	for off := int64(0); off < fileSize; {
		if fileSize-off < 8 {
			return nil, fmt.Errorf("%w: trailing %d bytes", ErrMalformed, fileSize-off)
		}
		if _, err := r.ReadAt(hdr[:8], off); err != nil {
			return nil, fmt.Errorf("read box header at %d: %w", off, err)
		}
		size := int64(binary.BigEndian.Uint32(hdr[:4]))
		typ := string(hdr[4:8])
		hlen := int64(8)
		switch size {
		case 0:
			size = fileSize - off
		case 1:
			if _, err := r.ReadAt(hdr[8:16], off+8); err != nil {
				return nil, fmt.Errorf("read %s large size: %w", typ, err)
			}
			size = int64(binary.BigEndian.Uint64(hdr[8:16]))
			hlen = 16
		}
		if size < hlen || off+size > fileSize {
			return nil, fmt.Errorf("%w: %s box at %d has size %d", ErrMalformed, typ, off, size)
		}
		boxes = append(boxes, topBox{typ: typ, offset: off, hdr: hlen, size: size})
		off += size
	}
	return boxes, nil
}

// Decode reads the movie structure of a progressive MPEG-4 file. Sample
// payloads stay in r and are referenced by offset.
func Decode(r io.ReaderAt, fileSize int64) (*Movie, error) {
	top, err := scanTopLevel(r, fileSize)
	if err != nil {
		return nil, err
	}

	m := &Movie{}
	var moov []byte
	for _, b := range top {
		switch b.typ {
		case iso.Ftyp:
			m.FileType = make([]byte, b.size)
			if _, err := r.ReadAt(m.FileType, b.offset); err != nil {
				return nil, fmt.Errorf("read ftyp: %w", err)
			}
		case iso.Moov:
			if moov != nil {
				return nil, fmt.Errorf("%w: multiple moov boxes", ErrMalformed)
			}
			if b.size > maxMoovSize {
				return nil, fmt.Errorf("%w: moov of %d bytes", ErrUnsupported, b.size)
			}
			moov = make([]byte, b.size-b.hdr)
			if _, err := r.ReadAt(moov, b.offset+b.hdr); err != nil {
				return nil, fmt.Errorf("read moov: %w", err)
			}
		case boxMoof:
			return nil, fmt.Errorf("%w: fragmented file", ErrUnsupported)
		}
	}
	if moov == nil {
		return nil, fmt.Errorf("%w: no moov box", ErrMalformed)
	}

	children, err := parseBoxes(moov)
	if err != nil {
		return nil, err
	}
	var haveHeader bool
	for _, c := range children {
		switch c.typ {
		case iso.MoovMvhd:
			if m.Header, err = decodeMovieHeader(c.payload); err != nil {
				return nil, err
			}
			haveHeader = true
		case iso.MoovTrak:
			t, err := decodeTrack(c.payload)
			if err != nil {
				return nil, err
			}
			m.Tracks = append(m.Tracks, t)
		case iso.MoovMvex:
			return nil, fmt.Errorf("%w: fragmented file", ErrUnsupported)
		default:
			m.Extra = append(m.Extra, c.raw)
		}
	}
	if !haveHeader {
		return nil, fmt.Errorf("%w: no mvhd box", ErrMalformed)
	}
	return m, nil
}

func readUint64(r *bits.Reader) uint64 {
	return uint64(r.ReadUint32())<<32 | uint64(r.ReadUint32())
}

// readFullBoxHeader returns version and flags.
func readFullBoxHeader(r *bits.Reader) (uint8, uint32) {
	return r.ReadByte(), r.ReadUint24()
}

func decodeMovieHeader(b []byte) (MovieHeader, error) {
	var h MovieHeader
	r := bits.NewReader(b)
	h.Version, _ = readFullBoxHeader(r)
	if h.Version == 1 {
		h.CreationTime = readUint64(r)
		h.ModificationTime = readUint64(r)
		h.TimeScale = r.ReadUint32()
		h.Duration = readUint64(r)
	} else {
		h.CreationTime = uint64(r.ReadUint32())
		h.ModificationTime = uint64(r.ReadUint32())
		h.TimeScale = r.ReadUint32()
		h.Duration = uint64(r.ReadUint32())
	}
	h.Rate = r.ReadUint32()
	h.Volume = r.ReadUint16()
	r.ReadBytes(10)
	for i := range h.Matrix {
		h.Matrix[i] = r.ReadUint32()
	}
	r.ReadBytes(24)
	h.NextTrackID = r.ReadUint32()
	if r.EOF {
		return h, fmt.Errorf("%w: short mvhd", ErrMalformed)
	}
	return h, nil
}

func decodeTrackHeader(b []byte) (TrackHeader, error) {
	var h TrackHeader
	r := bits.NewReader(b)
	h.Version, h.Flags = readFullBoxHeader(r)
	if h.Version == 1 {
		h.CreationTime = readUint64(r)
		h.ModificationTime = readUint64(r)
		h.TrackID = r.ReadUint32()
		r.ReadUint32()
		h.Duration = readUint64(r)
	} else {
		h.CreationTime = uint64(r.ReadUint32())
		h.ModificationTime = uint64(r.ReadUint32())
		h.TrackID = r.ReadUint32()
		r.ReadUint32()
		h.Duration = uint64(r.ReadUint32())
	}
	r.ReadBytes(8)
	h.Layer = r.ReadUint16()
	h.AlternateGroup = r.ReadUint16()
	h.Volume = r.ReadUint16()
	r.ReadUint16()
	for i := range h.Matrix {
		h.Matrix[i] = r.ReadUint32()
	}
	h.Width = r.ReadUint32()
	h.Height = r.ReadUint32()
	if r.EOF {
		return h, fmt.Errorf("%w: short tkhd", ErrMalformed)
	}
	return h, nil
}

func decodeMediaHeader(b []byte) (MediaHeader, error) {
	var h MediaHeader
	r := bits.NewReader(b)
	h.Version, _ = readFullBoxHeader(r)
	if h.Version == 1 {
		h.CreationTime = readUint64(r)
		h.ModificationTime = readUint64(r)
		h.TimeScale = r.ReadUint32()
		h.Duration = readUint64(r)
	} else {
		h.CreationTime = uint64(r.ReadUint32())
		h.ModificationTime = uint64(r.ReadUint32())
		h.TimeScale = r.ReadUint32()
		h.Duration = uint64(r.ReadUint32())
	}
	h.Language = r.ReadUint16()
	if r.EOF {
		return h, fmt.Errorf("%w: short mdhd", ErrMalformed)
	}
	return h, nil
}

func decodeTrack(b []byte) (*Track, error) {
	children, err := parseBoxes(b)
	if err != nil {
		return nil, err
	}
	t := &Track{}
	var haveHeader, haveMedia bool
	for _, c := range children {
		switch c.typ {
		case iso.MoovTrakTkhd:
			if t.Header, err = decodeTrackHeader(c.payload); err != nil {
				return nil, err
			}
			haveHeader = true
		case iso.MoovTrakMdia:
			if err = decodeMedia(t, c.payload); err != nil {
				return nil, fmt.Errorf("track %d: %w", t.Header.TrackID, err)
			}
			haveMedia = true
		case boxEdts:
			// edit lists describe the old timeline and are not carried over
		default:
			t.Extra = append(t.Extra, c.raw)
		}
	}
	if !haveHeader || !haveMedia {
		return nil, fmt.Errorf("%w: trak without tkhd or mdia", ErrMalformed)
	}
	return t, nil
}

func decodeMedia(t *Track, b []byte) error {
	children, err := parseBoxes(b)
	if err != nil {
		return err
	}
	var haveStbl bool
	for _, c := range children {
		switch c.typ {
		case iso.MoovTrakMdiaMdhd:
			if t.Media, err = decodeMediaHeader(c.payload); err != nil {
				return err
			}
		case iso.MoovTrakMdiaHdlr:
			t.Handler = c.raw
			if len(c.payload) >= 12 {
				t.HandlerType = string(c.payload[8:12])
			}
		case iso.MoovTrakMdiaMinf:
			minf, err := parseBoxes(c.payload)
			if err != nil {
				return err
			}
			for _, mc := range minf {
				if mc.typ != iso.MoovTrakMdiaMinfStbl {
					t.MediaInfo = append(t.MediaInfo, mc.raw)
					continue
				}
				if err := decodeSampleTable(t, mc.payload); err != nil {
					return err
				}
				haveStbl = true
			}
		default:
			t.MediaExtra = append(t.MediaExtra, c.raw)
		}
	}
	if !haveStbl {
		return fmt.Errorf("%w: no stbl", ErrMalformed)
	}
	return nil
}

type chunkRun struct {
	firstChunk      uint32
	samplesPerChunk uint32
	descIndex       uint32
}

func decodeSampleTable(t *Track, b []byte) error {
	children, err := parseBoxes(b)
	if err != nil {
		return err
	}

	var (
		sizes   []uint32
		runs    []chunkRun
		offsets []int64
	)
	for _, c := range children {
		r := bits.NewReader(c.payload)
		switch c.typ {
		case iso.MoovTrakMdiaMinfStblStsd:
			t.SampleDescription = c.raw
		case iso.MoovTrakMdiaMinfStblStts:
			readFullBoxHeader(r)
			n := r.ReadUint32()
			if err := checkCount(r, n, 8); err != nil {
				return err
			}
			t.TimeToSample = make([]TimeToSampleEntry, n)
			for i := range t.TimeToSample {
				t.TimeToSample[i] = TimeToSampleEntry{Count: r.ReadUint32(), Delta: r.ReadUint32()}
			}
		case boxCtts:
			t.CompositionVersion, _ = readFullBoxHeader(r)
			n := r.ReadUint32()
			if err := checkCount(r, n, 8); err != nil {
				return err
			}
			t.CompositionOffsets = make([]CompositionOffsetEntry, n)
			for i := range t.CompositionOffsets {
				t.CompositionOffsets[i] = CompositionOffsetEntry{Count: r.ReadUint32(), Offset: r.ReadUint32()}
			}
		case boxStss:
			readFullBoxHeader(r)
			n := r.ReadUint32()
			if err := checkCount(r, n, 4); err != nil {
				return err
			}
			t.SyncSamples = make([]uint32, n)
			for i := range t.SyncSamples {
				t.SyncSamples[i] = r.ReadUint32()
			}
		case iso.MoovTrakMdiaMinfStblStsz:
			readFullBoxHeader(r)
			fixed := r.ReadUint32()
			n := r.ReadUint32()
			if fixed == 0 {
				if err := checkCount(r, n, 4); err != nil {
					return err
				}
			}
			sizes = make([]uint32, n)
			for i := range sizes {
				if fixed != 0 {
					sizes[i] = fixed
				} else {
					sizes[i] = r.ReadUint32()
				}
			}
		case boxStz2:
			return fmt.Errorf("%w: compact sample sizes", ErrUnsupported)
		case iso.MoovTrakMdiaMinfStblStsc:
			readFullBoxHeader(r)
			n := r.ReadUint32()
			if err := checkCount(r, n, 12); err != nil {
				return err
			}
			runs = make([]chunkRun, n)
			for i := range runs {
				runs[i] = chunkRun{firstChunk: r.ReadUint32(), samplesPerChunk: r.ReadUint32(), descIndex: r.ReadUint32()}
			}
		case iso.MoovTrakMdiaMinfStblStco:
			readFullBoxHeader(r)
			n := r.ReadUint32()
			if err := checkCount(r, n, 4); err != nil {
				return err
			}
			offsets = make([]int64, n)
			for i := range offsets {
				offsets[i] = int64(r.ReadUint32())
			}
		case boxCo64:
			readFullBoxHeader(r)
			n := r.ReadUint32()
			if err := checkCount(r, n, 8); err != nil {
				return err
			}
			offsets = make([]int64, n)
			for i := range offsets {
				offsets[i] = int64(readUint64(r))
			}
		}
		if r.EOF {
			return fmt.Errorf("%w: short %s", ErrMalformed, c.typ)
		}
	}

	samples, err := expandSamples(sizes, runs, offsets)
	if err != nil {
		return err
	}
	t.Samples = samples

	var counted uint64
	for _, e := range t.TimeToSample {
		counted += uint64(e.Count)
	}
	if counted != uint64(len(samples)) {
		return fmt.Errorf("%w: stts covers %d samples, stsz has %d", ErrMalformed, counted, len(samples))
	}
	return nil
}

// checkCount rejects entry counts larger than the remaining payload.
func checkCount(r *bits.Reader, n uint32, entrySize int) error {
	if uint64(n)*uint64(entrySize) > uint64(len(r.Left())) {
		return fmt.Errorf("%w: table of %d entries exceeds box", ErrMalformed, n)
	}
	return nil
}

// expandSamples resolves the chunk tables into one file offset per sample.
func expandSamples(sizes []uint32, runs []chunkRun, offsets []int64) ([]Sample, error) {
	samples := make([]Sample, 0, len(sizes))
	for i, run := range runs {
		if run.firstChunk == 0 {
			return nil, fmt.Errorf("%w: stsc chunk index 0", ErrMalformed)
		}
		last := uint32(len(offsets))
		if i+1 < len(runs) {
			last = runs[i+1].firstChunk - 1
		}
		for chunk := run.firstChunk; chunk <= last; chunk++ {
			if int(chunk) > len(offsets) {
				return nil, fmt.Errorf("%w: stsc refers to chunk %d of %d", ErrMalformed, chunk, len(offsets))
			}
			off := offsets[chunk-1]
			for range run.samplesPerChunk {
				if len(samples) == len(sizes) {
					return nil, fmt.Errorf("%w: chunks hold more samples than stsz", ErrMalformed)
				}
				size := sizes[len(samples)]
				samples = append(samples, Sample{Offset: off, Size: size, DescriptionIndex: run.descIndex})
				off += int64(size)
			}
		}
	}
	if len(samples) != len(sizes) {
		return nil, fmt.Errorf("%w: chunks hold %d samples, stsz has %d", ErrMalformed, len(samples), len(sizes))
	}
	return samples, nil
}
