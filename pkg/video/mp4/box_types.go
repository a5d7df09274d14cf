package mp4

import (
	"math"

	"movierec/pkg/video/mp4/bitio"
)

// Unity is the identity transformation matrix.
// Values are fixed-point 16.16 except for the last column which is 2.30.
var Unity = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func typ(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Container box types that only hold children.
var (
	TypeMoov = typ("moov")
	TypeTrak = typ("trak")
	TypeMdia = typ("mdia")
	TypeMinf = typ("minf")
	TypeDinf = typ("dinf")
	TypeStbl = typ("stbl")
	TypeUdta = typ("udta")
	TypeEdts = typ("edts")
)

// Container is a box without fields of its own.
type Container struct {
	BoxType BoxType
}

// Type returns the BoxType.
func (b *Container) Type() BoxType { return b.BoxType }

// Size returns the marshaled size in bytes.
func (*Container) Size() int { return 0 }

// Marshal is never called.
func (*Container) Marshal(*bitio.Writer) error { return nil }

/************************* FullBox **************************/

// FullBox is ISOBMFF FullBox.
type FullBox struct {
	Version uint8
	Flags   [3]byte
}

// GetFlags returns the flags.
func (b *FullBox) GetFlags() uint32 {
	return uint32(b.Flags[0])<<16 | uint32(b.Flags[1])<<8 | uint32(b.Flags[2])
}

// MarshalField box to writer.
func (b *FullBox) MarshalField(w *bitio.Writer) {
	w.TryWriteByte(b.Version)
	w.TryWrite(b.Flags[:])
}

// versionFor returns 1 if any of the values need 64 bits.
func versionFor(values ...uint64) uint8 {
	for _, v := range values {
		if v > math.MaxUint32 {
			return 1
		}
	}
	return 0
}

func writeVersioned(w *bitio.Writer, version uint8, v uint64) {
	if version == 0 {
		w.TryWriteUint32(uint32(v))
	} else {
		w.TryWriteUint64(v)
	}
}

/*************************** ftyp ****************************/

// Ftyp is ISOBMFF ftyp box type.
type Ftyp struct {
	MajorBrand       [4]byte
	MinorVersion     uint32
	CompatibleBrands [][4]byte
}

// Type returns the BoxType.
func (*Ftyp) Type() BoxType { return typ("ftyp") }

// Size returns the marshaled size in bytes.
func (b *Ftyp) Size() int {
	return 8 + len(b.CompatibleBrands)*4
}

// Marshal box to writer.
func (b *Ftyp) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.MajorBrand[:])
	w.TryWriteUint32(b.MinorVersion)
	for _, brand := range b.CompatibleBrands {
		w.TryWrite(brand[:])
	}
	return w.TryError
}

/*************************** free ****************************/

// Free is ISOBMFF free box type.
type Free struct {
	Data []byte
}

// Type returns the BoxType.
func (*Free) Type() BoxType { return typ("free") }

// Size returns the marshaled size in bytes.
func (b *Free) Size() int { return len(b.Data) }

// Marshal box to writer.
func (b *Free) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.Data)
	return w.TryError
}

/*************************** elst ****************************/

// ElstEntry is an edit. A MediaTime of -1 is an empty edit.
type ElstEntry struct {
	SegmentDuration uint64 // In movie timescale.
	MediaTime       int64  // In media timescale.
}

// Elst is ISOBMFF elst box type.
type Elst struct {
	Entries []ElstEntry
}

// Type returns the BoxType.
func (*Elst) Type() BoxType { return typ("elst") }

func (b *Elst) version() uint8 {
	for _, e := range b.Entries {
		if e.SegmentDuration > math.MaxUint32 ||
			e.MediaTime > math.MaxInt32 || e.MediaTime < math.MinInt32 {
			return 1
		}
	}
	return 0
}

// Size returns the marshaled size in bytes.
func (b *Elst) Size() int {
	if b.version() == 0 {
		return 8 + len(b.Entries)*12
	}
	return 8 + len(b.Entries)*20
}

// Marshal box to writer.
func (b *Elst) Marshal(w *bitio.Writer) error {
	v := b.version()
	(&FullBox{Version: v}).MarshalField(w)
	w.TryWriteUint32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		writeVersioned(w, v, e.SegmentDuration)
		writeVersioned(w, v, uint64(e.MediaTime))
		w.TryWriteUint16(1) // Media rate integer.
		w.TryWriteUint16(0) // Media rate fraction.
	}
	return w.TryError
}

/*************************** mvhd ****************************/

// Mvhd is ISOBMFF mvhd box type.
// Version 1 is selected when a time value exceeds 32 bits.
type Mvhd struct {
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Rate             int32 // fixed-point 16.16
	Volume           int16 // fixed-point 8.8
	Matrix           [9]int32
	NextTrackID      uint32
}

// Type returns the BoxType.
func (*Mvhd) Type() BoxType { return typ("mvhd") }

func (b *Mvhd) version() uint8 {
	return versionFor(b.CreationTime, b.ModificationTime, b.Duration)
}

// Size returns the marshaled size in bytes.
func (b *Mvhd) Size() int {
	if b.version() == 0 {
		return 100
	}
	return 112
}

// Marshal box to writer.
func (b *Mvhd) Marshal(w *bitio.Writer) error {
	v := b.version()
	(&FullBox{Version: v}).MarshalField(w)
	writeVersioned(w, v, b.CreationTime)
	writeVersioned(w, v, b.ModificationTime)
	w.TryWriteUint32(b.Timescale)
	writeVersioned(w, v, b.Duration)
	w.TryWriteUint32(uint32(b.Rate))
	w.TryWriteUint16(uint16(b.Volume))
	w.TryWrite(make([]byte, 10)) // Reserved.
	for _, m := range b.Matrix {
		w.TryWriteUint32(uint32(m))
	}
	w.TryWrite(make([]byte, 24)) // Pre defined.
	w.TryWriteUint32(b.NextTrackID)
	return w.TryError
}

/*************************** tkhd ****************************/

// Tkhd flags.
const (
	TrackEnabled   = 0x000001
	TrackInMovie   = 0x000002
	TrackInPreview = 0x000004
)

// Tkhd is ISOBMFF tkhd box type.
type Tkhd struct {
	Flags            uint32
	CreationTime     uint64
	ModificationTime uint64
	TrackID          uint32
	Duration         uint64
	Layer            int16
	AlternateGroup   int16
	Volume           int16 // fixed-point 8.8, 0x0100 for audio.
	Matrix           [9]int32
	Width            uint32 // fixed-point 16.16
	Height           uint32 // fixed-point 16.16
}

// Type returns the BoxType.
func (*Tkhd) Type() BoxType { return typ("tkhd") }

func (b *Tkhd) version() uint8 {
	return versionFor(b.CreationTime, b.ModificationTime, b.Duration)
}

// Size returns the marshaled size in bytes.
func (b *Tkhd) Size() int {
	if b.version() == 0 {
		return 84
	}
	return 96
}

// Marshal box to writer.
func (b *Tkhd) Marshal(w *bitio.Writer) error {
	v := b.version()
	fb := FullBox{
		Version: v,
		Flags:   [3]byte{byte(b.Flags >> 16), byte(b.Flags >> 8), byte(b.Flags)},
	}
	fb.MarshalField(w)
	writeVersioned(w, v, b.CreationTime)
	writeVersioned(w, v, b.ModificationTime)
	w.TryWriteUint32(b.TrackID)
	w.TryWriteUint32(0) // Reserved.
	writeVersioned(w, v, b.Duration)
	w.TryWriteUint64(0) // Reserved.
	w.TryWriteUint16(uint16(b.Layer))
	w.TryWriteUint16(uint16(b.AlternateGroup))
	w.TryWriteUint16(uint16(b.Volume))
	w.TryWriteUint16(0) // Reserved.
	for _, m := range b.Matrix {
		w.TryWriteUint32(uint32(m))
	}
	w.TryWriteUint32(b.Width)
	w.TryWriteUint32(b.Height)
	return w.TryError
}

/*************************** mdhd ****************************/

// Mdhd is ISOBMFF mdhd box type.
type Mdhd struct {
	CreationTime     uint64
	ModificationTime uint64
	Timescale        uint32
	Duration         uint64
	Language         [3]byte // ISO-639-2/T language code.
}

// Type returns the BoxType.
func (*Mdhd) Type() BoxType { return typ("mdhd") }

func (b *Mdhd) version() uint8 {
	return versionFor(b.CreationTime, b.ModificationTime, b.Duration)
}

// Size returns the marshaled size in bytes.
func (b *Mdhd) Size() int {
	if b.version() == 0 {
		return 24
	}
	return 36
}

// Marshal box to writer.
func (b *Mdhd) Marshal(w *bitio.Writer) error {
	v := b.version()
	(&FullBox{Version: v}).MarshalField(w)
	writeVersioned(w, v, b.CreationTime)
	writeVersioned(w, v, b.ModificationTime)
	w.TryWriteUint32(b.Timescale)
	writeVersioned(w, v, b.Duration)

	// Each character is packed as the difference from 0x60 in 5 bits.
	var lang uint16
	for _, c := range b.Language {
		lang = lang<<5 | uint16((c-0x60)&0x1f)
	}
	w.TryWriteUint16(lang)
	w.TryWriteUint16(0) // Pre defined.
	return w.TryError
}

/*************************** hdlr ****************************/

// Handler types.
var (
	HandlerVideo = typ("vide")
	HandlerSound = typ("soun")
)

// Hdlr is ISOBMFF hdlr box type.
type Hdlr struct {
	HandlerType BoxType
	Name        string
}

// Type returns the BoxType.
func (*Hdlr) Type() BoxType { return typ("hdlr") }

// Size returns the marshaled size in bytes.
func (b *Hdlr) Size() int {
	return 25 + len(b.Name)
}

// Marshal box to writer.
func (b *Hdlr) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(0) // Pre defined.
	w.TryWrite(b.HandlerType[:])
	w.TryWrite(make([]byte, 12)) // Reserved.
	w.TryWrite([]byte(b.Name + "\000"))
	return w.TryError
}

/*************************** vmhd ****************************/

// Vmhd is ISOBMFF vmhd box type.
type Vmhd struct {
	Graphicsmode uint16
	Opcolor      [3]uint16
}

// Type returns the BoxType.
func (*Vmhd) Type() BoxType { return typ("vmhd") }

// Size returns the marshaled size in bytes.
func (*Vmhd) Size() int { return 12 }

// Marshal box to writer.
func (b *Vmhd) Marshal(w *bitio.Writer) error {
	(&FullBox{Flags: [3]byte{0, 0, 1}}).MarshalField(w)
	w.TryWriteUint16(b.Graphicsmode)
	for _, c := range b.Opcolor {
		w.TryWriteUint16(c)
	}
	return w.TryError
}

/*************************** smhd ****************************/

// Smhd is ISOBMFF smhd box type.
type Smhd struct {
	Balance int16 // fixed-point 8.8
}

// Type returns the BoxType.
func (*Smhd) Type() BoxType { return typ("smhd") }

// Size returns the marshaled size in bytes.
func (*Smhd) Size() int { return 8 }

// Marshal box to writer.
func (b *Smhd) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint16(uint16(b.Balance))
	w.TryWriteUint16(0) // Reserved.
	return w.TryError
}

/*************************** dref ****************************/

// Dref is ISOBMFF dref box type. The entries are its children.
type Dref struct {
	EntryCount uint32
}

// Type returns the BoxType.
func (*Dref) Type() BoxType { return typ("dref") }

// Size returns the marshaled size in bytes.
func (*Dref) Size() int { return 8 }

// Marshal box to writer.
func (b *Dref) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(b.EntryCount)
	return w.TryError
}

/*************************** url ****************************/

// URL is ISOBMFF "url " box type.
// An empty location means the media is in the same file.
type URL struct {
	Location string
}

// Type returns the BoxType.
func (*URL) Type() BoxType { return typ("url ") }

// Size returns the marshaled size in bytes.
func (b *URL) Size() int {
	if b.Location == "" {
		return 4
	}
	return 5 + len(b.Location)
}

// Marshal box to writer.
func (b *URL) Marshal(w *bitio.Writer) error {
	if b.Location == "" {
		(&FullBox{Flags: [3]byte{0, 0, 1}}).MarshalField(w)
		return w.TryError
	}
	(&FullBox{}).MarshalField(w)
	w.TryWrite([]byte(b.Location + "\000"))
	return w.TryError
}

/*************************** stsd ****************************/

// Stsd is ISOBMFF stsd box type. The sample entries are its children.
type Stsd struct {
	EntryCount uint32
}

// Type returns the BoxType.
func (*Stsd) Type() BoxType { return typ("stsd") }

// Size returns the marshaled size in bytes.
func (*Stsd) Size() int { return 8 }

// Marshal box to writer.
func (b *Stsd) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(b.EntryCount)
	return w.TryError
}

/*********************** avc1 *************************/

// Sample entry header sizes.
const (
	VisualSampleEntrySize = 78
	AudioSampleEntrySize  = 28
)

func marshalSampleEntry(w *bitio.Writer, dataReferenceIndex uint16) {
	w.TryWrite(make([]byte, 6)) // Reserved.
	w.TryWriteUint16(dataReferenceIndex)
}

// Avc1 is ISOBMFF AVC sample entry.
type Avc1 struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	Compressorname     string
}

// Type returns the BoxType.
func (*Avc1) Type() BoxType { return typ("avc1") }

// Size returns the marshaled size in bytes.
func (*Avc1) Size() int { return VisualSampleEntrySize }

// Marshal box to writer.
func (b *Avc1) Marshal(w *bitio.Writer) error {
	marshalSampleEntry(w, b.DataReferenceIndex)
	w.TryWrite(make([]byte, 16)) // Pre defined and reserved.
	w.TryWriteUint16(b.Width)
	w.TryWriteUint16(b.Height)
	w.TryWriteUint32(0x00480000) // 72 dpi.
	w.TryWriteUint32(0x00480000)
	w.TryWriteUint32(0) // Reserved.
	w.TryWriteUint16(1) // Frame count.

	// Pascal string padded to 32 bytes.
	var name [32]byte
	n := copy(name[1:], b.Compressorname)
	name[0] = byte(n)
	w.TryWrite(name[:])

	w.TryWriteUint16(0x0018) // Depth.
	w.TryWriteUint16(0xffff) // Pre defined, -1.
	return w.TryError
}

/*************************** avcC ****************************/

// AvcC is ISOBMFF AVC configuration box type.
// Profile, compatibility and level are taken from the first SPS.
type AvcC struct {
	SPS [][]byte
	PPS [][]byte
}

// Type returns the BoxType.
func (*AvcC) Type() BoxType { return typ("avcC") }

// Size returns the marshaled size in bytes.
func (b *AvcC) Size() int {
	total := 7
	for _, s := range b.SPS {
		total += 2 + len(s)
	}
	for _, p := range b.PPS {
		total += 2 + len(p)
	}
	return total
}

// Marshal box to writer.
func (b *AvcC) Marshal(w *bitio.Writer) error {
	var profile, compat, level byte
	if len(b.SPS) != 0 && len(b.SPS[0]) >= 4 {
		profile, compat, level = b.SPS[0][1], b.SPS[0][2], b.SPS[0][3]
	}
	w.TryWriteByte(1) // Configuration version.
	w.TryWriteByte(profile)
	w.TryWriteByte(compat)
	w.TryWriteByte(level)
	w.TryWriteByte(0xfc | 3) // 4 byte NALU length.
	w.TryWriteByte(0xe0 | byte(len(b.SPS))&0x1f)
	for _, s := range b.SPS {
		w.TryWriteUint16(uint16(len(s)))
		w.TryWrite(s)
	}
	w.TryWriteByte(byte(len(b.PPS)))
	for _, p := range b.PPS {
		w.TryWriteUint16(uint16(len(p)))
		w.TryWrite(p)
	}
	return w.TryError
}

/*************************** btrt ****************************/

// Btrt is the bitrate box.
type Btrt struct {
	BufferSizeDB uint32
	MaxBitrate   uint32
	AvgBitrate   uint32
}

// Type returns the BoxType.
func (*Btrt) Type() BoxType { return typ("btrt") }

// Size returns the marshaled size in bytes.
func (*Btrt) Size() int { return 12 }

// Marshal box to writer.
func (b *Btrt) Marshal(w *bitio.Writer) error {
	w.TryWriteUint32(b.BufferSizeDB)
	w.TryWriteUint32(b.MaxBitrate)
	w.TryWriteUint32(b.AvgBitrate)
	return w.TryError
}

/*********************** mp4a *************************/

// Mp4a is the MPEG-4 audio sample entry.
type Mp4a struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32 // Hz, written as fixed-point 16.16.
}

// Type returns the BoxType.
func (*Mp4a) Type() BoxType { return typ("mp4a") }

// Size returns the marshaled size in bytes.
func (*Mp4a) Size() int { return AudioSampleEntrySize }

// Marshal box to writer.
func (b *Mp4a) Marshal(w *bitio.Writer) error {
	marshalSampleEntry(w, b.DataReferenceIndex)
	w.TryWrite(make([]byte, 8)) // Version and reserved.
	w.TryWriteUint16(b.ChannelCount)
	w.TryWriteUint16(b.SampleSize)
	w.TryWriteUint32(0) // Pre defined and reserved.
	w.TryWriteUint32(b.SampleRate << 16)
	return w.TryError
}

/*************************** esds ****************************/

// Descriptor tags, ISO/IEC 14496-1.
const (
	ESDescrTag            = 0x03
	DecoderConfigDescrTag = 0x04
	DecSpecificInfoTag    = 0x05
	SLConfigDescrTag      = 0x06
)

// Esds is the elementary stream descriptor box of an AAC track.
type Esds struct {
	ESID       uint16
	BufferSize uint32 // 24 bits.
	MaxBitrate uint32
	AvgBitrate uint32
	Config     []byte // AudioSpecificConfig.
}

// Type returns the BoxType.
func (*Esds) Type() BoxType { return typ("esds") }

// Size returns the marshaled size in bytes.
func (b *Esds) Size() int {
	return 41 + len(b.Config)
}

// Marshal box to writer.
// Descriptor sizes use the 4 byte form.
func (b *Esds) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)

	configSize := uint8(len(b.Config))

	w.TryWrite([]byte{ESDescrTag, 0x80, 0x80, 0x80, 32 + configSize})
	w.TryWriteUint16(b.ESID)
	w.TryWriteByte(0) // Flags.

	w.TryWrite([]byte{DecoderConfigDescrTag, 0x80, 0x80, 0x80, 18 + configSize})
	w.TryWriteByte(0x40) // MPEG-4 Audio.
	w.TryWriteByte(0x15) // Audio stream.
	w.TryWrite([]byte{byte(b.BufferSize >> 16), byte(b.BufferSize >> 8), byte(b.BufferSize)})
	w.TryWriteUint32(b.MaxBitrate)
	w.TryWriteUint32(b.AvgBitrate)

	w.TryWrite([]byte{DecSpecificInfoTag, 0x80, 0x80, 0x80, configSize})
	w.TryWrite(b.Config)

	w.TryWrite([]byte{SLConfigDescrTag, 0x80, 0x80, 0x80, 1, 2})
	return w.TryError
}

/*************************** stts ****************************/

// SttsEntry is a run of samples with the same delta.
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// Stts is ISOBMFF stts box type.
type Stts struct {
	Entries []SttsEntry
}

// Type returns the BoxType.
func (*Stts) Type() BoxType { return typ("stts") }

// Size returns the marshaled size in bytes.
func (b *Stts) Size() int { return 8 + len(b.Entries)*8 }

// Marshal box to writer.
func (b *Stts) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		w.TryWriteUint32(e.SampleCount)
		w.TryWriteUint32(e.SampleDelta)
	}
	return w.TryError
}

/*************************** ctts ****************************/

// CttsEntry is a run of samples with the same composition offset.
type CttsEntry struct {
	SampleCount  uint32
	SampleOffset int32
}

// Ctts is ISOBMFF ctts box type.
// Version 1 is used when any offset is negative.
type Ctts struct {
	Entries []CttsEntry
}

// Type returns the BoxType.
func (*Ctts) Type() BoxType { return typ("ctts") }

// Size returns the marshaled size in bytes.
func (b *Ctts) Size() int { return 8 + len(b.Entries)*8 }

// Marshal box to writer.
func (b *Ctts) Marshal(w *bitio.Writer) error {
	var version uint8
	for _, e := range b.Entries {
		if e.SampleOffset < 0 {
			version = 1
			break
		}
	}
	(&FullBox{Version: version}).MarshalField(w)
	w.TryWriteUint32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		w.TryWriteUint32(e.SampleCount)
		w.TryWriteUint32(uint32(e.SampleOffset))
	}
	return w.TryError
}

/*************************** stss ****************************/

// Stss is ISOBMFF stss box type, the 1-based numbers of sync samples.
type Stss struct {
	SampleNumbers []uint32
}

// Type returns the BoxType.
func (*Stss) Type() BoxType { return typ("stss") }

// Size returns the marshaled size in bytes.
func (b *Stss) Size() int { return 8 + len(b.SampleNumbers)*4 }

// Marshal box to writer.
func (b *Stss) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(uint32(len(b.SampleNumbers)))
	for _, n := range b.SampleNumbers {
		w.TryWriteUint32(n)
	}
	return w.TryError
}

/*************************** stsc ****************************/

// StscEntry .
type StscEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

// Stsc is ISOBMFF stsc box type.
type Stsc struct {
	Entries []StscEntry
}

// Type returns the BoxType.
func (*Stsc) Type() BoxType { return typ("stsc") }

// Size returns the marshaled size in bytes.
func (b *Stsc) Size() int { return 8 + len(b.Entries)*12 }

// Marshal box to writer.
func (b *Stsc) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		w.TryWriteUint32(e.FirstChunk)
		w.TryWriteUint32(e.SamplesPerChunk)
		w.TryWriteUint32(e.SampleDescriptionIndex)
	}
	return w.TryError
}

/*************************** stsz ****************************/

// Stsz is ISOBMFF stsz box type.
// A single entry size is written if every sample has the same size.
type Stsz struct {
	EntrySizes []uint32
}

// Type returns the BoxType.
func (*Stsz) Type() BoxType { return typ("stsz") }

func (b *Stsz) constantSize() (uint32, bool) {
	if len(b.EntrySizes) == 0 {
		return 0, false
	}
	first := b.EntrySizes[0]
	for _, s := range b.EntrySizes[1:] {
		if s != first {
			return 0, false
		}
	}
	return first, true
}

// Size returns the marshaled size in bytes.
func (b *Stsz) Size() int {
	if _, ok := b.constantSize(); ok {
		return 12
	}
	return 12 + len(b.EntrySizes)*4
}

// Marshal box to writer.
func (b *Stsz) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	if size, ok := b.constantSize(); ok {
		w.TryWriteUint32(size)
		w.TryWriteUint32(uint32(len(b.EntrySizes)))
		return w.TryError
	}
	w.TryWriteUint32(0)
	w.TryWriteUint32(uint32(len(b.EntrySizes)))
	for _, s := range b.EntrySizes {
		w.TryWriteUint32(s)
	}
	return w.TryError
}

/*************************** stco ****************************/

// Stco is ISOBMFF stco box type.
type Stco struct {
	ChunkOffsets []uint32
}

// Type returns the BoxType.
func (*Stco) Type() BoxType { return typ("stco") }

// Size returns the marshaled size in bytes.
func (b *Stco) Size() int { return 8 + len(b.ChunkOffsets)*4 }

// Marshal box to writer.
func (b *Stco) Marshal(w *bitio.Writer) error {
	(&FullBox{}).MarshalField(w)
	w.TryWriteUint32(uint32(len(b.ChunkOffsets)))
	for _, o := range b.ChunkOffsets {
		w.TryWriteUint32(o)
	}
	return w.TryError
}
