package mp4writer

import (
	"math"

	"movierec/pkg/recorder"
	"movierec/pkg/video/mp4"
)

func (w *Writer) writeMoov() error {
	/*
	   moov
	   - mvhd
	   - trak (video)
	   - trak (audio)
	*/

	var movieDuration uint64
	traks := make([]mp4.Boxes, 0, len(w.tracks))
	for _, t := range w.tracks {
		trak, duration := w.generateTrak(t)
		if duration > movieDuration {
			movieDuration = duration
		}
		traks = append(traks, trak)
	}

	moov := mp4.Boxes{
		Box: &mp4.Container{BoxType: mp4.TypeMoov},
		Children: append([]mp4.Boxes{
			{Box: &mp4.Mvhd{
				CreationTime:     w.created,
				ModificationTime: w.created,
				Timescale:        movieTimescale,
				Duration:         movieDuration,
				Rate:             0x00010000,
				Volume:           0x0100,
				Matrix:           mp4.Unity,
				NextTrackID:      uint32(len(w.tracks) + 1),
			}},
		}, traks...),
	}
	return moov.Marshal(w.out)
}

func rescale(v int64, from, to uint32) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(v) * uint64(to) / uint64(from)
}

// generateTrak returns the trak and its duration in the movie timescale.
func (w *Writer) generateTrak(t *track) (mp4.Boxes, uint64) {
	/*
	   trak
	   - tkhd
	   - edts
	     - elst
	   - mdia
	     - mdhd
	     - hdlr
	     - minf
	*/

	mediaDuration := t.mediaDuration()
	mediaStart := t.mediaStart()

	gap := rescale(t.startGap(), t.timescale, movieTimescale)
	presented := rescale(int64(mediaDuration)-mediaStart, t.timescale, movieTimescale)
	trackDuration := gap + presented

	tkhd := &mp4.Tkhd{
		Flags:            mp4.TrackEnabled | mp4.TrackInMovie,
		CreationTime:     w.created,
		ModificationTime: w.created,
		TrackID:          t.id,
		Duration:         trackDuration,
		Matrix:           mp4.Unity,
	}

	handler := mp4.Hdlr{HandlerType: mp4.HandlerVideo, Name: "VideoHandler"}
	if t.kind == recorder.KindVideo {
		tkhd.Matrix = transformMatrix(t.settings.Transform)
		tkhd.Width = uint32(t.width) << 16
		tkhd.Height = uint32(t.height) << 16
	} else {
		tkhd.AlternateGroup = 1
		tkhd.Volume = 0x0100
		handler = mp4.Hdlr{HandlerType: mp4.HandlerSound, Name: "SoundHandler"}
	}

	var edits []mp4.ElstEntry
	if gap > 0 {
		edits = append(edits, mp4.ElstEntry{SegmentDuration: gap, MediaTime: -1})
	}
	edits = append(edits, mp4.ElstEntry{SegmentDuration: presented, MediaTime: mediaStart})

	trak := mp4.Boxes{
		Box: &mp4.Container{BoxType: mp4.TypeTrak},
		Children: []mp4.Boxes{
			{Box: tkhd},
			{
				Box:      &mp4.Container{BoxType: mp4.TypeEdts},
				Children: []mp4.Boxes{{Box: &mp4.Elst{Entries: edits}}},
			},
			{
				Box: &mp4.Container{BoxType: mp4.TypeMdia},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{
						CreationTime:     w.created,
						ModificationTime: w.created,
						Timescale:        t.timescale,
						Duration:         mediaDuration,
						Language:         [3]byte{'u', 'n', 'd'},
					}},
					{Box: &handler},
					generateMinf(t),
				},
			},
		},
	}
	return trak, trackDuration
}

// transformMatrix converts the transform to fixed-point.
func transformMatrix(t recorder.Transform) [9]int32 {
	fixed := func(v float64) int32 {
		return int32(math.Round(v * 0x10000))
	}
	return [9]int32{
		fixed(t.A), fixed(t.B), 0,
		fixed(t.C), fixed(t.D), 0,
		fixed(t.TX), fixed(t.TY), 0x40000000,
	}
}

func generateMinf(t *track) mp4.Boxes {
	/*
	   minf
	   - vmhd or smhd
	   - dinf
	     - dref
	       - url
	   - stbl
	     - stsd
	     - stts
	     - ctts
	     - stss
	     - stsc
	     - stsz
	     - stco
	*/

	header := mp4.Boxes{Box: &mp4.Vmhd{}}
	if t.kind == recorder.KindAudio {
		header = mp4.Boxes{Box: &mp4.Smhd{}}
	}

	return mp4.Boxes{
		Box: &mp4.Container{BoxType: mp4.TypeMinf},
		Children: []mp4.Boxes{
			header,
			{
				Box: &mp4.Container{BoxType: mp4.TypeDinf},
				Children: []mp4.Boxes{{
					Box:      &mp4.Dref{EntryCount: 1},
					Children: []mp4.Boxes{{Box: &mp4.URL{}}},
				}},
			},
			generateStbl(t),
		},
	}
}

func generateStbl(t *track) mp4.Boxes {
	deltas := t.deltas()

	var stts []mp4.SttsEntry
	for _, d := range deltas {
		if n := len(stts); n != 0 && stts[n-1].SampleDelta == d {
			stts[n-1].SampleCount++
			continue
		}
		stts = append(stts, mp4.SttsEntry{SampleCount: 1, SampleDelta: d})
	}

	sizes := make([]uint32, len(t.samples))
	var syncSamples []uint32
	for i, s := range t.samples {
		sizes[i] = s.size
		if s.sync {
			syncSamples = append(syncSamples, uint32(i+1))
		}
	}

	var stsc []mp4.StscEntry
	for i, n := range t.samplesPerChunk {
		if last := len(stsc); last != 0 && stsc[last-1].SamplesPerChunk == n {
			continue
		}
		stsc = append(stsc, mp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        n,
			SampleDescriptionIndex: 1,
		})
	}

	children := []mp4.Boxes{
		generateStsd(t),
		{Box: &mp4.Stts{Entries: stts}},
	}

	if t.hasCompositionOffsets() {
		var ctts []mp4.CttsEntry
		for _, s := range t.samples {
			if n := len(ctts); n != 0 && ctts[n-1].SampleOffset == s.ctsOffset {
				ctts[n-1].SampleCount++
				continue
			}
			ctts = append(ctts, mp4.CttsEntry{SampleCount: 1, SampleOffset: s.ctsOffset})
		}
		children = append(children, mp4.Boxes{Box: &mp4.Ctts{Entries: ctts}})
	}

	// Every audio sample is a sync sample, stss is omitted.
	if t.kind == recorder.KindVideo {
		children = append(children, mp4.Boxes{Box: &mp4.Stss{SampleNumbers: syncSamples}})
	}

	children = append(children,
		mp4.Boxes{Box: &mp4.Stsc{Entries: stsc}},
		mp4.Boxes{Box: &mp4.Stsz{EntrySizes: sizes}},
		mp4.Boxes{Box: &mp4.Stco{ChunkOffsets: t.chunkOffsets}},
	)

	return mp4.Boxes{
		Box:      &mp4.Container{BoxType: mp4.TypeStbl},
		Children: children,
	}
}

func generateStsd(t *track) mp4.Boxes {
	/*
	   - stsd
	     - avc1
	       - avcC
	       - btrt
	   or
	     - mp4a
	       - esds
	*/

	bitrate := t.averageBitrate()

	var entry mp4.Boxes
	if t.kind == recorder.KindVideo {
		entry = mp4.Boxes{
			Box: &mp4.Avc1{
				DataReferenceIndex: 1,
				Width:              uint16(t.width),
				Height:             uint16(t.height),
			},
			Children: []mp4.Boxes{
				{Box: &mp4.AvcC{
					SPS: [][]byte{t.sps},
					PPS: [][]byte{t.pps},
				}},
				{Box: &mp4.Btrt{
					MaxBitrate: bitrate,
					AvgBitrate: bitrate,
				}},
			},
		}
	} else {
		entry = mp4.Boxes{
			Box: &mp4.Mp4a{
				DataReferenceIndex: 1,
				ChannelCount:       uint16(t.channelCount),
				SampleSize:         16,
				SampleRate:         uint32(t.sampleRate),
			},
			Children: []mp4.Boxes{{Box: &mp4.Esds{
				ESID:       uint16(t.id),
				MaxBitrate: bitrate,
				AvgBitrate: bitrate,
				Config:     t.config,
			}}},
		}
	}

	return mp4.Boxes{
		Box:      &mp4.Stsd{EntryCount: 1},
		Children: []mp4.Boxes{entry},
	}
}
