package mp4writer

import (
	"errors"
	"fmt"
	"time"

	"movierec/pkg/recorder"
	"movierec/pkg/video/h264"
	"movierec/pkg/video/mpeg4audio"
)

// ErrDimensionMismatch is returned when the SPS disagrees with the settings.
var ErrDimensionMismatch = errors.New("sps dimensions do not match settings")

type sampleEntry struct {
	dts       int64 // Timescale units from the session start.
	ctsOffset int32
	size      uint32
	sync      bool
}

type track struct {
	w         *Writer
	id        uint32
	kind      recorder.MediaKind
	settings  recorder.TrackSettings
	timescale uint32

	// Video.
	sps    []byte
	pps    []byte
	width  int
	height int

	// Audio.
	config       []byte
	sampleRate   int
	channelCount int

	samples         []sampleEntry
	lastDuration    time.Duration
	chunkOffsets    []uint32
	samplesPerChunk []uint32
}

func newVideoTrack(w *Writer, s recorder.TrackSettings) (*track, error) {
	var sps h264.SPS
	if err := sps.Unmarshal(s.VideoHint.SPS); err != nil {
		return nil, fmt.Errorf("unmarshal sps: %w", err)
	}
	if sps.Width() != s.Width || sps.Height() != s.Height {
		return nil, fmt.Errorf("%w: %dx%d, %dx%d", ErrDimensionMismatch,
			sps.Width(), sps.Height(), s.Width, s.Height)
	}

	return &track{
		w:         w,
		kind:      recorder.KindVideo,
		settings:  s,
		timescale: videoTimescale,
		sps:       s.VideoHint.SPS,
		pps:       s.VideoHint.PPS,
		width:     s.Width,
		height:    s.Height,
	}, nil
}

func newAudioTrack(w *Writer, s recorder.TrackSettings) (*track, error) {
	rate, channels := audioParams(s)

	var config []byte
	if s.AudioHint != nil && len(s.AudioHint.Config) != 0 {
		var conf mpeg4audio.Config
		if err := conf.Decode(s.AudioHint.Config); err != nil {
			return nil, fmt.Errorf("decode audio config: %w", err)
		}
		config = s.AudioHint.Config
	} else {
		var err error
		config, err = mpeg4audio.Config{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   rate,
			ChannelCount: channels,
		}.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode audio config: %w", err)
		}
	}

	return &track{
		w:            w,
		kind:         recorder.KindAudio,
		settings:     s,
		timescale:    uint32(rate),
		config:       config,
		sampleRate:   rate,
		channelCount: channels,
	}, nil
}

// ReadyForMoreMediaData is false once the writer is finishing
// or while the disk is almost full.
func (t *track) ReadyForMoreMediaData() bool {
	return t.w.ready()
}

// Append writes a sample to the media data.
func (t *track) Append(s recorder.Sample) error {
	return t.w.append(t, s)
}

func (t *track) defaultDuration() int64 {
	if t.kind == recorder.KindAudio {
		return mpeg4audio.SamplesPerAccessUnit
	}
	return toTimescale(defaultVideoSampleDuration, t.timescale)
}

// deltas returns the decode duration of every sample. The last
// sample uses its own duration, then the previous delta, then a default.
func (t *track) deltas() []uint32 {
	n := len(t.samples)
	if n == 0 {
		return nil
	}
	deltas := make([]uint32, n)
	for i := 0; i < n-1; i++ {
		deltas[i] = uint32(t.samples[i+1].dts - t.samples[i].dts)
	}

	switch {
	case t.lastDuration != recorder.InvalidTime && t.lastDuration > 0:
		deltas[n-1] = uint32(toTimescale(t.lastDuration, t.timescale))
	case n > 1:
		deltas[n-1] = deltas[n-2]
	default:
		deltas[n-1] = uint32(t.defaultDuration())
	}
	return deltas
}

// mediaDuration returns the sum of all deltas.
func (t *track) mediaDuration() uint64 {
	var total uint64
	for _, d := range t.deltas() {
		total += uint64(d)
	}
	return total
}

// startGap returns the time between the session start
// and the presentation of the first sample.
func (t *track) startGap() int64 {
	if len(t.samples) == 0 {
		return 0
	}
	first := t.samples[0]
	gap := first.dts + int64(first.ctsOffset)
	if gap < 0 {
		return 0
	}
	return gap
}

// mediaStart returns the media time presented at the start of the
// track's edit. Samples presented before the session start are skipped.
func (t *track) mediaStart() int64 {
	if len(t.samples) == 0 {
		return 0
	}
	first := t.samples[0]
	if first.dts+int64(first.ctsOffset) < 0 {
		return -first.dts
	}
	if first.ctsOffset < 0 {
		return 0
	}
	return int64(first.ctsOffset)
}

func (t *track) hasCompositionOffsets() bool {
	for _, s := range t.samples {
		if s.ctsOffset != 0 {
			return true
		}
	}
	return false
}

func (t *track) averageBitrate() uint32 {
	if t.kind == recorder.KindVideo {
		if t.settings.AverageBitRate > 0 {
			return uint32(t.settings.AverageBitRate)
		}
		return 0
	}
	perChannel := t.settings.BitRatePerChannel
	if perChannel <= 0 {
		perChannel = defaultAudioBitRatePerChannel
	}
	return uint32(perChannel * t.channelCount)
}

const defaultAudioBitRatePerChannel = 64000
