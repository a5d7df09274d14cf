// SPDX-License-Identifier: GPL-2.0-or-later

package recorder

// TrackSettings are the output settings requested for a track.
// Zero values mean the writer decides.
type TrackSettings struct {
	Kind            MediaKind
	Codec           string
	ExpectsRealTime bool

	// Video.
	Width               int
	Height              int
	AverageBitRate      int
	MaxKeyFrameInterval int
	Transform           Transform

	// Audio.
	SampleRate        int
	ChannelCount      int
	ChannelLayout     uint32
	BitRatePerChannel int

	// Source format hints.
	VideoHint *VideoFormat
	AudioHint *AudioFormat
}

// Bits per pixel constants.
const (
	// Approximates a medium quality preset.
	lowBitsPerPixel = 4.05

	// Approximates a high quality preset.
	highBitsPerPixel = 10.1

	lowResolutionPixels = 640 * 480

	maxKeyFrameInterval = 30

	audioBitRatePerChannel = 64000
)

// VideoBitRate returns the average bit rate for the given frame size.
func VideoBitRate(width, height int) int {
	pixels := width * height

	bitsPerPixel := highBitsPerPixel
	if pixels < lowResolutionPixels {
		bitsPerPixel = lowBitsPerPixel
	}
	return int(float64(pixels) * bitsPerPixel)
}

func videoSettings(format VideoFormat, transform Transform) TrackSettings {
	hint := format
	return TrackSettings{
		Kind:                KindVideo,
		Codec:               CodecH264,
		ExpectsRealTime:     true,
		Width:               format.Width,
		Height:              format.Height,
		AverageBitRate:      VideoBitRate(format.Width, format.Height),
		MaxKeyFrameInterval: maxKeyFrameInterval,
		Transform:           transform,
		VideoHint:           &hint,
	}
}

func audioSettings(format AudioFormat, explicit bool) TrackSettings {
	hint := format
	s := TrackSettings{
		Kind:            KindAudio,
		Codec:           CodecAAC,
		ExpectsRealTime: true,
		AudioHint:       &hint,
	}
	if explicit {
		s.SampleRate = format.SampleRate
		s.ChannelCount = format.ChannelCount
		s.ChannelLayout = format.ChannelLayout
		s.BitRatePerChannel = audioBitRatePerChannel
	}
	return s
}
