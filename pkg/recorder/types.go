// SPDX-License-Identifier: GPL-2.0-or-later

package recorder

import (
	"errors"
	"math"
	"time"
)

// Status of a Recorder. Statuses are ordered, a recorder only moves forward.
type Status int

// Statuses.
const (
	StatusIdle Status = iota
	StatusPreparingToRecord
	StatusRecording
	StatusFinishingPart1
	StatusFinishingPart2
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusPreparingToRecord:
		return "PreparingToRecord"
	case StatusRecording:
		return "Recording"
	case StatusFinishingPart1:
		return "FinishingPart1"
	case StatusFinishingPart2:
		return "FinishingPart2"
	case StatusFinished:
		return "Finished"
	case StatusFailed:
		return "Failed"
	}
	return "Unknown"
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Errors.
var (
	// ErrMisuse is wrapped by the values the recorder panics with
	// when it's called in a way its state doesn't allow.
	ErrMisuse = errors.New("recorder misuse")

	ErrCannotSetupInput = errors.New("cannot set up input")
)

// InvalidTime marks an unknown timestamp or duration.
const InvalidTime = time.Duration(math.MinInt64)

// MediaKind is the media type of a track or sample.
type MediaKind int

// Media kinds.
const (
	KindVideo MediaKind = iota + 1
	KindAudio
)

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	}
	return "unknown"
}

// Codecs.
const (
	CodecH264 = "avc1"
	CodecAAC  = "mp4a"
)

// VideoFormat describes the source video.
type VideoFormat struct {
	Codec  string
	Width  int
	Height int
	SPS    []byte
	PPS    []byte
}

// Pixels returns the number of pixels in a frame.
func (f VideoFormat) Pixels() int {
	return f.Width * f.Height
}

// AudioFormat describes the source audio.
type AudioFormat struct {
	Codec         string
	SampleRate    int
	ChannelCount  int
	ChannelLayout uint32 // Zero if unknown.
	Config        []byte // AudioSpecificConfig, optional.
}

// Transform is an affine transformation applied to the video on playback.
//
//	| A  B  0 |
//	| C  D  0 |
//	| TX TY 1 |
type Transform struct {
	A, B, C, D, TX, TY float64
}

// IdentityTransform leaves the video untouched.
var IdentityTransform = Transform{A: 1, D: 1}

// Sample is a single access unit with its timing.
// Times are relative to an arbitrary source clock.
type Sample struct {
	Kind     MediaKind
	PTS      time.Duration
	DTS      time.Duration // InvalidTime if equal to PTS.
	Duration time.Duration // InvalidTime if unknown.
	IsSync   bool
	Data     []byte

	// The format the sample was produced with, optional.
	VideoFormat *VideoFormat
	AudioFormat *AudioFormat
}

// DecodeTime returns DTS if valid, otherwise PTS.
func (s Sample) DecodeTime() time.Duration {
	if s.DTS == InvalidTime {
		return s.PTS
	}
	return s.DTS
}

// PixelBuffer is a raw picture.
type PixelBuffer []byte
