package customformat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"movierec/pkg/video/h264"
	"movierec/pkg/video/mpeg4audio"
)

// Header is the meta file header.
type Header struct {
	VideoSPS    []byte
	VideoPPS    []byte
	AudioConfig []byte
	StartTime   int64 // UnixNano.
}

const headerVersion = 0

// Errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrFieldTooLarge      = errors.New("header field too large")
)

// Size returns the marshaled size.
func (h Header) Size() int {
	return 15 + len(h.VideoSPS) + len(h.VideoPPS) + len(h.AudioConfig)
}

// Marshal header.
func (h Header) Marshal() ([]byte, error) {
	out := make([]byte, h.Size())
	out[0] = headerVersion
	pos := 1

	for _, field := range [][]byte{h.VideoSPS, h.VideoPPS, h.AudioConfig} {
		if len(field) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, len(field))
		}
		binary.BigEndian.PutUint16(out[pos:], uint16(len(field)))
		pos += 2
		pos += copy(out[pos:], field)
	}

	binary.BigEndian.PutUint64(out[pos:], uint64(h.StartTime))
	return out, nil
}

// Unmarshal header from reader and return the number of bytes read.
func (h *Header) Unmarshal(r io.Reader) (int, error) {
	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return 0, err
	}
	if version[0] != headerVersion {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version[0])
	}
	read := 1

	for _, field := range []*[]byte{&h.VideoSPS, &h.VideoPPS, &h.AudioConfig} {
		n, err := unmarshalArray(r, field)
		if err != nil {
			return 0, err
		}
		read += n
	}

	var startTime [8]byte
	if _, err := io.ReadFull(r, startTime[:]); err != nil {
		return 0, err
	}
	h.StartTime = int64(binary.BigEndian.Uint64(startTime[:]))
	return read + 8, nil
}

func unmarshalArray(r io.Reader, value *[]byte) (int, error) {
	var size [2]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return 0, err
	}
	*value = make([]byte, binary.BigEndian.Uint16(size[:]))
	if _, err := io.ReadFull(r, *value); err != nil {
		return 0, err
	}
	return 2 + len(*value), nil
}

// StreamInfo describes the tracks of a recording.
type StreamInfo struct {
	VideoSPS    []byte
	VideoPPS    []byte
	VideoWidth  int
	VideoHeight int

	AudioTrackExist   bool
	AudioConfig       []byte
	AudioSampleRate   int
	AudioChannelCount int
}

// StreamInfo decodes the parameter sets and the audio config.
func (h Header) StreamInfo() (*StreamInfo, error) {
	var sps h264.SPS
	if err := sps.Unmarshal(h.VideoSPS); err != nil {
		return nil, fmt.Errorf("unmarshal sps: %w", err)
	}
	info := StreamInfo{
		VideoSPS:    h.VideoSPS,
		VideoPPS:    h.VideoPPS,
		VideoWidth:  sps.Width(),
		VideoHeight: sps.Height(),
	}

	if len(h.AudioConfig) != 0 {
		var config mpeg4audio.Config
		if err := config.Decode(h.AudioConfig); err != nil {
			return nil, fmt.Errorf("decode audio config: %w", err)
		}
		info.AudioTrackExist = true
		info.AudioConfig = h.AudioConfig
		info.AudioSampleRate = config.SampleRate
		info.AudioChannelCount = config.ChannelCount
	}
	return &info, nil
}
